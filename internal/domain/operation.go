package domain

// Operation is the closed set of functions exposed to the primary model.
type Operation string

const (
	OpBucketFileCount  Operation = "get_s3_bucket_file_count"
	OpBucketSizes      Operation = "get_s3_bucket_sizes"
	OpListInstances    Operation = "list_ec2_instances"
	OpDescribeRole     Operation = "describe_iam_role"
	OpSuggestPolicy    Operation = "suggest_iam_policy"
	OpCreateBucket     Operation = "create_s3_bucket"
	OpCreateFunction   Operation = "create_lambda_function"
	OpCreateRole       Operation = "create_iam_role"
	OpAttachRolePolicy Operation = "assign_policy_to_role"
)

// Operations lists every supported operation in the order they are advertised
// to the model.
var Operations = []Operation{
	OpBucketFileCount,
	OpBucketSizes,
	OpListInstances,
	OpDescribeRole,
	OpSuggestPolicy,
	OpCreateBucket,
	OpCreateFunction,
	OpCreateRole,
	OpAttachRolePolicy,
}

// ParseOperation maps a model-supplied function name onto the closed set.
func ParseOperation(name string) (Operation, bool) {
	for _, op := range Operations {
		if string(op) == name {
			return op, true
		}
	}
	return "", false
}

// RequiresCredentials reports whether the operation touches the caller's AWS
// account and therefore cannot run without request credentials.
func (o Operation) RequiresCredentials() bool {
	return o != OpSuggestPolicy
}

func (o Operation) String() string { return string(o) }
