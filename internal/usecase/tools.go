package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloudpilot/internal/awstools"
	"cloudpilot/internal/domain"
)

// CloudExecutor runs AWS operations with per-request credentials.
// *awstools.Executor satisfies it.
type CloudExecutor interface {
	BucketFileCount(ctx context.Context, creds *domain.Credentials, bucketName string) domain.Result[[]awstools.BucketStats]
	BucketSizes(ctx context.Context, creds *domain.Credentials) domain.Result[[]awstools.BucketSize]
	ListInstances(ctx context.Context, creds *domain.Credentials) domain.Result[[]awstools.Instance]
	DescribeRole(ctx context.Context, creds *domain.Credentials, roleName string) domain.Result[awstools.RoleDetails]
	CreateBucket(ctx context.Context, creds *domain.Credentials, bucketName string) domain.Result[awstools.CreatedBucket]
	CreateFunction(ctx context.Context, creds *domain.Credentials, in awstools.CreateFunctionInput) domain.Result[awstools.CreatedFunction]
	CreateRole(ctx context.Context, creds *domain.Credentials, roleName string, trustPolicy map[string]any) domain.Result[awstools.CreatedRole]
	AttachRolePolicy(ctx context.Context, creds *domain.Credentials, roleName, policyARN string) domain.Result[awstools.PolicyAttachment]
}

var _ CloudExecutor = (*awstools.Executor)(nil)

// PolicyAdvisor produces IAM policy suggestions. *ReviewService satisfies it.
type PolicyAdvisor interface {
	SuggestPolicy(ctx context.Context, in SuggestPolicyInput, creds *domain.Credentials) (domain.PolicySuggestion, error)
}

// toolHandler decodes model arguments and runs one operation. A returned
// error fails the whole request; operation failures travel in the result.
type toolHandler func(ctx context.Context, creds *domain.Credentials, args json.RawMessage) (domain.Result[any], error)

type bucketArgs struct {
	BucketName string `json:"bucket_name"`
}

type roleArgs struct {
	RoleName string `json:"role_name"`
}

type createRoleArgs struct {
	Name           string         `json:"name"`
	PolicyDocument map[string]any `json:"policy_document"`
}

type attachPolicyArgs struct {
	RoleName  string `json:"role_name"`
	PolicyArn string `json:"policy_arn"`
}

type policySuggestionData struct {
	PolicyDocument map[string]any `json:"policy_document"`
	Explanation    string         `json:"explanation"`
	Warnings       []string       `json:"warnings"`
}

func newToolHandlers(cloud CloudExecutor, advisor PolicyAdvisor) map[domain.Operation]toolHandler {
	return map[domain.Operation]toolHandler{
		domain.OpBucketFileCount: withArgs(func(ctx context.Context, creds *domain.Credentials, a bucketArgs) domain.Result[any] {
			return cloud.BucketFileCount(ctx, creds, a.BucketName).Erase()
		}),
		domain.OpBucketSizes: func(ctx context.Context, creds *domain.Credentials, _ json.RawMessage) (domain.Result[any], error) {
			return cloud.BucketSizes(ctx, creds).Erase(), nil
		},
		domain.OpListInstances: func(ctx context.Context, creds *domain.Credentials, _ json.RawMessage) (domain.Result[any], error) {
			return cloud.ListInstances(ctx, creds).Erase(), nil
		},
		domain.OpDescribeRole: withArgs(func(ctx context.Context, creds *domain.Credentials, a roleArgs) domain.Result[any] {
			return cloud.DescribeRole(ctx, creds, a.RoleName).Erase()
		}),
		domain.OpCreateBucket: withArgs(func(ctx context.Context, creds *domain.Credentials, a bucketArgs) domain.Result[any] {
			return cloud.CreateBucket(ctx, creds, a.BucketName).Erase()
		}),
		domain.OpCreateFunction: withArgs(func(ctx context.Context, creds *domain.Credentials, a awstools.CreateFunctionInput) domain.Result[any] {
			return cloud.CreateFunction(ctx, creds, a).Erase()
		}),
		domain.OpCreateRole: withArgs(func(ctx context.Context, creds *domain.Credentials, a createRoleArgs) domain.Result[any] {
			return cloud.CreateRole(ctx, creds, a.Name, a.PolicyDocument).Erase()
		}),
		domain.OpAttachRolePolicy: withArgs(func(ctx context.Context, creds *domain.Credentials, a attachPolicyArgs) domain.Result[any] {
			return cloud.AttachRolePolicy(ctx, creds, a.RoleName, a.PolicyArn).Erase()
		}),
		domain.OpSuggestPolicy: func(ctx context.Context, creds *domain.Credentials, args json.RawMessage) (domain.Result[any], error) {
			in, err := decodeArgs[SuggestPolicyInput](args)
			if err != nil {
				return domain.Result[any]{}, err
			}
			return suggestPolicyTool(ctx, advisor, creds, in)
		},
	}
}

func withArgs[A any](run func(ctx context.Context, creds *domain.Credentials, a A) domain.Result[any]) toolHandler {
	return func(ctx context.Context, creds *domain.Credentials, args json.RawMessage) (domain.Result[any], error) {
		a, err := decodeArgs[A](args)
		if err != nil {
			return domain.Result[any]{}, err
		}
		return run(ctx, creds, a), nil
	}
}

func decodeArgs[A any](args json.RawMessage) (A, error) {
	var a A
	if len(args) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return a, newError(ErrorMalformedResponse, "tool_arguments_invalid", err)
	}
	return a, nil
}

func suggestPolicyTool(ctx context.Context, advisor PolicyAdvisor, creds *domain.Credentials, in SuggestPolicyInput) (domain.Result[any], error) {
	suggestion, err := advisor.SuggestPolicy(ctx, in, creds)
	if err != nil {
		var uErr *Error
		if errors.As(err, &uErr) {
			switch uErr.Code {
			case ErrorCredentialsRequired:
				return domain.NeedsCredentials[any](credentialsPrompt), nil
			case ErrorInvalidInput:
				return domain.Failed[any]("A description of the required permissions is needed to suggest a policy."), nil
			}
		}
		return domain.Result[any]{}, err
	}
	if !suggestion.Parsed() {
		return domain.Failed[any](fmt.Sprintf("%s. The model replied: %s", policyParseError, suggestion.Response)), nil
	}
	return domain.OK[any](policySuggestionData{
		PolicyDocument: suggestion.Policy,
		Explanation:    policyExplanation,
		Warnings:       suggestion.Warnings,
	}, policyExplanation), nil
}

// toolDefinitions is the function schema advertised to the primary model.
var toolDefinitions = []domain.ToolDefinition{
	tool(domain.OpBucketFileCount, "Returns the number of files in an S3 bucket or all buckets",
		props{"bucket_name": str("Optional. Name of the specific S3 bucket to check. If not provided, checks all buckets.")}),
	tool(domain.OpBucketSizes, "Returns total size of all accessible S3 buckets", props{}),
	tool(domain.OpListInstances, "Returns list of EC2 instances with their details", props{}),
	tool(domain.OpDescribeRole, "Returns details about an IAM role",
		props{"role_name": str("Name of the IAM role")}, "role_name"),
	tool(domain.OpSuggestPolicy, "Suggests an IAM policy based on a description of required permissions",
		props{"description": str("Description of the required permissions")}, "description"),
	tool(domain.OpCreateBucket, "Creates a new S3 bucket",
		props{"bucket_name": str("Name of the S3 bucket to create")}, "bucket_name"),
	tool(domain.OpCreateFunction, "Creates a new Lambda function",
		props{
			"name":          str("Name of the Lambda function"),
			"role_arn":      str("ARN of the IAM role for the function"),
			"runtime":       str("Runtime environment (e.g., python3.12)"),
			"handler":       str("Function handler (e.g., index.handler)"),
			"zip_file_path": str("Path of the zip file containing function code, relative to the server's function code directory"),
		}, "name", "role_arn", "runtime", "handler", "zip_file_path"),
	tool(domain.OpCreateRole, "Creates a new IAM role",
		props{
			"name":            str("Name of the IAM role"),
			"policy_document": map[string]any{"type": "object", "description": "Trust policy document allowing principals to assume the role"},
		}, "name", "policy_document"),
	tool(domain.OpAttachRolePolicy, "Attaches an existing policy to an IAM role",
		props{
			"role_name":  str("Name of the IAM role"),
			"policy_arn": str("ARN of the policy to attach"),
		}, "role_name", "policy_arn"),
}

type props map[string]any

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func tool(op domain.Operation, description string, properties props, required ...string) domain.ToolDefinition {
	params := map[string]any{"type": "object", "properties": map[string]any(properties)}
	if len(required) > 0 {
		params["required"] = required
	}
	return domain.ToolDefinition{
		Type:     "function",
		Function: domain.FunctionDef{Name: op.String(), Description: description, Parameters: params},
	}
}

// Tools returns a copy of the function schema advertised to the primary model.
func Tools() []domain.ToolDefinition {
	return append([]domain.ToolDefinition(nil), toolDefinitions...)
}
