package awstools

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"cloudpilot/internal/domain"
)

// The interfaces below are the minimal SDK surface each operation needs.
// The aws-sdk-go-v2 service clients satisfy them.

type S3API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

type IAMAPI interface {
	GetRole(ctx context.Context, in *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	ListAttachedRolePolicies(ctx context.Context, in *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	CreateRole(ctx context.Context, in *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, in *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
}

type LambdaAPI interface {
	CreateFunction(ctx context.Context, in *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
}

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var (
	_ S3API     = (*s3.Client)(nil)
	_ EC2API    = (*ec2.Client)(nil)
	_ IAMAPI    = (*iam.Client)(nil)
	_ LambdaAPI = (*lambda.Client)(nil)
	_ STSAPI    = (*sts.Client)(nil)
)

// ClientFactory builds service clients from a per-call configuration.
type ClientFactory interface {
	S3(cfg aws.Config) S3API
	EC2(cfg aws.Config) EC2API
	IAM(cfg aws.Config) IAMAPI
	Lambda(cfg aws.Config) LambdaAPI
	STS(cfg aws.Config) STSAPI
}

type sdkClients struct{}

func (sdkClients) S3(cfg aws.Config) S3API         { return s3.NewFromConfig(cfg) }
func (sdkClients) EC2(cfg aws.Config) EC2API       { return ec2.NewFromConfig(cfg) }
func (sdkClients) IAM(cfg aws.Config) IAMAPI       { return iam.NewFromConfig(cfg) }
func (sdkClients) Lambda(cfg aws.Config) LambdaAPI { return lambda.NewFromConfig(cfg) }
func (sdkClients) STS(cfg aws.Config) STSAPI       { return sts.NewFromConfig(cfg) }

// Session derives a configuration for a single call from base, replacing its
// credential chain with the caller's static keys. The HTTP client of base is
// shared, so connections are reused across calls. SDK retries are disabled.
func Session(base aws.Config, creds domain.Credentials) aws.Config {
	cfg := base.Copy()
	cfg.Region = creds.Region
	cfg.Credentials = aws.NewCredentialsCache(
		credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
	)
	cfg.Retryer = func() aws.Retryer { return aws.NopRetryer{} }
	return cfg
}
