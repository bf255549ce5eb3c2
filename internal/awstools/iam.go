package awstools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"cloudpilot/internal/domain"
)

type Role struct {
	RoleName                 string     `json:"RoleName"`
	RoleID                   string     `json:"RoleId"`
	Arn                      string     `json:"Arn"`
	Path                     string     `json:"Path"`
	Description              string     `json:"Description,omitempty"`
	CreateDate               *time.Time `json:"CreateDate,omitempty"`
	MaxSessionDuration       int32      `json:"MaxSessionDuration,omitempty"`
	AssumeRolePolicyDocument any        `json:"AssumeRolePolicyDocument,omitempty"`
}

type AttachedPolicy struct {
	PolicyName string `json:"PolicyName"`
	PolicyArn  string `json:"PolicyArn"`
}

type RoleDetails struct {
	Role             Role             `json:"role"`
	AttachedPolicies []AttachedPolicy `json:"attached_policies"`
}

type CreatedRole struct {
	RoleName string `json:"role_name"`
	RoleArn  string `json:"role_arn"`
}

type PolicyAttachment struct {
	RoleName  string `json:"role_name"`
	PolicyArn string `json:"policy_arn"`
}

// DescribeRole returns roleName and the managed policies attached to it.
func (e *Executor) DescribeRole(ctx context.Context, creds *domain.Credentials, roleName string) domain.Result[RoleDetails] {
	roleName = strings.TrimSpace(roleName)
	if !creds.Complete() {
		return domain.NeedsCredentials[RoleDetails](fmt.Sprintf("To describe the IAM role '%s', I'll need your AWS credentials. Please provide them securely.", roleName))
	}
	if roleName == "" {
		return domain.Failed[RoleDetails]("A role name is required to describe an IAM role.")
	}
	text := failureText{
		action:   "access IAM roles",
		notFound: fmt.Sprintf("The IAM role '%s' does not exist", roleName),
		doing:    "describing IAM role",
	}
	client := e.clients.IAM(e.Session(*creds))

	out, err := client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)})
	if err != nil {
		return fail[RoleDetails](domain.OpDescribeRole, err, text)
	}

	policies := make([]AttachedPolicy, 0)
	p := iam.NewListAttachedRolePoliciesPaginator(client, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(roleName)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fail[RoleDetails](domain.OpDescribeRole, err, text)
		}
		for _, ap := range page.AttachedPolicies {
			policies = append(policies, AttachedPolicy{
				PolicyName: aws.ToString(ap.PolicyName),
				PolicyArn:  aws.ToString(ap.PolicyArn),
			})
		}
	}

	return domain.OK(RoleDetails{Role: summarizeRole(out.Role), AttachedPolicies: policies},
		fmt.Sprintf("Successfully retrieved details for IAM role '%s'", roleName))
}

// CreateRole creates roleName trusting the principals in trustPolicy.
func (e *Executor) CreateRole(ctx context.Context, creds *domain.Credentials, roleName string, trustPolicy map[string]any) domain.Result[CreatedRole] {
	roleName = strings.TrimSpace(roleName)
	if !creds.Complete() {
		return domain.NeedsCredentials[CreatedRole](fmt.Sprintf("To create the IAM role '%s', I'll need your AWS credentials. Please provide them securely.", roleName))
	}
	if roleName == "" {
		return domain.Failed[CreatedRole]("A role name is required to create an IAM role.")
	}
	if len(trustPolicy) == 0 {
		return domain.Failed[CreatedRole]("A trust policy document is required to create an IAM role.")
	}
	doc, err := json.Marshal(trustPolicy)
	if err != nil {
		return domain.Failed[CreatedRole](fmt.Sprintf("The policy document for role '%s' is not valid JSON: %v", roleName, err))
	}

	out, err := e.clients.IAM(e.Session(*creds)).CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(string(doc)),
	})
	if err != nil {
		if code, _ := ErrorCode(err); code == "EntityAlreadyExists" {
			return domain.Failed[CreatedRole](fmt.Sprintf("The IAM role '%s' already exists", roleName))
		}
		return fail[CreatedRole](domain.OpCreateRole, err, failureText{action: "create IAM roles", doing: "creating IAM role"})
	}
	created := CreatedRole{RoleName: roleName}
	if out != nil && out.Role != nil {
		created.RoleArn = aws.ToString(out.Role.Arn)
	}
	return domain.OK(created, fmt.Sprintf("Successfully created IAM role '%s'", roleName))
}

// AttachRolePolicy attaches the managed policy policyARN to roleName.
func (e *Executor) AttachRolePolicy(ctx context.Context, creds *domain.Credentials, roleName, policyARN string) domain.Result[PolicyAttachment] {
	roleName = strings.TrimSpace(roleName)
	policyARN = strings.TrimSpace(policyARN)
	if !creds.Complete() {
		return domain.NeedsCredentials[PolicyAttachment](fmt.Sprintf("To attach a policy to the IAM role '%s', I'll need your AWS credentials. Please provide them securely.", roleName))
	}
	if roleName == "" || policyARN == "" {
		return domain.Failed[PolicyAttachment]("Both a role name and a policy ARN are required to attach a policy.")
	}

	_, err := e.clients.IAM(e.Session(*creds)).AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyARN),
	})
	if err != nil {
		return fail[PolicyAttachment](domain.OpAttachRolePolicy, err, failureText{
			action:   "attach policies to IAM roles",
			notFound: fmt.Sprintf("The IAM role '%s' or policy '%s' does not exist", roleName, policyARN),
			doing:    "attaching IAM policy",
		})
	}
	return domain.OK(PolicyAttachment{RoleName: roleName, PolicyArn: policyARN},
		fmt.Sprintf("Successfully attached policy '%s' to IAM role '%s'", policyARN, roleName))
}

func summarizeRole(r *iamtypes.Role) Role {
	if r == nil {
		return Role{}
	}
	return Role{
		RoleName:                 aws.ToString(r.RoleName),
		RoleID:                   aws.ToString(r.RoleId),
		Arn:                      aws.ToString(r.Arn),
		Path:                     aws.ToString(r.Path),
		Description:              aws.ToString(r.Description),
		CreateDate:               r.CreateDate,
		MaxSessionDuration:       aws.ToInt32(r.MaxSessionDuration),
		AssumeRolePolicyDocument: decodePolicyDocument(aws.ToString(r.AssumeRolePolicyDocument)),
	}
}

// decodePolicyDocument undoes the URL encoding IAM applies to policy documents.
// The raw text is returned when it does not decode to JSON.
func decodePolicyDocument(raw string) any {
	if raw == "" {
		return nil
	}
	text := raw
	if unescaped, err := url.QueryUnescape(raw); err == nil {
		text = unescaped
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return text
	}
	return doc
}
