package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/require"

	"cloudpilot/internal/domain"
	"cloudpilot/internal/integrations/bedrock"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type mockCompleter struct {
	reply   string
	err     error
	prompts []string
	configs []aws.Config
}

func (m *mockCompleter) Complete(_ context.Context, cfg aws.Config, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.configs = append(m.configs, cfg)
	return m.reply, m.err
}

type fakeAccounts struct {
	identity    domain.Identity
	err         error
	sessions    int
	identityCfg aws.Config
}

func (f *fakeAccounts) Session(creds domain.Credentials) aws.Config {
	f.sessions++
	return aws.Config{
		Region:      creds.Region,
		Credentials: credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
	}
}

func (f *fakeAccounts) CallerIdentity(_ context.Context, cfg aws.Config) (domain.Identity, error) {
	f.identityCfg = cfg
	return f.identity, f.err
}

const validVerdict = `{
	"is_valid": true,
	"security_concerns": [],
	"best_practice_suggestions": ["Enable versioning"],
	"parameter_validation": {"valid_parameters": ["bucket_name"], "invalid_parameters": [], "missing_parameters": []},
	"recommendation": "Proceed"
}`

func newTestReview(t *testing.T, model Completer, accounts AccountGateway, opts ...ReviewOption) *ReviewService {
	t.Helper()
	svc, err := NewReviewService(model, accounts, opts...)
	require.NoError(t, err)
	return svc
}

func okAccounts() *fakeAccounts {
	return &fakeAccounts{identity: domain.Identity{Account: "123456789012", ARN: "arn:aws:iam::123456789012:user/dev"}}
}

func createBucketOp() map[string]any {
	return map[string]any{
		"operation":      "create_s3_bucket",
		"bucket_name":    "team-logs",
		"awsCredentials": map[string]any{"accessKeyId": "AKIAEXAMPLE", "secretAccessKey": "top-secret"},
	}
}

func TestNewReviewService_ValidatesDependencies(t *testing.T) {
	_, err := NewReviewService(nil, &fakeAccounts{})
	require.Error(t, err)
	_, err = NewReviewService(&mockCompleter{}, nil)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// ReviewOperation
// ---------------------------------------------------------------------------

func TestReviewOperation_ReturnsVerdict(t *testing.T) {
	model := &mockCompleter{reply: validVerdict}
	accounts := okAccounts()
	svc := newTestReview(t, model, accounts)

	v, err := svc.ReviewOperation(context.Background(), createBucketOp(), validCreds())
	require.NoError(t, err)
	require.True(t, v.IsValid)
	require.Equal(t, []string{"Enable versioning"}, v.BestPracticeSuggestions)
	require.Equal(t, []string{"bucket_name"}, v.ParameterValidation.ValidParameters)
	require.Equal(t, "Proceed", v.Recommendation)

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	require.Contains(t, prompt, `"bucket_name": "team-logs"`)
	require.Contains(t, prompt, `"is_valid": boolean`)
	require.NotContains(t, prompt, "top-secret")
	require.NotContains(t, prompt, "awsCredentials")
	require.Equal(t, "ap-south-1", model.configs[0].Region)
	require.Equal(t, "ap-south-1", accounts.identityCfg.Region)
}

func TestReviewOperation_FencedVerdict(t *testing.T) {
	model := &mockCompleter{reply: "```json\n" + validVerdict + "\n```"}
	svc := newTestReview(t, model, okAccounts())

	v, err := svc.ReviewOperation(context.Background(), createBucketOp(), validCreds())
	require.NoError(t, err)
	require.True(t, v.IsValid)
}

func TestReviewOperation_InvalidCredentials_SkipsModel(t *testing.T) {
	model := &mockCompleter{reply: validVerdict}
	accounts := &fakeAccounts{err: errors.New("InvalidClientTokenId: The security token included in the request is invalid")}
	svc := newTestReview(t, model, accounts)

	v, err := svc.ReviewOperation(context.Background(), createBucketOp(), validCreds())
	require.NoError(t, err)
	require.False(t, v.IsValid)
	require.Equal(t, []string{"Unable to validate AWS credentials"}, v.SecurityConcerns)
	require.Equal(t, []string{"credentials"}, v.ParameterValidation.InvalidParameters)
	require.Contains(t, v.Recommendation, "InvalidClientTokenId")
	require.Empty(t, model.prompts)
}

func TestReviewOperation_CredentialResolution(t *testing.T) {
	fallback := aws.Config{
		Region:      "eu-west-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIADEFAULT", "s", ""),
	}

	t.Run("request credentials win over fallback", func(t *testing.T) {
		model := &mockCompleter{reply: validVerdict}
		accounts := okAccounts()
		svc := newTestReview(t, model, accounts, WithFallbackConfig(fallback))

		_, err := svc.ReviewOperation(context.Background(), createBucketOp(), validCreds())
		require.NoError(t, err)
		require.Equal(t, 1, accounts.sessions)
		require.Equal(t, "ap-south-1", model.configs[0].Region)
	})

	t.Run("fallback when request has none", func(t *testing.T) {
		model := &mockCompleter{reply: validVerdict}
		accounts := okAccounts()
		svc := newTestReview(t, model, accounts, WithFallbackConfig(fallback))

		_, err := svc.ReviewOperation(context.Background(), createBucketOp(), nil)
		require.NoError(t, err)
		require.Zero(t, accounts.sessions)
		require.Equal(t, "eu-west-1", model.configs[0].Region)
	})

	t.Run("fallback without credentials is ignored", func(t *testing.T) {
		svc := newTestReview(t, &mockCompleter{}, okAccounts(), WithFallbackConfig(aws.Config{Region: "eu-west-1"}))

		_, err := svc.ReviewOperation(context.Background(), createBucketOp(), &domain.Credentials{AccessKeyID: "AKIA"})
		expectError(t, err, ErrorCredentialsRequired, "credentials_missing")
	})
}

func TestReviewOperation_Failures(t *testing.T) {
	cases := []struct {
		name   string
		model  *mockCompleter
		op     map[string]any
		code   ErrorCode
		reason string
	}{
		{"empty operation", &mockCompleter{}, map[string]any{}, ErrorInvalidInput, "empty_operation"},
		{"not json", &mockCompleter{reply: "Looks fine to me."}, createBucketOp(), ErrorMalformedResponse, "verdict_malformed"},
		{"missing is_valid", &mockCompleter{reply: `{"recommendation":"ok"}`}, createBucketOp(), ErrorMalformedResponse, "verdict_malformed"},
		{"trailing text", &mockCompleter{reply: validVerdict + " Hope this helps"}, createBucketOp(), ErrorMalformedResponse, "verdict_malformed"},
		{"access denied", &mockCompleter{err: &bedrock.Error{Kind: bedrock.KindAccessDenied}}, createBucketOp(), ErrorPermissionDenied, "bedrock_access_denied"},
		{"throttled", &mockCompleter{err: &bedrock.Error{Kind: bedrock.KindThrottled}}, createBucketOp(), ErrorRateLimited, "bedrock_throttled"},
		{"validation", &mockCompleter{err: &bedrock.Error{Kind: bedrock.KindValidation}}, createBucketOp(), ErrorUpstreamBadRequest, "bedrock_validation"},
		{"empty completion", &mockCompleter{err: &bedrock.Error{Kind: bedrock.KindEmptyCompletion}}, createBucketOp(), ErrorMalformedResponse, "bedrock_empty_completion"},
		{"connection", &mockCompleter{err: &bedrock.Error{Kind: bedrock.KindConnection}}, createBucketOp(), ErrorUpstream, "bedrock_connection"},
		{"unclassified", &mockCompleter{err: errors.New("boom")}, createBucketOp(), ErrorUpstream, "bedrock_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestReview(t, tc.model, okAccounts())
			_, err := svc.ReviewOperation(context.Background(), tc.op, validCreds())
			expectError(t, err, tc.code, tc.reason)
		})
	}
}

// ---------------------------------------------------------------------------
// SuggestPolicy
// ---------------------------------------------------------------------------

func TestSuggestPolicy_ReturnsPolicyWithWarnings(t *testing.T) {
	model := &mockCompleter{reply: `{
		"Version": "2012-10-17",
		"Statement": [{"Effect": "Allow", "Action": "s3:*", "Resource": "*"}]
	}`}
	svc := newTestReview(t, model, okAccounts())

	out, err := svc.SuggestPolicy(context.Background(), SuggestPolicyInput{
		Description:  "read objects in the reports bucket",
		Service:      "s3",
		ResourceARNs: []string{"arn:aws:s3:::reports", "arn:aws:s3:::reports/*"},
	}, validCreds())
	require.NoError(t, err)
	require.True(t, out.Parsed())
	require.Equal(t, "2012-10-17", out.Policy["Version"])
	require.Equal(t, []string{
		"Statement 1 allows every s3 action",
		"Statement 1 applies to all resources without conditions",
	}, out.Warnings)

	prompt := model.prompts[0]
	require.Contains(t, prompt, "Description: read objects in the reports bucket")
	require.Contains(t, prompt, "Service: s3")
	require.Contains(t, prompt, "Resource ARNs: arn:aws:s3:::reports, arn:aws:s3:::reports/*")
}

func TestSuggestPolicy_UnparseableOutput(t *testing.T) {
	model := &mockCompleter{reply: "I would recommend granting s3:GetObject."}
	svc := newTestReview(t, model, okAccounts())

	out, err := svc.SuggestPolicy(context.Background(), SuggestPolicyInput{Description: "read a bucket"}, validCreds())
	require.NoError(t, err)
	require.False(t, out.Parsed())
	require.Equal(t, policyParseError, out.Error)
	require.Equal(t, "I would recommend granting s3:GetObject.", out.Response)
}

func TestSuggestPolicy_Failures(t *testing.T) {
	svc := newTestReview(t, &mockCompleter{}, okAccounts())
	_, err := svc.SuggestPolicy(context.Background(), SuggestPolicyInput{Description: "  "}, validCreds())
	expectError(t, err, ErrorInvalidInput, "empty_description")

	_, err = svc.SuggestPolicy(context.Background(), SuggestPolicyInput{Description: "x"}, nil)
	expectError(t, err, ErrorCredentialsRequired, "credentials_missing")

	svc = newTestReview(t, &mockCompleter{err: &bedrock.Error{Kind: bedrock.KindThrottled}}, okAccounts())
	_, err = svc.SuggestPolicy(context.Background(), SuggestPolicyInput{Description: "x"}, validCreds())
	expectError(t, err, ErrorRateLimited, "bedrock_throttled")
}

// ---------------------------------------------------------------------------
// lintPolicy
// ---------------------------------------------------------------------------

func TestLintPolicy(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]any
		want []string
	}{
		{
			"scoped policy",
			map[string]any{"Version": "2012-10-17", "Statement": []any{
				map[string]any{"Effect": "Allow", "Action": []any{"s3:GetObject"}, "Resource": "arn:aws:s3:::reports/*"},
			}},
			[]string{},
		},
		{
			"missing version and wildcard action",
			map[string]any{"Statement": map[string]any{"Effect": "Allow", "Action": "*", "Resource": "arn:aws:s3:::x"}},
			[]string{`Policy has no Version; use "2012-10-17"`, "Statement 1 allows all actions"},
		},
		{
			"conditioned wildcard resource",
			map[string]any{"Version": "2012-10-17", "Statement": []any{
				map[string]any{"Effect": "Deny", "Action": "*", "Resource": "*"},
				map[string]any{"Effect": "Allow", "Action": "ec2:DescribeInstances", "Resource": "*", "Condition": map[string]any{}},
			}},
			[]string{"Statement 2 applies to all resources"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, lintPolicy(tc.doc))
		})
	}
}

// ---------------------------------------------------------------------------
// parsing helpers
// ---------------------------------------------------------------------------

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  \n{\"a\":1}\n  ":       `{"a":1}`,
	}
	for in, want := range cases {
		require.Equal(t, want, stripFence(in), "input=%q", in)
	}
}

func TestParsePolicy(t *testing.T) {
	doc, err := parsePolicy(`{"Version":"2012-10-17"}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"Version": "2012-10-17"}, doc)

	for _, raw := range []string{"", "null", `["s3:GetObject"]`, `{"a":1}{"b":2}`} {
		_, err := parsePolicy(raw)
		require.Error(t, err, "raw=%q", raw)
	}
}

func TestWithSystemPrompt_DoesNotMutateInput(t *testing.T) {
	in := userSays("hi")
	out := withSystemPrompt(in)
	require.Len(t, in, 1)
	require.Len(t, out, 2)
	require.Equal(t, domain.RoleSystem, out[0].Role)
}
