package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cloudpilot/internal/domain"
	"cloudpilot/internal/usecase"
)

// ---------------------------------------------------------------------------
// stubs
// ---------------------------------------------------------------------------

type stubChat struct {
	out domain.ChatResponse
	err error
	in  usecase.ChatInput
}

func (s *stubChat) Chat(_ context.Context, in usecase.ChatInput) (domain.ChatResponse, error) {
	s.in = in
	return s.out, s.err
}

type stubReview struct {
	verdict    domain.Verdict
	suggestion domain.PolicySuggestion
	err        error

	operation map[string]any
	policyIn  usecase.SuggestPolicyInput
	creds     *domain.Credentials
}

func (s *stubReview) ReviewOperation(_ context.Context, operation map[string]any, creds *domain.Credentials) (domain.Verdict, error) {
	s.operation = operation
	s.creds = creds
	return s.verdict, s.err
}

func (s *stubReview) SuggestPolicy(_ context.Context, in usecase.SuggestPolicyInput, creds *domain.Credentials) (domain.PolicySuggestion, error) {
	s.policyIn = in
	s.creds = creds
	return s.suggestion, s.err
}

func newTestRouter(t *testing.T, chat *stubChat, review *stubReview) http.Handler {
	t.Helper()
	r, err := NewRouter(Dependencies{Chat: chat, Review: review, AllowedOrigins: []string{"http://localhost:5173"}})
	require.NoError(t, err)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func parseBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewRouter_ValidatesDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{Review: &stubReview{}})
	require.Error(t, err)
	_, err = NewRouter(Dependencies{Chat: &stubChat{}})
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// static routes and middleware
// ---------------------------------------------------------------------------

func TestRootAndHealth(t *testing.T) {
	h := newTestRouter(t, &stubChat{}, &stubReview{})

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"Welcome to CloudPilot API"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(CorrelationHeader))
}

func TestCorrelationID_Echoed(t *testing.T) {
	h := newTestRouter(t, &stubChat{}, &stubReview{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("x-correlation-id", "corr-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "corr-123", rec.Header().Get(CorrelationHeader))
}

func TestCorrelationID_InContext(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFrom(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(CorrelationHeader))
	require.Empty(t, CorrelationIDFrom(context.Background()))
}

func TestRequestLogger_WritesJSONLine(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	h := newTestRouter(t, &stubChat{}, &stubReview{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationHeader, "corr-log")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry), "every log line must be JSON")
		if entry["msg"] == "request" {
			line = entry
		}
	}
	require.NotNil(t, line, "no request line logged")
	require.Equal(t, "GET", line["method"])
	require.Equal(t, "/health", line["path"])
	require.EqualValues(t, http.StatusOK, line["status"])
	require.EqualValues(t, rec.Body.Len(), line["bytes"])
	require.Equal(t, "corr-log", line["correlation_id"])
	require.NotEmpty(t, line["request_id"])
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	h := newTestRouter(t, &stubChat{}, &stubReview{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// ---------------------------------------------------------------------------
// POST /chat
// ---------------------------------------------------------------------------

func TestChat_HappyPath(t *testing.T) {
	chat := &stubChat{out: domain.ChatResponse{
		Response:             "You have 2 buckets.",
		ActionsTaken:         []string{"Successfully executed get_s3_bucket_sizes"},
		AWSResourcesAffected: []domain.ResourceAction{{Operation: "get_s3_bucket_sizes", Parameters: map[string]any{}}},
	}}
	h := newTestRouter(t, chat, &stubReview{})

	rec := do(t, h, http.MethodPost, "/chat", `{
		"messages": [{"role":"user","content":"how big are my buckets?"}],
		"awsCredentials": {"accessKeyId":"AKIA","secretAccessKey":"s"},
		"user_id": "ignored"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "how big are my buckets?"}}, chat.in.Messages)
	require.Equal(t, &domain.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "s"}, chat.in.Credentials)

	out := parseBody[domain.ChatResponse](t, rec)
	require.Equal(t, "You have 2 buckets.", out.Response)
	require.Equal(t, chat.out.ActionsTaken, out.ActionsTaken)
	require.False(t, out.RequiresCredentials)
}

func TestChat_InvalidBody(t *testing.T) {
	chat := &stubChat{}
	h := newTestRouter(t, chat, &stubReview{})

	for _, body := range []string{`not-json`, `{"messages":[]}{}`} {
		rec := do(t, h, http.MethodPost, "/chat", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		out := parseBody[errorResponse](t, rec)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	}
	require.Nil(t, chat.in.Messages)
}

func TestChat_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_messages"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "unauthorized", err: &usecase.Error{Code: usecase.ErrorUpstreamUnauthorized, Reason: "openai_unauthorized"}, status: http.StatusUnauthorized, code: string(usecase.ErrorUpstreamUnauthorized)},
		{name: "bad request", err: &usecase.Error{Code: usecase.ErrorUpstreamBadRequest, Reason: "openai_bad_request"}, status: http.StatusBadRequest, code: string(usecase.ErrorUpstreamBadRequest)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "openai_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "permission denied", err: &usecase.Error{Code: usecase.ErrorPermissionDenied, Reason: "bedrock_access_denied"}, status: http.StatusForbidden, code: string(usecase.ErrorPermissionDenied)},
		{name: "malformed", err: &usecase.Error{Code: usecase.ErrorMalformedResponse, Reason: "unknown_tool"}, status: http.StatusBadGateway, code: string(usecase.ErrorMalformedResponse)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "openai_error"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "tool_result_not_serializable"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(t, &stubChat{err: tc.err}, &stubReview{})
			rec := do(t, h, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
			require.Equal(t, tc.status, rec.Code)

			out := parseBody[errorResponse](t, rec)
			require.Equal(t, tc.code, out.Error)
			require.NotEmpty(t, out.Detail)
		})
	}
}

func TestChat_CredentialsPromptPassesThrough(t *testing.T) {
	prompt := domain.ChatResponse{
		Response:             "To list your S3 buckets and their sizes, I'll need your AWS credentials. Please provide them securely.",
		ActionsTaken:         []string{},
		AWSResourcesAffected: []domain.ResourceAction{},
		RequiresCredentials:  true,
	}
	h := newTestRouter(t, &stubChat{out: prompt}, &stubReview{})
	rec := do(t, h, http.MethodPost, "/chat", `{"messages":[{"role":"user","content":"how big are my buckets?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, prompt, parseBody[domain.ChatResponse](t, rec))
}

// ---------------------------------------------------------------------------
// POST /suggest-iam-policy
// ---------------------------------------------------------------------------

func TestSuggestPolicy_HappyPath(t *testing.T) {
	review := &stubReview{suggestion: domain.PolicySuggestion{
		Policy:   map[string]any{"Version": "2012-10-17"},
		Warnings: []string{"Statement 1 applies to all resources without conditions"},
	}}
	h := newTestRouter(t, &stubChat{}, review)

	rec := do(t, h, http.MethodPost, "/suggest-iam-policy", `{"description":"read reports","service":"s3","resource_arns":["arn:aws:s3:::reports"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usecase.SuggestPolicyInput{Description: "read reports", Service: "s3", ResourceARNs: []string{"arn:aws:s3:::reports"}}, review.policyIn)
	require.Nil(t, review.creds)
	require.JSONEq(t, `{
		"policy_document": {"Version":"2012-10-17"},
		"explanation": "Policy generated based on provided description",
		"warnings": ["Statement 1 applies to all resources without conditions"]
	}`, rec.Body.String())
}

func TestSuggestPolicy_UnparsedOutputIs400(t *testing.T) {
	review := &stubReview{suggestion: domain.PolicySuggestion{Error: "Could not parse policy", Response: "I cannot help with that."}}
	h := newTestRouter(t, &stubChat{}, review)

	rec := do(t, h, http.MethodPost, "/suggest-iam-policy", `{"description":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := parseBody[errorResponse](t, rec)
	require.Equal(t, string(usecase.ErrorMalformedResponse), out.Error)
	require.Equal(t, "I cannot help with that.", out.Detail)
}

func TestSuggestPolicy_Errors(t *testing.T) {
	h := newTestRouter(t, &stubChat{}, &stubReview{err: &usecase.Error{Code: usecase.ErrorCredentialsRequired}})
	rec := do(t, h, http.MethodPost, "/suggest-iam-policy", `{"description":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"warnings":[],"requiresCredentials":true}`, rec.Body.String())

	h = newTestRouter(t, &stubChat{}, &stubReview{err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "bedrock_throttled"}})
	rec = do(t, h, http.MethodPost, "/suggest-iam-policy", `{"description":"x"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

// ---------------------------------------------------------------------------
// POST /validate-aws-operation
// ---------------------------------------------------------------------------

func TestValidateOperation_HappyPath(t *testing.T) {
	review := &stubReview{verdict: domain.Verdict{
		IsValid:          true,
		SecurityConcerns: []string{},
		Recommendation:   "Proceed",
	}}
	h := newTestRouter(t, &stubChat{}, review)

	rec := do(t, h, http.MethodPost, "/validate-aws-operation", `{
		"operation": "create_s3_bucket",
		"bucket_name": "team-logs",
		"awsCredentials": {"accessKeyId":"AKIA","secretAccessKey":"s","region":"eu-west-1"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, &domain.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "s", Region: "eu-west-1"}, review.creds)
	require.Equal(t, "team-logs", review.operation["bucket_name"])

	out := parseBody[domain.Verdict](t, rec)
	require.True(t, out.IsValid)
	require.Equal(t, "Proceed", out.Recommendation)
}

func TestValidateOperation_CredentialsRequired(t *testing.T) {
	review := &stubReview{err: &usecase.Error{Code: usecase.ErrorCredentialsRequired, Reason: "credentials_missing"}}
	h := newTestRouter(t, &stubChat{}, review)

	rec := do(t, h, http.MethodPost, "/validate-aws-operation", `{"operation":"list_ec2_instances"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, review.creds)
	out := parseBody[credentialsResponse](t, rec)
	require.True(t, out.RequiresCredentials)
}

func TestValidateOperation_BadInput(t *testing.T) {
	review := &stubReview{}
	h := newTestRouter(t, &stubChat{}, review)

	for _, body := range []string{`[1,2]`, `{"awsCredentials":"AKIA"}`} {
		rec := do(t, h, http.MethodPost, "/validate-aws-operation", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	require.Nil(t, review.operation)
}
