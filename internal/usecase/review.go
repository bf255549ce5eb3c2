package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"cloudpilot/internal/awstools"
	"cloudpilot/internal/domain"
	"cloudpilot/internal/integrations/bedrock"
)

// Completer sends a single prompt to the secondary model.
type Completer interface {
	Complete(ctx context.Context, cfg aws.Config, prompt string) (string, error)
}

// AccountGateway builds per-request AWS configurations and resolves the
// identity behind them.
type AccountGateway interface {
	Session(creds domain.Credentials) aws.Config
	CallerIdentity(ctx context.Context, cfg aws.Config) (domain.Identity, error)
}

var (
	_ Completer      = (*bedrock.Client)(nil)
	_ AccountGateway = (*awstools.Executor)(nil)
)

type ReviewService struct {
	model    Completer
	accounts AccountGateway
	fallback *aws.Config
}

type ReviewOption func(*ReviewService)

// WithFallbackConfig sets the configuration used when a request carries no
// credentials of its own.
func WithFallbackConfig(cfg aws.Config) ReviewOption {
	return func(s *ReviewService) {
		if cfg.Credentials != nil {
			s.fallback = &cfg
		}
	}
}

type SuggestPolicyInput struct {
	Description  string   `json:"description"`
	Service      string   `json:"service,omitempty"`
	ResourceARNs []string `json:"resource_arns,omitempty"`
}

func NewReviewService(model Completer, accounts AccountGateway, opts ...ReviewOption) (*ReviewService, error) {
	if model == nil {
		return nil, errors.New("usecase: review model must not be nil")
	}
	if accounts == nil {
		return nil, errors.New("usecase: account gateway must not be nil")
	}
	s := &ReviewService{model: model, accounts: accounts}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ReviewOperation asks the secondary model to assess operation. Credentials
// that do not resolve to an identity yield a fixed negative verdict.
func (s *ReviewService) ReviewOperation(ctx context.Context, operation map[string]any, creds *domain.Credentials) (domain.Verdict, error) {
	if len(operation) == 0 {
		return domain.Verdict{}, newError(ErrorInvalidInput, "empty_operation", nil)
	}
	cfg, err := s.resolveConfig(creds)
	if err != nil {
		return domain.Verdict{}, err
	}

	identity, err := s.accounts.CallerIdentity(ctx, cfg)
	if err != nil {
		slog.Warn("credential validation failed", "err", err)
		return invalidCredentialsVerdict(err), nil
	}
	slog.Info("validating operation", "principal", identity.ARN)

	prompt, err := buildReviewPrompt(withoutCredentials(operation))
	if err != nil {
		return domain.Verdict{}, newError(ErrorInvalidInput, "operation_not_serializable", err)
	}
	raw, err := s.model.Complete(ctx, cfg, prompt)
	if err != nil {
		return domain.Verdict{}, bedrockError(err)
	}
	verdict, err := parseVerdict(raw)
	if err != nil {
		return domain.Verdict{}, newError(ErrorMalformedResponse, "verdict_malformed", err)
	}
	return verdict, nil
}

// SuggestPolicy asks the secondary model for a least-privilege policy. Output
// that is not a JSON document is returned in the suggestion, not as an error.
func (s *ReviewService) SuggestPolicy(ctx context.Context, in SuggestPolicyInput, creds *domain.Credentials) (domain.PolicySuggestion, error) {
	if strings.TrimSpace(in.Description) == "" {
		return domain.PolicySuggestion{}, newError(ErrorInvalidInput, "empty_description", nil)
	}
	cfg, err := s.resolveConfig(creds)
	if err != nil {
		return domain.PolicySuggestion{}, err
	}

	raw, err := s.model.Complete(ctx, cfg, buildPolicyPrompt(in))
	if err != nil {
		return domain.PolicySuggestion{}, bedrockError(err)
	}
	policy, err := parsePolicy(raw)
	if err != nil {
		slog.Warn("policy suggestion not parseable", "err", err)
		return domain.PolicySuggestion{Error: policyParseError, Response: raw}, nil
	}
	return domain.PolicySuggestion{Policy: policy, Warnings: lintPolicy(policy)}, nil
}

func (s *ReviewService) resolveConfig(creds *domain.Credentials) (aws.Config, error) {
	if creds.Complete() {
		return s.accounts.Session(*creds), nil
	}
	if s.fallback != nil {
		return *s.fallback, nil
	}
	return aws.Config{}, newError(ErrorCredentialsRequired, "credentials_missing", nil)
}

func withoutCredentials(operation map[string]any) map[string]any {
	out := make(map[string]any, len(operation))
	for k, v := range operation {
		if k == credentialsArgName {
			continue
		}
		out[k] = v
	}
	return out
}

// lintPolicy reports overly broad grants in a policy document.
func lintPolicy(doc map[string]any) []string {
	warnings := []string{}
	if _, ok := doc["Version"]; !ok {
		warnings = append(warnings, `Policy has no Version; use "2012-10-17"`)
	}
	for i, stmt := range statements(doc["Statement"]) {
		if effect, _ := stmt["Effect"].(string); !strings.EqualFold(effect, "Allow") {
			continue
		}
		n := i + 1
		for _, action := range stringList(stmt["Action"]) {
			switch {
			case action == "*":
				warnings = append(warnings, fmt.Sprintf("Statement %d allows all actions", n))
			case strings.HasSuffix(action, ":*"):
				warnings = append(warnings, fmt.Sprintf("Statement %d allows every %s action", n, strings.TrimSuffix(action, ":*")))
			}
		}
		for _, resource := range stringList(stmt["Resource"]) {
			if resource != "*" {
				continue
			}
			if _, hasCondition := stmt["Condition"]; hasCondition {
				warnings = append(warnings, fmt.Sprintf("Statement %d applies to all resources", n))
			} else {
				warnings = append(warnings, fmt.Sprintf("Statement %d applies to all resources without conditions", n))
			}
		}
	}
	return warnings
}

func statements(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
