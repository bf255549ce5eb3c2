package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloudpilot/internal/domain"
)

const (
	systemPrompt = "You are CloudPilot, an AI assistant specialized in AWS cloud operations. " +
		"You can help with AWS infrastructure management, security best practices, " +
		"and resource optimization."

	credentialsPrompt = "I'll need your AWS credentials to perform this operation. " +
		"Don't worry - your credentials will be used securely and only for this specific task. " +
		"Please provide them in the prompt."

	policyParseError   = "Could not parse policy"
	policyExplanation  = "Policy generated based on provided description"
	credentialsArgName = "awsCredentials"
)

// withSystemPrompt prepends the CloudPilot system prompt unless the
// conversation already carries a system message.
func withSystemPrompt(messages []domain.ChatMessage) []domain.ChatMessage {
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			return messages
		}
	}
	out := make([]domain.ChatMessage, 0, len(messages)+1)
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	return append(out, messages...)
}

func buildReviewPrompt(operation map[string]any) (string, error) {
	opJSON, err := json.MarshalIndent(operation, "", "  ")
	if err != nil {
		return "", fmt.Errorf("usecase: marshal operation: %w", err)
	}
	return strings.Join([]string{
		"Please analyze this AWS operation for potential security issues, best practices, and validate its parameters:",
		"",
		"Operation: " + string(opJSON),
		"",
		"Provide your analysis in the following JSON format:",
		verdictContract(),
		"",
		"Consider these security aspects:",
		"1. Principle of least privilege",
		"2. Resource naming conventions",
		"3. Access control settings",
		"4. Data security implications",
		"5. Cost implications",
		"",
		"Return the JSON object only.",
	}, "\n"), nil
}

func verdictContract() string {
	return strings.Join([]string{
		"{",
		`    "is_valid": boolean,`,
		`    "security_concerns": [list of strings],`,
		`    "best_practice_suggestions": [list of strings],`,
		`    "parameter_validation": {`,
		`        "valid_parameters": [list of strings],`,
		`        "invalid_parameters": [list of strings],`,
		`        "missing_parameters": [list of strings]`,
		`    },`,
		`    "recommendation": "string"`,
		"}",
	}, "\n")
}

func buildPolicyPrompt(in SuggestPolicyInput) string {
	lines := []string{
		"Please suggest an AWS IAM policy based on this description of required permissions:",
		"",
		"Description: " + strings.TrimSpace(in.Description),
	}
	if s := strings.TrimSpace(in.Service); s != "" {
		lines = append(lines, "Service: "+s)
	}
	if len(in.ResourceARNs) > 0 {
		lines = append(lines, "Resource ARNs: "+strings.Join(in.ResourceARNs, ", "))
	}
	return strings.Join(append(lines,
		"",
		"Provide your response as a valid IAM policy JSON document with minimal required permissions following the principle of least privilege.",
		"Return the JSON document only, without comments or surrounding text.",
		"",
		"Consider:",
		"1. Use specific resource ARNs where possible",
		"2. Avoid overly permissive actions (e.g., '*')",
		"3. Include necessary conditions",
		"4. Follow AWS security best practices",
	), "\n")
}

// invalidCredentialsVerdict is returned without consulting the model when the
// credentials do not resolve to an identity.
func invalidCredentialsVerdict(err error) domain.Verdict {
	return domain.Verdict{
		IsValid:          false,
		SecurityConcerns: []string{"Unable to validate AWS credentials"},
		BestPracticeSuggestions: []string{
			"Ensure the provided credentials are valid",
			"Ensure the credentials have sufficient permissions",
		},
		ParameterValidation: domain.ParameterValidation{
			ValidParameters:   []string{},
			InvalidParameters: []string{"credentials"},
			MissingParameters: []string{},
		},
		Recommendation: fmt.Sprintf("Please provide valid AWS credentials. Error: %v", err),
	}
}

// stripFence removes a surrounding markdown code fence, which models add
// around JSON even when told not to.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func decodeSingleJSON(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewBufferString(stripFence(raw)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("multiple JSON values")
		}
		return fmt.Errorf("trailing data: %w", err)
	}
	return nil
}

func parseVerdict(raw string) (domain.Verdict, error) {
	var fields map[string]json.RawMessage
	if err := decodeSingleJSON(raw, &fields); err != nil {
		return domain.Verdict{}, fmt.Errorf("usecase: decode verdict: %w", err)
	}
	if _, ok := fields["is_valid"]; !ok {
		return domain.Verdict{}, errors.New("usecase: verdict missing is_valid")
	}
	var v domain.Verdict
	if err := decodeSingleJSON(raw, &v); err != nil {
		return domain.Verdict{}, fmt.Errorf("usecase: decode verdict: %w", err)
	}
	return v, nil
}

func parsePolicy(raw string) (map[string]any, error) {
	var doc map[string]any
	if err := decodeSingleJSON(raw, &doc); err != nil {
		return nil, fmt.Errorf("usecase: decode policy: %w", err)
	}
	if doc == nil {
		return nil, errors.New("usecase: policy is not a JSON object")
	}
	return doc, nil
}
