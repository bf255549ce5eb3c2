package domain

// Verdict is the secondary model's assessment of a proposed AWS operation.
type Verdict struct {
	IsValid                 bool                `json:"is_valid"`
	SecurityConcerns        []string            `json:"security_concerns"`
	BestPracticeSuggestions []string            `json:"best_practice_suggestions"`
	ParameterValidation     ParameterValidation `json:"parameter_validation"`
	Recommendation          string              `json:"recommendation"`
}

type ParameterValidation struct {
	ValidParameters   []string `json:"valid_parameters"`
	InvalidParameters []string `json:"invalid_parameters"`
	MissingParameters []string `json:"missing_parameters"`
}

// PolicySuggestion holds either a generated policy document or, when the model
// output could not be parsed, the parse error and the raw model output.
type PolicySuggestion struct {
	Policy   map[string]any `json:"policy,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Error    string         `json:"error,omitempty"`
	Response string         `json:"response,omitempty"`
}

// Parsed reports whether a policy document was produced.
func (s PolicySuggestion) Parsed() bool {
	return s.Error == "" && s.Policy != nil
}
