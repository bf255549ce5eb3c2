package httpapi

import (
	"encoding/json"
	"net/http"

	"cloudpilot/internal/domain"
	"cloudpilot/internal/usecase"
)

const (
	credentialsKey      = "awsCredentials"
	policyExplanation   = "Policy generated based on provided description"
	credentialsRequired = "AWS credentials are required for this request. Please provide them securely."
)

type chatRequest struct {
	Messages       []domain.ChatMessage `json:"messages"`
	AWSCredentials *domain.Credentials  `json:"awsCredentials,omitempty"`
}

type policyRequest struct {
	Description    string              `json:"description"`
	Service        string              `json:"service,omitempty"`
	ResourceARNs   []string            `json:"resource_arns,omitempty"`
	AWSCredentials *domain.Credentials `json:"awsCredentials,omitempty"`
}

type policyResponse struct {
	PolicyDocument      map[string]any `json:"policy_document,omitempty"`
	Explanation         string         `json:"explanation,omitempty"`
	Warnings            []string       `json:"warnings"`
	RequiresCredentials bool           `json:"requiresCredentials,omitempty"`
}

type credentialsResponse struct {
	Message             string `json:"message"`
	RequiresCredentials bool   `json:"requiresCredentials"`
}

func (a *api) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to CloudPilot API"})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid request body")
		return
	}

	out, err := a.chat.Chat(r.Context(), usecase.ChatInput{Messages: req.Messages, Credentials: req.AWSCredentials})
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleSuggestPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid request body")
		return
	}

	in := usecase.SuggestPolicyInput{Description: req.Description, Service: req.Service, ResourceARNs: req.ResourceARNs}
	suggestion, err := a.review.SuggestPolicy(r.Context(), in, req.AWSCredentials)
	if err != nil {
		if isCredentialsRequired(err) {
			writeJSON(w, http.StatusOK, policyResponse{Warnings: []string{}, RequiresCredentials: true})
			return
		}
		writeUsecaseError(w, r, err)
		return
	}
	if !suggestion.Parsed() {
		writeError(w, http.StatusBadRequest, usecase.ErrorMalformedResponse, suggestion.Response)
		return
	}

	warnings := suggestion.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, policyResponse{
		PolicyDocument: suggestion.Policy,
		Explanation:    policyExplanation,
		Warnings:       warnings,
	})
}

func (a *api) handleValidateOperation(w http.ResponseWriter, r *http.Request) {
	var operation map[string]any
	if err := decodeBody(r, &operation); err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid request body")
		return
	}
	creds, err := operationCredentials(operation)
	if err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid awsCredentials")
		return
	}

	verdict, err := a.review.ReviewOperation(r.Context(), operation, creds)
	if err != nil {
		if isCredentialsRequired(err) {
			writeJSON(w, http.StatusOK, credentialsResponse{Message: credentialsRequired, RequiresCredentials: true})
			return
		}
		writeUsecaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

// operationCredentials extracts the optional awsCredentials entry of an
// operation body.
func operationCredentials(operation map[string]any) (*domain.Credentials, error) {
	raw, ok := operation[credentialsKey]
	if !ok || raw == nil {
		return nil, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var creds domain.Credentials
	if err := json.Unmarshal(buf, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}
