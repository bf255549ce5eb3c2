package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"cloudpilot/internal/domain"
	"cloudpilot/internal/integrations/openai"
)

const actionPrefix = "Successfully executed "

// LLMClient is the primary model. *openai.Client satisfies it.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, tools []domain.ToolDefinition) (domain.ChatMessage, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

var _ LLMClient = (*openai.Client)(nil)

type ChatService struct {
	llm      LLMClient
	model    string
	moderate bool
	tools    []domain.ToolDefinition
	handlers map[domain.Operation]toolHandler
}

type ChatOption func(*ChatService)

// WithModeration screens the latest user message before calling the model.
func WithModeration(enabled bool) ChatOption {
	return func(s *ChatService) {
		s.moderate = enabled
	}
}

type ChatInput struct {
	Messages    []domain.ChatMessage
	Credentials *domain.Credentials
}

func NewChatService(llm LLMClient, cloud CloudExecutor, advisor PolicyAdvisor, model string, opts ...ChatOption) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if cloud == nil {
		return nil, errors.New("usecase: cloud executor must not be nil")
	}
	if advisor == nil {
		return nil, errors.New("usecase: policy advisor must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	s := &ChatService{
		llm:      llm,
		model:    model,
		tools:    Tools(),
		handlers: newToolHandlers(cloud, advisor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Chat runs one conversation turn. The model may request tool calls, which are
// executed in order; the first call that fails or needs credentials ends the
// turn with that call's message.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (domain.ChatResponse, error) {
	if err := validateMessages(in.Messages); err != nil {
		return domain.ChatResponse{}, err
	}
	if s.moderate {
		if err := s.screen(ctx, in.Messages); err != nil {
			return domain.ChatResponse{}, err
		}
	}

	messages := withSystemPrompt(in.Messages)
	reply, err := s.llm.Chat(ctx, s.model, messages, s.tools)
	if err != nil {
		return domain.ChatResponse{}, llmError("openai", err)
	}

	resp := domain.ChatResponse{
		ActionsTaken:         []string{},
		AWSResourcesAffected: []domain.ResourceAction{},
	}
	if len(reply.ToolCalls) == 0 {
		resp.Response = reply.Content
		return resp, nil
	}

	for _, call := range reply.ToolCalls {
		op, ok := domain.ParseOperation(call.Function.Name)
		if !ok {
			return domain.ChatResponse{}, newError(ErrorMalformedResponse, "unknown_tool", errors.New(call.Function.Name))
		}
		params, raw, err := parseArguments(call.Function.Arguments)
		if err != nil {
			return domain.ChatResponse{}, newError(ErrorMalformedResponse, "tool_arguments_invalid", err)
		}
		slog.Info("processing tool call", "tool", op.String(), "call_id", call.ID)

		if op.RequiresCredentials() && !in.Credentials.Complete() {
			return needsCredentials(credentialsPrompt), nil
		}

		res, err := s.handlers[op](ctx, in.Credentials, raw)
		if err != nil {
			return domain.ChatResponse{}, err
		}
		switch res.Status {
		case domain.StatusNeedsCredentials:
			return needsCredentials(res.Message), nil
		case domain.StatusFailed:
			resp.Response = res.Message
			return resp, nil
		}

		resp.ActionsTaken = append(resp.ActionsTaken, actionPrefix+op.String())
		if op.RequiresCredentials() {
			resp.AWSResourcesAffected = append(resp.AWSResourcesAffected, domain.ResourceAction{
				Operation:  op.String(),
				Parameters: params,
			})
		}

		content, err := json.Marshal(res.Data)
		if err != nil {
			return domain.ChatResponse{}, newError(ErrorInternal, "tool_result_not_serializable", err)
		}
		messages = append(messages,
			domain.ChatMessage{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{call}},
			domain.ChatMessage{Role: domain.RoleTool, ToolCallID: call.ID, Name: op.String(), Content: string(content)},
		)
	}

	final, err := s.llm.Chat(ctx, s.model, messages, nil)
	if err != nil {
		return domain.ChatResponse{}, llmError("openai_final", err)
	}
	resp.Response = final.Content
	return resp, nil
}

func (s *ChatService) screen(ctx context.Context, messages []domain.ChatMessage) error {
	latest := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			latest = messages[i].Content
			break
		}
	}
	if strings.TrimSpace(latest) == "" {
		return nil
	}
	flagged, err := s.llm.Moderate(ctx, latest)
	if err != nil {
		return llmError("moderation", err)
	}
	if flagged {
		return newError(ErrorInvalidInput, "moderation_flagged", nil)
	}
	return nil
}

func validateMessages(messages []domain.ChatMessage) error {
	if len(messages) == 0 {
		return newError(ErrorInvalidInput, "empty_messages", nil)
	}
	for _, m := range messages {
		if !domain.ValidRole(m.Role) {
			return newError(ErrorInvalidInput, "invalid_role", errors.New(m.Role))
		}
	}
	return nil
}

// parseArguments decodes the model's argument text. It returns the arguments
// as a record with credential keys removed, and as raw JSON for decoding.
func parseArguments(text string) (map[string]any, json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return map[string]any{}, nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(text), &params); err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	delete(params, credentialsArgName)
	delete(params, "credentials")
	return params, json.RawMessage(text), nil
}

func needsCredentials(message string) domain.ChatResponse {
	return domain.ChatResponse{
		Response:             message,
		ActionsTaken:         []string{},
		AWSResourcesAffected: []domain.ResourceAction{},
		RequiresCredentials:  true,
	}
}
