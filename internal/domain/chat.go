package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is the provider-agnostic chat message shape used by the HTTP layer,
// the orchestrator and the OpenAI integration. ToolCalls, ToolCallID and Name are
// only populated for turns produced while executing tool calls.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a function invocation requested by the model. Arguments is the raw
// JSON text exactly as the model produced it.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one function the model may call.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ValidRole reports whether role may appear in an inbound conversation.
func ValidRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ResourceAction records an operation executed on behalf of the user.
type ResourceAction struct {
	Operation  string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
}

// ChatResponse is the result of one conversation turn.
type ChatResponse struct {
	Response             string           `json:"response"`
	ActionsTaken         []string         `json:"actions_taken"`
	AWSResourcesAffected []ResourceAction `json:"aws_resources_affected"`
	RequiresCredentials  bool             `json:"requiresCredentials"`
	Error                string           `json:"error,omitempty"`
}
