package domain

import "encoding/json"

// Status discriminates the outcome of a cloud operation.
type Status int

const (
	StatusOK Status = iota
	StatusNeedsCredentials
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNeedsCredentials:
		return "needs_credentials"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the envelope returned by every cloud operation. Data is only
// meaningful when Status is StatusOK.
type Result[T any] struct {
	Status  Status
	Data    T
	Message string
}

func OK[T any](data T, message string) Result[T] {
	return Result[T]{Status: StatusOK, Data: data, Message: message}
}

func NeedsCredentials[T any](message string) Result[T] {
	return Result[T]{Status: StatusNeedsCredentials, Message: message}
}

func Failed[T any](message string) Result[T] {
	return Result[T]{Status: StatusFailed, Message: message}
}

func (r Result[T]) Success() bool             { return r.Status == StatusOK }
func (r Result[T]) RequiresCredentials() bool { return r.Status == StatusNeedsCredentials }

// Erase drops the static payload type so results of different operations can
// flow through one dispatch path.
func (r Result[T]) Erase() Result[any] {
	out := Result[any]{Status: r.Status, Message: r.Message}
	if r.Status == StatusOK {
		out.Data = r.Data
	}
	return out
}

type resultJSON struct {
	Success             bool   `json:"success"`
	Data                any    `json:"data,omitempty"`
	Message             string `json:"message"`
	RequiresCredentials bool   `json:"requiresCredentials"`
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Success:             r.Success(),
		Message:             r.Message,
		RequiresCredentials: r.RequiresCredentials(),
	}
	if r.Success() {
		out.Data = r.Data
	}
	return json.Marshal(out)
}
