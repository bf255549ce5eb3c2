package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"cloudpilot/internal/integrations/bedrock"
)

type ErrorCode string

const (
	ErrorInvalidInput         ErrorCode = "INVALID_INPUT"
	ErrorCredentialsRequired  ErrorCode = "CREDENTIALS_REQUIRED"
	ErrorUpstreamUnauthorized ErrorCode = "UPSTREAM_UNAUTHORIZED"
	ErrorUpstreamBadRequest   ErrorCode = "UPSTREAM_BAD_REQUEST"
	ErrorRateLimited          ErrorCode = "RATE_LIMITED"
	ErrorPermissionDenied     ErrorCode = "PERMISSION_DENIED"
	ErrorMalformedResponse    ErrorCode = "MALFORMED_RESPONSE"
	ErrorUpstream             ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal             ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// llmError classifies a primary model failure by the upstream HTTP status.
func llmError(reasonPrefix string, err error) *Error {
	status, _ := upstreamStatusCode(err)
	switch status {
	case http.StatusUnauthorized:
		return newError(ErrorUpstreamUnauthorized, reasonPrefix+"_unauthorized", err)
	case http.StatusTooManyRequests:
		return newError(ErrorRateLimited, reasonPrefix+"_rate_limited", err)
	case http.StatusBadRequest:
		return newError(ErrorUpstreamBadRequest, reasonPrefix+"_bad_request", err)
	}
	return newError(ErrorUpstream, reasonPrefix+"_error", err)
}

// bedrockError classifies a secondary model failure by its kind.
func bedrockError(err error) *Error {
	var bErr *bedrock.Error
	if !errors.As(err, &bErr) {
		return newError(ErrorUpstream, "bedrock_error", err)
	}
	switch bErr.Kind {
	case bedrock.KindAccessDenied:
		return newError(ErrorPermissionDenied, "bedrock_access_denied", err)
	case bedrock.KindValidation:
		return newError(ErrorUpstreamBadRequest, "bedrock_validation", err)
	case bedrock.KindThrottled:
		return newError(ErrorRateLimited, "bedrock_throttled", err)
	case bedrock.KindEmptyCompletion, bedrock.KindMalformedResponse:
		return newError(ErrorMalformedResponse, "bedrock_"+string(bErr.Kind), err)
	}
	return newError(ErrorUpstream, "bedrock_"+string(bErr.Kind), err)
}
