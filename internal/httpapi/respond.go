package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"cloudpilot/internal/usecase"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code usecase.ErrorCode, detail string) {
	writeJSON(w, status, errorResponse{Error: string(code), Detail: detail})
}

// writeUsecaseError maps err onto an HTTP status and the error body.
func writeUsecaseError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	attrs := []any{"err", err, "code", code, "correlation_id", CorrelationIDFrom(r.Context())}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Warn("request rejected", attrs...)
	}
	writeError(w, status, code, detailFor(err))
}

func statusFor(err error) (int, usecase.ErrorCode) {
	var uErr *usecase.Error
	if !errors.As(err, &uErr) {
		return http.StatusInternalServerError, usecase.ErrorInternal
	}
	switch uErr.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorUpstreamBadRequest:
		return http.StatusBadRequest, uErr.Code
	case usecase.ErrorUpstreamUnauthorized:
		return http.StatusUnauthorized, uErr.Code
	case usecase.ErrorPermissionDenied:
		return http.StatusForbidden, uErr.Code
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, uErr.Code
	case usecase.ErrorUpstream, usecase.ErrorMalformedResponse:
		return http.StatusBadGateway, uErr.Code
	}
	return http.StatusInternalServerError, usecase.ErrorInternal
}

func detailFor(err error) string {
	var uErr *usecase.Error
	if errors.As(err, &uErr) {
		return uErr.Reason
	}
	return "internal error"
}

func isCredentialsRequired(err error) bool {
	var uErr *usecase.Error
	return errors.As(err, &uErr) && uErr.Code == usecase.ErrorCredentialsRequired
}

// decodeBody reads a single JSON value from the request body.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}
