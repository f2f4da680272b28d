package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/queryir"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// statusFor maps engine error codes to HTTP statuses.
var statusFor = map[ir.ErrorCode]int{
	ir.ErrCodeEmptyBatch:         http.StatusBadRequest,
	ir.ErrCodeInvalidOperation:   http.StatusBadRequest,
	ir.ErrCodeBatchTooLarge:      http.StatusRequestEntityTooLarge,
	ir.ErrCodeBufferTooSmall:     http.StatusInternalServerError,
	ir.ErrCodeInvalidHandle:      http.StatusInternalServerError,
	ir.ErrCodeStaleHandle:        http.StatusInternalServerError,
	ir.ErrCodeReleased:           http.StatusInternalServerError,
	ir.ErrCodeNotInitialized:     http.StatusServiceUnavailable,
	ir.ErrCodeAlreadyInitialized: http.StatusInternalServerError,
	ir.ErrCodeClosed:             http.StatusServiceUnavailable,
	ir.ErrCodePersistFailed:      http.StatusInternalServerError,
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, body := http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: err.Error()}

	var ee *ir.EngineError
	var pe *queryir.ParseError
	var qe *bridge.QueryError
	switch {
	case errors.As(err, &ee):
		body = errorBody{Code: string(ee.Code), Message: ee.Message, Details: ee.Details}
		if st, ok := statusFor[ee.Code]; ok {
			status = st
		}
	case errors.As(err, &pe):
		status = http.StatusBadRequest
		body = errorBody{Code: "PARSE_ERROR", Message: pe.Message, Details: map[string]string{"offset": strconv.Itoa(pe.Offset)}}
	case errors.As(err, &qe):
		status = http.StatusBadRequest
		body.Code = "INVALID_QUERY"
	case errors.Is(err, bridge.ErrNoStore):
		status = http.StatusNotImplemented
		body.Code = "NO_STORE"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		body.Code = "CANCELLED"
	}

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "request failed", "status", status, "code", body.Code, "error", err)
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func badRequest(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {Code: code, Message: msg}})
}
