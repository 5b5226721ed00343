// Package httpapi holds the response envelope, error mapping and result
// caching shared by the module HTTP handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Error codes for failures that are not validation results.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodePortfolioNotFound = "PORTFOLIO_NOT_FOUND"
	CodeInfeasible        = "OPTIMIZATION_INFEASIBLE"
	CodeTimeout           = "TIMEOUT"
	CodeCancelled         = "CANCELLED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeBodyTooLarge      = "BODY_TOO_LARGE"
)

// ErrorBody is the error member of a failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the shape of every JSON response.
type Envelope struct {
	Data       any                `json:"data"`
	Error      *ErrorBody         `json:"error,omitempty"`
	Validation *validation.Result `json:"validation,omitempty"`
	Metadata   Metadata           `json:"metadata"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp string `json:"timestamp"`
	Cached    bool   `json:"cached,omitempty"`
}

func metadata() Metadata {
	return Metadata{Timestamp: time.Now().Format(time.RFC3339)}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Respond writes data inside the standard envelope.
func Respond(w http.ResponseWriter, log zerolog.Logger, status int, data any) {
	WriteJSON(w, log, status, Envelope{Data: data, Metadata: metadata()})
}

// RespondCached writes data marked as served from the result cache.
func RespondCached(w http.ResponseWriter, log zerolog.Logger, data any) {
	md := metadata()
	md.Cached = true
	WriteJSON(w, log, http.StatusOK, Envelope{Data: data, Metadata: md})
}

// RespondValidation writes 422 with the full validation result.
func RespondValidation(w http.ResponseWriter, log zerolog.Logger, res validation.Result) {
	WriteJSON(w, log, http.StatusUnprocessableEntity, Envelope{
		Error:      &ErrorBody{Code: CodeValidationFailed, Message: "request failed validation"},
		Validation: &res,
		Metadata:   metadata(),
	})
}

// RespondError writes an error envelope. data may carry a partial result.
func RespondError(w http.ResponseWriter, log zerolog.Logger, status int, code, message string, data any) {
	WriteJSON(w, log, status, Envelope{
		Data:     data,
		Error:    &ErrorBody{Code: code, Message: message},
		Metadata: metadata(),
	})
}

// StatusFor maps an engine error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound):
		return http.StatusNotFound, CodePortfolioNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, CodeCancelled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// RespondErr maps err with StatusFor and writes it. Internal errors are
// logged and their message is not exposed.
func RespondErr(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	}
	RespondError(w, log, status, code, message, nil)
}

// ReadBody reads a bounded request body.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}

// RespondBodyError writes 413 for oversized bodies and 400 otherwise.
func RespondBodyError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(w, log, http.StatusRequestEntityTooLarge, CodeBodyTooLarge, "request body too large", nil)
		return
	}
	RespondError(w, log, http.StatusBadRequest, validation.CodeMalformedBody, err.Error(), nil)
}
