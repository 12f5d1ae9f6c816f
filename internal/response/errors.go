package response

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies a domain error into the HTTP status and message policy
// it maps to at the boundary.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindInternal
)

// Error is the typed error surfaced by use cases. Message is safe to show
// to clients; Err is the internal cause and is only ever logged.
type Error struct {
	Kind       Kind
	Message    string
	Fields     map[string]string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Message: "Access denied"}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "An internal error occurred", Err: err}
}

// WriteError maps a domain error to status + envelope. Every error gets a
// fresh correlation id; the specific cause stays in the server log while
// the client only sees the kind's message.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	correlationID := uuid.NewString()

	var domainErr *Error
	if !errors.As(err, &domainErr) {
		domainErr = Internal(err)
	}

	status := statusFor(domainErr.Kind)
	message := domainErr.Message

	switch domainErr.Kind {
	case KindInternal:
		sentry.CaptureException(err)
		logger.Error("request_failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		message = "An internal error occurred. Please contact support with correlation ID: " + correlationID
	default:
		logger.Warn("request_rejected",
			zap.String("correlation_id", correlationID),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	if domainErr.Kind == KindRateLimited && domainErr.RetryAfter > 0 {
		retryAfter := int(domainErr.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	var data any
	if domainErr.Kind == KindValidation && len(domainErr.Fields) > 0 {
		data = domainErr.Fields
	}

	writeJSON(w, status, Envelope{
		Success:       false,
		Message:       message,
		Data:          data,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID,
	})
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
