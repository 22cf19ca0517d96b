package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ppiankov/islamcheck/internal/model"
)

type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

// statusFor maps the error class to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUpstreamUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the client-facing detail for err. Validation messages are
// returned as-is since they only echo the request.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, model.ErrNotFound):
		return "Claim not found"
	case errors.Is(err, model.ErrResponseParse):
		return "Failed to parse AI response"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return "AI service is temporarily unavailable"
	case errors.Is(err, model.ErrConfiguration):
		return "AI service is not configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Analysis was interrupted, please retry"
	default:
		return "Internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Int("status", status),
			zap.Error(err))
	}

	body := errorBody{Detail: publicMessage(err)}
	if s.cfg.Debug && status != http.StatusUnprocessableEntity {
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}

// describeValidation flattens validator errors into one line
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min", "max":
			parts = append(parts, field+" must be "+fe.Tag()+" "+fe.Param())
		case "oneof":
			parts = append(parts, field+" must be one of "+fe.Param())
		default:
			parts = append(parts, field+" failed "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
