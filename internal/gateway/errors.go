package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/plc-copilot/context-engine/internal/conversation"
	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// errorBody maps a service error to an HTTP status and error envelope
func errorBody(err error) (int, models.ErrorResponse) {
	var rateLimited *llm.RateLimitedError
	var unsupported *llm.UnsupportedParameterError
	var timeout *llm.TimeoutError

	switch {
	case errors.Is(err, conversation.ErrInvalidStage):
		return http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Code:  models.ErrCodeInvalidRequest,
		}
	case errors.Is(err, conversation.ErrConversationNotFound):
		return http.StatusNotFound, models.ErrorResponse{
			Error: "Conversation not found",
			Code:  models.ErrCodeNotFound,
		}
	case errors.As(err, &unsupported):
		details := map[string]string{"model": unsupported.Model}
		if unsupported.Param != "" {
			details["parameter"] = unsupported.Param
		}
		return http.StatusBadRequest, models.ErrorResponse{
			Error:   unsupported.Error(),
			Code:    models.ErrCodeUnsupportedParameter,
			Details: details,
		}
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests, models.ErrorResponse{
			Error:   "All configured models are rate limited. Please retry later.",
			Code:    models.ErrCodeRateLimited,
			Details: map[string]string{"model": rateLimited.Model},
		}
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, models.ErrorResponse{
			Error: "The model did not answer in time",
			Code:  models.ErrCodeModelTimeout,
		}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{
			Error: "Internal server error",
			Code:  models.ErrCodeInternalError,
		}
	}
}

func writeError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request.URL.Path, "status", status, "error", err)
	}
	c.JSON(status, body)
}
