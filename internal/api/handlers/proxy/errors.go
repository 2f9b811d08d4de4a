package proxy

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/runtime/executor"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

// errorTypeFor maps an HTTP status onto a message-protocol error type.
func errorTypeFor(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ir.ClaudeErrAuthentication
	case status == http.StatusNotFound:
		return ir.ClaudeErrNotFound
	case status == http.StatusTooManyRequests:
		return ir.ClaudeErrRateLimit
	case status == http.StatusServiceUnavailable || status == 529:
		return ir.ClaudeErrOverloaded
	case status >= 400 && status < 500:
		return ir.ClaudeErrInvalidRequest
	default:
		return ir.ClaudeErrAPI
	}
}

// abortMessages answers a /v1/messages request with an error envelope. Upstream status codes
// pass through unchanged.
func abortMessages(c *gin.Context, err error) int {
	status := executor.StatusOf(err)
	msg := err.Error()
	var se *executor.StatusError
	if errors.As(err, &se) {
		msg = se.Message()
	}
	c.AbortWithStatusJSON(status, ir.NewErrorResponse(errorTypeFor(status), msg))
	return status
}

func badMessagesRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ir.NewErrorResponse(ir.ClaudeErrInvalidRequest, msg))
}

type chatError struct {
	Error chatErrorDetail `json:"error"`
}

type chatErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    *int   `json:"code,omitempty"`
}

// abortChat answers a chat-completion request. Upstream error bodies are relayed verbatim.
func abortChat(c *gin.Context, err error) int {
	var se *executor.StatusError
	if errors.As(err, &se) && len(se.Body) > 0 {
		contentType := se.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		c.Data(se.Code, contentType, se.Body)
		c.Abort()
		return se.Code
	}
	status := executor.StatusOf(err)
	c.AbortWithStatusJSON(status, chatError{Error: chatErrorDetail{
		Message: err.Error(),
		Type:    errorTypeFor(status),
		Code:    &status,
	}})
	return status
}

func badChatRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, chatError{Error: chatErrorDetail{
		Message: msg,
		Type:    ir.ClaudeErrInvalidRequest,
	}})
}
