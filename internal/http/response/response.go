package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError writes err using the status and code of an *apierr.Error.
// 5xx causes are not echoed to the client.
func RespondAPIError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	code := "internal"
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Code != "" {
		code = ae.Code
	}
	if status >= http.StatusInternalServerError {
		RespondError(c, status, code, errors.New(http.StatusText(status)))
		return
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
