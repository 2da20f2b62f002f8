package response

import (
	"github.com/gin-gonic/gin"
)

// ErrorBody is the body of every failed API-key-authenticated request:
// {error: {code, message}}. Notification endpoints use it only for
// unreadable or malformed bodies and failed signature checks (400/401);
// any later failure is logged and answered 200 instead, to avoid
// provider-side retry storms.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error sends {error:{code, message}} at the given status.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// JSON sends data as-is at the given status — success responses carry no
// wrapping envelope beyond what each handler builds.
func JSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}
