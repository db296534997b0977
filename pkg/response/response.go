package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Codes carried in the envelope. They mirror HTTP statuses while the
// transport status stays 200, so the shell only ever inspects the body.
const (
	CodeOK           = 200
	CodePending      = 202
	CodeBadRequest   = 400
	CodeUnauthorized = 401
	CodeNotFound     = 404
	CodeInternal     = 500
)

// Response is the envelope of every API reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// Pending answers a capture that was accepted or throttled but has no
// stored screenshot to return yet. Callers poll.
func Pending(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodePending,
		Message: "no screenshot stored yet",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, CodeBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, CodeUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, CodeNotFound, message)
}

func InternalServerError(c *gin.Context, message string) {
	Error(c, CodeInternal, message)
}
