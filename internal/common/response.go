package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the uniform envelope every API endpoint answers with; handlers
// never write raw JSON bodies.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Success answers with the success code and the given payload.
func Success(c *gin.Context, data any) {
	respond(c, SuccessCode, errorMsg[SuccessCode], data)
}

// Error answers with the code and message of err; unknown error types are
// converted to the generic service error.
func Error(c *gin.Context, err error) {
	e := ConvertErr(err)
	respond(c, e.ErrCode, e.ErrMsg, nil)
}

func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(http.StatusOK, Response{Code: code, Message: message, Data: data})
}
