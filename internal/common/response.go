package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes the success envelope {code: 0, message: "ok", data}.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// Abort writes the failure envelope and stops the handler chain.
func Abort(c *gin.Context, httpStatus int, code int, msg string) {
	Fail(c, httpStatus, code, msg)
	c.Abort()
}
