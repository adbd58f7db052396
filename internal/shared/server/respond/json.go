package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Submitted writes the response for an idempotent submit: 202 Accepted when
// the call created new work, 200 OK when it was deduplicated onto an already
// active job.
func Submitted(c *gin.Context, created bool, payload interface{}) {
	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	JSON(c, status, payload)
}
