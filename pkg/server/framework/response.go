package framework

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	svcframework "github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
)

// Respond converts a Go value to JSON and sends it to the client.
func Respond(c *gin.Context, data any, statusCode int) {
	if statusCode == http.StatusNoContent {
		c.Status(statusCode)
		return
	}
	c.IndentedJSON(statusCode, data)
}

// RespondError sends an error response back to the client. Kinded service
// errors are mapped to their contract status with the kind included in the
// payload; SafeErrors pass their own status and fields through; anything
// else is hidden behind a generic 500 because its message may contain
// sensitive data.
func RespondError(c *gin.Context, err error) {
	var webErr *SafeError
	if errors.As(errors.Cause(err), &webErr) {
		Respond(c, ErrorResponse{
			Error:  webErr.Err.Error(),
			Kind:   string(webErr.Kind),
			Fields: webErr.Fields,
		}, statusFor(webErr))
		return
	}

	if kind := svcframework.KindOf(err); kind != "" {
		Respond(c, ErrorResponse{
			Error: err.Error(),
			Kind:  string(kind),
		}, StatusForKind(kind))
		return
	}

	Respond(c, ErrorResponse{
		Error: http.StatusText(http.StatusInternalServerError),
	}, http.StatusInternalServerError)
}

func statusFor(err *SafeError) int {
	if err.StatusCode != 0 {
		return err.StatusCode
	}
	return StatusForKind(err.Kind)
}
