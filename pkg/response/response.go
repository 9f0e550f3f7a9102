package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/testbridge/exam-sync-api/pkg/errors"
	"github.com/testbridge/exam-sync-api/pkg/middleware/requestid"
)

// Envelope is the response contract shared by every endpoint. Exactly one of
// Data and Error is set; Meta carries the correlation id on failures so
// offline clients can reference it when reporting a stuck upload.
type Envelope struct {
	Data  interface{}            `json:"data,omitempty"`
	Error *appErrors.Error       `json:"error,omitempty"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success envelope. Sync responses describe mutable enrollment
// state, so intermediaries must never cache them.
func JSON(c *gin.Context, status int, data interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data})
}

// OK is the common 200 shorthand.
func OK(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data)
}

// Error normalises err into the typed envelope and sets its HTTP status.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	envelope := Envelope{Error: appErr}
	if reqID := requestid.Value(c); reqID != "" {
		envelope.Meta = map[string]interface{}{"request_id": reqID}
	}
	c.JSON(appErr.Status, envelope)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
