package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ravedigest/ravedigest/pkg/bus"
)

// StatusReader is the subset of the bus used by stream status routes.
type StatusReader interface {
	Status(ctx context.Context, stream, group string) (bus.GroupStatus, error)
}

// StreamStatusHandler reports how far a consumer group has drained its
// stream. The scheduler polls these routes between pipeline stages; a 404
// means the stream was never written, which counts as idle on its side.
func StreamStatusHandler(b StatusReader, stream, group string) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := b.Status(c.Request.Context(), stream, group)
		switch {
		case errors.Is(err, bus.ErrNoStream) || errors.Is(err, bus.ErrNoGroup):
			c.JSON(http.StatusNotFound, gin.H{"status": "Stream not found", "is_idle": false})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{
				"is_idle":           st.Idle,
				"last_generated_id": st.LastGeneratedID,
				"last_delivered_id": st.LastDeliveredID,
				"pending_messages":  st.Pending,
			})
		}
	}
}
