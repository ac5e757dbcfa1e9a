package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platewise/platewise-backend/internal/services"
)

type EventsHandler struct {
	hub *services.StatusHub
}

func NewEventsHandler(hub *services.StatusHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// GET /api/meals/:id/events
// Streams the meal's status transitions as server-sent events until the
// client disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_meal_id", err)
		return
	}

	msgs, cancel := h.hub.Subscribe(mealID.String())
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case msg, ok := <-msgs:
			if !ok {
				return false
			}
			c.SSEvent("status", msg)
			return true
		}
	})
}
