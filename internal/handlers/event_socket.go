package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"

	"roomframe/internal/models"
	"roomframe/internal/services"
)

// EventSocketHandler is the persistent-socket alternative to the webhook
// ingress: the platform (or a relay) pushes the same notification envelopes
// over a websocket, one JSON document per frame.
type EventSocketHandler struct {
	dispatcher *services.Dispatcher
}

// NewEventSocketHandler creates the socket ingress
func NewEventSocketHandler(dispatcher *services.Dispatcher) *EventSocketHandler {
	return &EventSocketHandler{dispatcher: dispatcher}
}

// Handle runs the read loop for one socket connection
func (h *EventSocketHandler) Handle(c *websocket.Conn) {
	log.Printf("[SOCKET] Event socket connected from %s", c.RemoteAddr())
	defer func() {
		log.Printf("[SOCKET] Event socket disconnected")
		c.Close()
	}()

	for {
		messageType, payload, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SOCKET] Read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var notification models.Notification
		if err := json.Unmarshal(payload, &notification); err != nil {
			log.Printf("[SOCKET] Dropping undecodable frame: %v", err)
			continue
		}
		h.dispatcher.ProcessNotification(context.Background(), notification)
	}
}
