package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamEvents handles GET /ws/events: a read-only tap on the event bus
// that forwards every classified scanner event to the client as a JSON
// text message, in bus order. A slow or disconnecting client never affects
// delivery to the other subscribers.
func (h *Handler) StreamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe()
	defer sub.Cancel()

	// Drain client frames so we notice a disconnect; the stream itself is
	// one-directional.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "event stream closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
