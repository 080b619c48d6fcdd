package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dca-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsFrame is the envelope pushed to UI clients.
type wsFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	states, unsubStates := s.Bus.Subscribe(events.EventStateUpdate, 100)
	defer unsubStates()
	notes, unsubNotes := s.Bus.Subscribe(events.EventNotification, 100)
	defer unsubNotes()
	alerts, unsubAlerts := s.Bus.Subscribe(events.EventRiskAlert, 50)
	defer unsubAlerts()
	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()

	// Send the current state immediately so the UI does not wait for the
	// next transition.
	if s.Engine != nil {
		if err := conn.WriteJSON(wsFrame{Type: "state", Payload: s.Engine.GetState(c.Request.Context())}); err != nil {
			return
		}
	}

	for {
		var frame wsFrame
		select {
		case msg, ok := <-states:
			if !ok {
				return
			}
			frame = wsFrame{Type: "state", Payload: msg}
		case msg, ok := <-notes:
			if !ok {
				return
			}
			frame = wsFrame{Type: "notification", Payload: msg}
		case msg, ok := <-alerts:
			if !ok {
				return
			}
			frame = wsFrame{Type: "alert", Payload: msg}
		case msg, ok := <-ticks:
			if !ok {
				return
			}
			frame = wsFrame{Type: "price", Payload: msg}
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
