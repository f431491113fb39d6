package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/realtime"
)

// Client and server event names on the websocket.
const (
	eventConnected     = "connected"
	eventJoinQuiz      = "join-quiz"
	eventJoined        = "joined"
	eventQuizCompleted = "quiz-completed"
	eventPing          = "ping"
	eventPong          = "pong"
	eventError         = "error"
)

type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type connectedPayload struct {
	ClientID string `json:"clientId"`
	Room     string `json:"room"`
}

type joinPayload struct {
	Name string `json:"name"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and joins the client to the quiz room. Room
// events are pushed to the client; quiz-completed messages from the client are
// relayed to the room as leaderboard updates.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	logger := log.WithField("client", clientID)
	logger.Debug("websocket client connected")

	events, cancel := h.hub.Subscribe(realtime.DefaultRoom)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes. On a write error it
	// closes conn so the read loop below ends too.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debugf("ws write error: %v", err)
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) bool { return deliver(send, writerDone, msg) }
	alive := reply(outboundMessage[any]{Type: eventConnected, Payload: connectedPayload{ClientID: clientID, Room: realtime.DefaultRoom}})

	for alive {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case eventJoinQuiz:
			var payload joinPayload
			_ = json.Unmarshal(inbound.Payload, &payload)
			logger.Infof("%s joined %s", payload.Name, realtime.DefaultRoom)
			alive = reply(outboundMessage[any]{Type: eventJoined, Payload: payload})
		case eventQuizCompleted:
			var payload any
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				alive = reply(outboundMessage[any]{Type: eventError, Payload: errorPayload{Message: "invalid quiz-completed payload"}})
				continue
			}
			h.hub.Broadcast(realtime.DefaultRoom, realtime.Event{Type: realtime.EventLeaderboardUpdate, Payload: payload})
		case eventPing:
			alive = reply(outboundMessage[any]{Type: eventPong, Payload: struct{}{}})
		default:
			alive = reply(outboundMessage[any]{Type: eventError, Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
	logger.Debug("websocket client disconnected")
}

// deliver queues msg for the writer. It reports false once the writer has
// exited, instead of blocking on a queue nobody drains.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}
