package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler streams a user's streak view over a websocket and accepts the
// write-side actions of the tracker as inbound messages.
type WSHandler struct {
	tracker  *app.Tracker
	upgrader websocket.Upgrader
}

func NewWSHandler(tracker *app.Tracker) *WSHandler {
	return &WSHandler{
		tracker: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

var errUnsupportedMessage = errors.New("unsupported message type")

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type completePayload struct {
	QuizID      string    `json:"quizId"`
	CompletedAt time.Time `json:"completedAt"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and keeps the client in sync with every view
// the tracker publishes for userId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.tracker.Subscribe(userID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "streak", Payload: view}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Successful loads do not publish, so the first view is sent directly.
	if view, err := h.tracker.Load(r.Context(), userID); err != nil {
		send <- errorMessage(err)
	} else {
		send <- outboundMessage[any]{Type: "streak", Payload: view}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(r, userID, inbound); err != nil {
			send <- errorMessage(err)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch applies one inbound action. Successful actions reach the client
// through the subscription, so only failures are answered here.
func (h *WSHandler) dispatch(r *http.Request, userID string, msg inboundMessage) error {
	ctx := r.Context()
	var err error
	switch msg.Type {
	case "complete":
		var payload completePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return domain.ErrInvalidActivityEvent
			}
		}
		if payload.CompletedAt.IsZero() {
			payload.CompletedAt = h.tracker.Service().Now()
		}
		_, _, err = h.tracker.CompleteQuiz(ctx, domain.ActivityEvent{
			UserID:      userID,
			QuizID:      payload.QuizID,
			CompletedAt: payload.CompletedAt,
		})
	case "freeze":
		_, err = h.tracker.UseFreeze(ctx, userID)
	case "revive":
		_, err = h.tracker.Revive(ctx, userID)
	case "refresh":
		_, err = h.tracker.Refresh(ctx, userID)
	default:
		return errUnsupportedMessage
	}
	return err
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}
