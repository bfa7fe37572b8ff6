package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/calendar"
	"elsa-streak-service/internal/infra/memory"
	"elsa-streak-service/internal/streak"
	"github.com/gorilla/websocket"
)

var testNow = time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)

func newTestTracker() *app.Tracker {
	machine := streak.NewMachine(calendar.New(time.UTC), streak.DefaultPolicy())
	svc := app.NewStreakService(memory.NewRecordStore(), memory.NewActivityLog(), machine, app.Options{
		Now: func() time.Time { return testNow },
	})
	return app.NewTracker(svc)
}

func TestWebSocketStreakFeed(t *testing.T) {
	tracker := newTestTracker()
	wsHandler := NewWSHandler(tracker)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws?userId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, payload := readNext(conn, t, "streak")
	if payload["currentStreak"].(float64) != 0 || payload["today"] != "2024-05-14" {
		t.Fatalf("unexpected initial view: %v", payload)
	}

	complete := map[string]any{
		"type":    "complete",
		"payload": map[string]any{"quizId": "daily"},
	}
	if err := conn.WriteJSON(complete); err != nil {
		t.Fatalf("write complete: %v", err)
	}

	_, payload = readNext(conn, t, "streak")
	if payload["currentStreak"].(float64) != 1 || payload["lastActiveDay"] != "2024-05-14" {
		t.Fatalf("expected streak of 1 after completion, got %v", payload)
	}
}

func TestWebSocketReportsRuleViolations(t *testing.T) {
	tracker := newTestTracker()
	server := httptest.NewServer(http.HandlerFunc(NewWSHandler(tracker).ServeWS))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):]+"?userId=u2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "streak")

	if err := conn.WriteJSON(map[string]any{"type": "revive"}); err != nil {
		t.Fatalf("write revive: %v", err)
	}
	_, payload := readNext(conn, t, "error")
	if payload["message"] == "" {
		t.Fatalf("expected error message, got %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestWebSocketRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	NewWSHandler(newTestTracker()).ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
