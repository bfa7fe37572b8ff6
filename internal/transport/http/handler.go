package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"elsa-streak-service/internal/app"
	"elsa-streak-service/internal/domain"
)

const defaultLeaderboardLimit = 10

// API exposes the streak tracker as a JSON REST surface.
type API struct {
	tracker *app.Tracker
}

func NewAPI(tracker *app.Tracker) *API {
	return &API{tracker: tracker}
}

// Register mounts the REST routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /users/{userId}/streak", a.getStreak)
	mux.HandleFunc("POST /users/{userId}/streak/refresh", a.refresh)
	mux.HandleFunc("POST /users/{userId}/streak/freeze", a.freeze)
	mux.HandleFunc("POST /users/{userId}/streak/revive", a.revive)
	mux.HandleFunc("POST /users/{userId}/streak/recalculate", a.recalculate)
	mux.HandleFunc("POST /users/{userId}/completions", a.complete)
	mux.HandleFunc("GET /users/{userId}/today", a.today)
	mux.HandleFunc("GET /leaderboard", a.leaderboard)
}

type completionRequest struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quizId"`
	CompletedAt time.Time `json:"completedAt"`
}

type completionResponse struct {
	Result string            `json:"result"`
	Streak domain.StreakView `json:"streak"`
}

type todayResponse struct {
	UserID      string                 `json:"userId"`
	PlayedToday bool                   `json:"playedToday"`
	Events      []domain.ActivityEvent `json:"events"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) getStreak(w http.ResponseWriter, r *http.Request) {
	view, err := a.tracker.Load(r.Context(), r.PathValue("userId"))
	respondView(w, view, err)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	view, err := a.tracker.Refresh(r.Context(), r.PathValue("userId"))
	respondView(w, view, err)
}

func (a *API) freeze(w http.ResponseWriter, r *http.Request) {
	view, err := a.tracker.UseFreeze(r.Context(), r.PathValue("userId"))
	respondView(w, view, err)
}

func (a *API) revive(w http.ResponseWriter, r *http.Request) {
	view, err := a.tracker.Revive(r.Context(), r.PathValue("userId"))
	respondView(w, view, err)
}

func (a *API) recalculate(w http.ResponseWriter, r *http.Request) {
	view, err := a.tracker.Recalculate(r.Context(), r.PathValue("userId"))
	respondView(w, view, err)
}

func (a *API) complete(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid completion payload"})
		return
	}
	view, result, err := a.tracker.CompleteQuiz(r.Context(), domain.ActivityEvent{
		ID:          req.ID,
		UserID:      r.PathValue("userId"),
		QuizID:      req.QuizID,
		CompletedAt: req.CompletedAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{Result: result.String(), Streak: view})
}

func (a *API) today(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	played, events, err := a.tracker.Service().PlayedToday(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.ActivityEvent{}
	}
	writeJSON(w, http.StatusOK, todayResponse{UserID: userID, PlayedToday: played, Events: events})
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	board, err := a.tracker.Service().Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func respondView(w http.ResponseWriter, view domain.StreakView, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidActivityEvent):
		return http.StatusBadRequest
	case domain.IsRuleViolation(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("streak request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
