package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ranking-engine/internal/domain"
	"github.com/ranking-engine/internal/service"
	"github.com/ranking-engine/internal/websocket"
)

// Handler provides HTTP handlers for the ranking API
type Handler struct {
	ranking    *service.RankingService
	challenges *service.ChallengeService
	hub        *websocket.Hub
	logger     *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(ranking *service.RankingService, challenges *service.ChallengeService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		ranking:    ranking,
		challenges: challenges,
		hub:        hub,
		logger:     logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Standings write hook for the submission pipeline
		r.Post("/standings", h.UpdateStanding)

		// Leaderboard reads
		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/rank/{userID}", h.GetUserRank)
			r.Get("/{period}", h.GetLeaderboardPage)
		})

		// Daily challenge
		r.Route("/challenges", func(r chi.Router) {
			r.Get("/today", h.GetTodayChallenge)
			r.Post("/", h.ScheduleChallenge)
			r.Get("/{date}", h.GetChallengeByDate)
			r.Delete("/{date}", h.DeleteChallenge)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognized is a storage or programming failure and surfaces as a
// generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidPage),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrProblemNotPublished):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// StandingUpdate is the request body for a standings write.
type StandingUpdate struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
	TotalXP  int64  `json:"total_xp"`
}

// UpdateStanding handles a standings write from the submission pipeline
func (h *Handler) UpdateStanding(w http.ResponseWriter, r *http.Request) {
	var update StandingUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if update.UserID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.ranking.UpdateUserStanding(r.Context(), update.UserID, update.Username, update.TotalXP); err != nil {
		h.writeServiceError(w, "update standing", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "accepted"})
}

// GetLeaderboardPage returns a page of the period's standings
func (h *Handler) GetLeaderboardPage(w http.ResponseWriter, r *http.Request) {
	period, err := domain.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p < 1 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPage)
			return
		}
		page = p
	}

	pageSize := 0
	if sizeStr := r.URL.Query().Get("page_size"); sizeStr != "" {
		ps, err := strconv.Atoi(sizeStr)
		if err != nil || ps < 1 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPage)
			return
		}
		pageSize = ps
	}

	result, err := h.ranking.GetLeaderboardPage(r.Context(), period, page, pageSize)
	if err != nil {
		h.writeServiceError(w, "get leaderboard page", err)
		return
	}

	h.writeSuccess(w, result)
}

// GetUserRank returns a user's all-time rank and percentile
func (h *Handler) GetUserRank(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	summary, err := h.ranking.GetUserRank(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get user rank", err)
		return
	}

	h.writeSuccess(w, summary)
}

// GetTodayChallenge returns today's challenge view
func (h *Handler) GetTodayChallenge(w http.ResponseWriter, r *http.Request) {
	viewerID := r.URL.Query().Get("user_id")

	view, err := h.challenges.GetChallengeView(r.Context(), time.Now().UTC(), viewerID)
	if err != nil {
		h.writeServiceError(w, "get today challenge", err)
		return
	}

	h.writeSuccess(w, view)
}

// GetChallengeByDate returns the challenge view for a specific date
func (h *Handler) GetChallengeByDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	viewerID := r.URL.Query().Get("user_id")

	view, err := h.challenges.GetChallengeView(r.Context(), date, viewerID)
	if err != nil {
		h.writeServiceError(w, "get challenge by date", err)
		return
	}

	h.writeSuccess(w, view)
}

// ScheduleRequest is the request body for an administrative challenge override.
type ScheduleRequest struct {
	Date      string `json:"date"`
	ProblemID string `json:"problem_id"`
	XPBonus   int64  `json:"xp_bonus,omitempty"`
}

// ScheduleChallenge sets a date's challenge by administrative override
func (h *Handler) ScheduleChallenge(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	ch, err := h.challenges.Schedule(r.Context(), date, req.ProblemID, req.XPBonus)
	if err != nil {
		h.writeServiceError(w, "schedule challenge", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    ch,
	})
}

// DeleteChallenge removes the challenge for a date
func (h *Handler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.challenges.Delete(r.Context(), date); err != nil {
		h.writeServiceError(w, "delete challenge", err)
		return
	}

	h.writeSuccess(w, map[string]string{"status": "deleted"})
}
