package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"soundshift/internal/models"
	"soundshift/internal/recommend"
	"soundshift/internal/repositories"
	"soundshift/internal/services"
	"soundshift/internal/session"
	"soundshift/internal/shared"
)

const historyLimit = 50

// APIHandler serves the callable surface of the service. Authenticated
// routes are wrapped with the Auth middleware; the code-exchange endpoint is
// the only open one.
type APIHandler struct {
	manager      *session.Manager
	orchestrator *recommend.Orchestrator
	provider     services.Provider
	repo         *repositories.SessionRepository
	players      *PlayerRegistry
	logger       *log.Logger
	mux          *http.ServeMux
}

// NewAPIHandler wires the handler and registers its routes.
func NewAPIHandler(manager *session.Manager, orchestrator *recommend.Orchestrator, provider services.Provider, repo *repositories.SessionRepository, players *PlayerRegistry, logger *log.Logger) *APIHandler {
	h := &APIHandler{
		manager:      manager,
		orchestrator: orchestrator,
		provider:     provider,
		repo:         repo,
		players:      players,
		logger:       logger,
		mux:          http.NewServeMux(),
	}

	auth := Auth(manager)

	h.mux.HandleFunc("POST /auth/exchange", h.handleExchange)
	h.mux.Handle("POST /auth/refresh", auth(http.HandlerFunc(h.handleRefresh)))
	h.mux.Handle("POST /auth/tokens", auth(http.HandlerFunc(h.handleTokens)))
	h.mux.Handle("POST /auth/logout", auth(http.HandlerFunc(h.handleLogout)))
	h.mux.Handle("GET /auth/profile", auth(http.HandlerFunc(h.handleProfile)))
	h.mux.Handle("POST /recommendations", auth(http.HandlerFunc(h.handleRecommendations)))
	h.mux.Handle("POST /mood", auth(http.HandlerFunc(h.handleMood)))
	h.mux.Handle("GET /player/now", auth(http.HandlerFunc(h.handleNow)))
	h.mux.Handle("POST /player/play", auth(h.playerAction("play")))
	h.mux.Handle("POST /player/pause", auth(h.playerAction("pause")))
	h.mux.Handle("POST /player/next", auth(h.playerAction("next")))
	h.mux.Handle("POST /player/previous", auth(h.playerAction("previous")))
	h.mux.Handle("POST /player/volume", auth(http.HandlerFunc(h.handleVolume)))
	h.mux.Handle("POST /player/like", auth(http.HandlerFunc(h.handleLike)))
	h.mux.Handle("POST /player/enqueue", auth(http.HandlerFunc(h.handleEnqueue)))

	return h
}

// Routes returns the path prefixes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{"/auth/", "/player/", "/recommendations", "/mood"}
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *APIHandler) handleExchange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code   string `json:"code"`
		Origin string `json:"origin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Origin == "" {
		body.Origin = r.Header.Get("Origin")
	}

	result, err := h.manager.ExchangeCode(r.Context(), body.Code, body.Origin)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.manager.Refresh(r.Context(), UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expires_at": pair.ExpiresAt})
}

func (h *APIHandler) handleTokens(w http.ResponseWriter, r *http.Request) {
	caller := UserID(r.Context())

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		body.UserID = caller
	}

	pair, err := h.manager.Tokens(r.Context(), caller, body.UserID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *APIHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	h.players.Drop(userID)
	if err := h.manager.Logout(userID); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.manager.Profile(UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *APIHandler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	var body struct {
		Mood    string `json:"mood"`
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessToken, err := h.manager.AccessToken(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if body.Mood == "" {
		body.Mood = h.orchestrator.ClassifyMood(r.Context(), body.Context)
	}

	// History and liked-set lookups are best-effort context for the
	// orchestrator, not preconditions.
	history, err := h.provider.RecentlyPlayed(r.Context(), accessToken, historyLimit)
	if err != nil {
		h.logger.Warn("history fetch failed", "user", userID, "error", err)
		history = nil
	}
	liked, err := h.repo.LikedTracks(userID)
	if err != nil {
		h.logger.Warn("liked set load failed", "user", userID, "error", err)
		liked = nil
	}

	batch, err := h.orchestrator.Recommend(r.Context(), accessToken, body.Mood, body.Context, history, liked)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *APIHandler) handleMood(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mood := h.orchestrator.ClassifyMood(r.Context(), body.Context)
	writeJSON(w, http.StatusOK, map[string]string{"mood": mood})
}

// nowResponse is the player state projection for the client.
type nowResponse struct {
	State      string             `json:"state"`
	NowPlaying *models.NowPlaying `json:"now_playing"`
	Liked      bool               `json:"liked"`
	Queue      *models.Queue      `json:"queue,omitempty"`
}

func (h *APIHandler) handleNow(w http.ResponseWriter, r *http.Request) {
	sync, err := h.players.Get(UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, nowResponse{
		State:      sync.State().String(),
		NowPlaying: sync.Snapshot(),
		Liked:      sync.LikedCurrent(),
		Queue:      sync.Queue(),
	})
}

func (h *APIHandler) playerAction(action string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sync, err := h.players.Get(UserID(r.Context()))
		if err != nil {
			h.writeFailure(w, err)
			return
		}

		switch action {
		case "play":
			err = sync.Play(r.Context())
		case "pause":
			err = sync.Pause(r.Context())
		case "next":
			err = sync.Next(r.Context())
		case "previous":
			err = sync.Previous(r.Context())
		}
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

func (h *APIHandler) handleVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Percent int `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sync, err := h.players.Get(UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if err := sync.SetVolume(r.Context(), body.Percent); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *APIHandler) handleLike(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackID string `json:"track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sync, err := h.players.Get(UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if err := sync.ToggleLike(r.Context(), body.TrackID); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *APIHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TrackID string `json:"track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sync, err := h.players.Get(UserID(r.Context()))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if err := sync.Enqueue(r.Context(), body.TrackID); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// writeFailure maps sentinel errors to HTTP statuses. Messages stay generic;
// details go to the log.
func (h *APIHandler) writeFailure(w http.ResponseWriter, err error) {
	h.logger.Error("request failed", "error", err)

	switch {
	case errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, shared.ErrAuthExchange),
		errors.Is(err, shared.ErrRefreshFailed),
		errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, shared.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "please log in again")
	case errors.Is(err, shared.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "no session")
	case errors.Is(err, shared.ErrNoActiveDevice):
		writeError(w, http.StatusConflict, "no active playback device")
	case errors.Is(err, shared.ErrTransient):
		writeError(w, http.StatusBadGateway, "provider request failed, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
