package server

import (
	"net/http"
	"strings"

	"podcast-player/internal/generator"
	"podcast-player/internal/models"
	"podcast-player/internal/player"
	"podcast-player/internal/timeline"
)

func (h *serverHandler) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireToken(w, r); !ok {
			return
		}
		eps, err := h.episodes.ListEpisodes(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, eps)
	case http.MethodPost:
		if _, ok := h.requireToken(w, r); !ok {
			return
		}
		h.createEpisode(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createEpisodeRequest struct {
	Query         string  `json:"query"`
	LengthMinutes float64 `json:"episode_length_minutes"`
	SessionID     string  `json:"session_id,omitempty"`
}

type createEpisodeResponse struct {
	Message   string         `json:"message"`
	Episode   models.Episode `json:"episode"`
	SessionID string         `json:"session_id,omitempty"`
	State     *player.State  `json:"state,omitempty"`
}

// createEpisode asks the generation service for an episode. With a session
// the new episode is also selected in that session's player.
func (h *serverHandler) createEpisode(w http.ResponseWriter, r *http.Request) {
	if h.creator == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "episode generation is not configured"})
		return
	}

	var body createEpisodeRequest
	if !h.decodeBody(w, r, &body) {
		return
	}
	req := generator.Request{
		Query:         strings.TrimSpace(body.Query),
		LengthSeconds: int(body.LengthMinutes * 60),
	}
	if req.Query == "" || req.LengthSeconds <= 0 {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query and a positive episode_length_minutes are required"})
		return
	}

	if body.SessionID == "" {
		res, err := h.creator.CreateEpisode(r.Context(), req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, createEpisodeResponse{Message: res.Message, Episode: res.Episode})
		return
	}

	ctrl, ok := h.session(w, body.SessionID)
	if !ok {
		return
	}
	state, err := ctrl.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := createEpisodeResponse{Message: state.Message, SessionID: body.SessionID, State: &state}
	if state.Selected != nil {
		resp.Episode = *state.Selected
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

type episodeResponse struct {
	models.Details
	Timeline timeline.Timeline `json:"timeline"`
	Total    float64           `json:"total"`
}

func (h *serverHandler) handleEpisode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireToken(w, r); !ok {
		return
	}

	details, err := h.episodes.Details(r.Context(), models.ID(r.PathValue("id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	tl, err := timeline.Build(details)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, episodeResponse{Details: details, Timeline: tl, Total: tl.Total()})
}

type sessionResponse struct {
	ID    string       `json:"id"`
	State player.State `json:"state"`
}

func (h *serverHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireToken(w, r); !ok {
		return
	}

	if h.sessions == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "player sessions are not configured"})
		return
	}

	id, ctrl := h.sessions.Create()
	state, err := ctrl.Refresh(r.Context())
	if err != nil {
		h.logger.Printf("session %s: initial refresh: %v", id, err)
	}
	h.writeJSON(w, http.StatusCreated, sessionResponse{ID: id, State: state})
}

func (h *serverHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireToken(w, r); !ok {
		return
	}
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		ctrl, ok := h.session(w, id)
		if !ok {
			return
		}
		h.writeJSON(w, http.StatusOK, sessionResponse{ID: id, State: ctrl.State()})
	case http.MethodDelete:
		if h.sessions == nil || !h.sessions.Delete(id) {
			h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type selectRequest struct {
	EpisodeID models.ID `json:"episode_id"`
}

type positionRequest struct {
	Seconds float64 `json:"seconds"`
	Playing *bool   `json:"playing,omitempty"`
}

type seekRequest struct {
	Index int `json:"index"`
}

func (h *serverHandler) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireToken(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	ctrl, ok := h.session(w, id)
	if !ok {
		return
	}

	var (
		state player.State
		err   error
	)
	switch r.PathValue("action") {
	case "select":
		var body selectRequest
		if !h.decodeBody(w, r, &body) {
			return
		}
		if body.EpisodeID == "" {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "episode_id is required"})
			return
		}
		state, err = ctrl.Select(r.Context(), body.EpisodeID)
	case "position":
		var body positionRequest
		if !h.decodeBody(w, r, &body) {
			return
		}
		if body.Playing != nil {
			ctrl.SetPlaying(*body.Playing)
		}
		state = ctrl.UpdatePosition(body.Seconds)
	case "seek":
		var body seekRequest
		if !h.decodeBody(w, r, &body) {
			return
		}
		state, err = ctrl.Seek(body.Index)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{ID: id, State: state})
}

func (h *serverHandler) session(w http.ResponseWriter, id string) (*player.Controller, bool) {
	if h.sessions != nil {
		if ctrl, ok := h.sessions.Get(id); ok {
			return ctrl, true
		}
	}
	h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	return nil, false
}
