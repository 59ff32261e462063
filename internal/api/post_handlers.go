package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/gigboard/internal/models"
)

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.engine.CreatePost(r.Context(), actor(r), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "offset must be a non-negative integer")
		return
	}

	q := r.URL.Query()
	posts, err := s.engine.ListPosts(r.Context(), models.PostFilters{
		Status:   models.PostStatus(q.Get("status")),
		ClientID: q.Get("client_id"),
		Skill:    q.Get("skill"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.DeletePost(r.Context(), actor(r), id); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "deleted",
	})
}

// Applications

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.engine.Apply(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.engine.UpdateApplication(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "appId"), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDecideApplication(w http.ResponseWriter, r *http.Request) {
	var req models.DecisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.engine.DecideApplication(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "appId"), req.Decision)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Finalization

func (s *Server) handleSubmitFinalization(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitFinalizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.engine.SubmitFinalization(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleAcceptFinalization(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.AcceptFinalization(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleRejectFinalization(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.RejectFinalization(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Reviews

func (s *Server) handleLeaveReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.engine.LeaveReview(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}
