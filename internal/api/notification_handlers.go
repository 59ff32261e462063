package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation", "limit must be a non-negative integer")
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	list, err := s.engine.ListNotifications(r.Context(), actor(r), unreadOnly, limit)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.MarkNotificationRead(r.Context(), actor(r), id); err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"id":     id,
		"status": "read",
	})
}
