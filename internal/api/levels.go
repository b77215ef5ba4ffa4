package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"journal/internal/store"
)

func (s *Server) handleListKeyLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	levels, err := s.repo.ListKeyLevels(r.Context(), q.Get("instrument"), q.Get("category"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list key levels")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": levels})
}

func (s *Server) handleAddKeyLevel(w http.ResponseWriter, r *http.Request) {
	var level store.KeyLevel
	if err := json.NewDecoder(r.Body).Decode(&level); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	level.Name = strings.TrimSpace(level.Name)
	if level.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if level.Value <= 0 {
		writeError(w, http.StatusBadRequest, "value must be positive")
		return
	}
	if level.Strength < 0 || level.Strength > 5 {
		writeError(w, http.StatusBadRequest, "strength must be between 1 and 5")
		return
	}

	inserted, err := s.repo.AddKeyLevel(r.Context(), &level)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add key level")
		return
	}
	if !inserted {
		writeError(w, http.StatusConflict, "a level with this name already exists")
		return
	}
	writeJSON(w, http.StatusCreated, level)
}

func (s *Server) handleDeleteKeyLevel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "levelId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid level id")
		return
	}

	err = s.repo.DeleteKeyLevel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "key level not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete key level")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLevelStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.LevelStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load level stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"levels": stats})
}
