package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// --- Execution ---

type runRequest struct {
	Code  string `json:"code"`
	Input string `json:"input"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.metrics.incRuns()
	lang := r.PathValue("language")

	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.metrics.incErrors()
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	res, err := s.sandbox.Run(r.Context(), lang, req.Code, req.Input)
	if err != nil {
		s.metrics.incErrors()
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	if res.Error != "" {
		s.metrics.incErrors()
		s.logger.Warn("Run reported an error", "language", lang, "error", res.Error)
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// --- Languages ---

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.languages.List())
}

// --- Health ---

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.metrics.Snapshot())
}
