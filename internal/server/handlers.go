package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/omriShneor/leave_extractor/internal/leave"
	"github.com/omriShneor/leave_extractor/internal/ollama"
	"github.com/omriShneor/leave_extractor/internal/timeutil"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 64 << 10

// Home

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"result": "Welcome to my app"})
}

// Health Check

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "healthy",
		"model":  "unknown",
	}

	if s.model == nil {
		respondJSON(w, http.StatusOK, status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.model.Ping(ctx); err != nil {
		requestLogger(r).WithError(err).Warn("model health check failed")
		status["status"] = "degraded"
		status["model"] = "unreachable"
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	status["model"] = "connected"
	respondJSON(w, http.StatusOK, status)
}

// Leave extraction

type parseLeaveRequest struct {
	LeaveRequest  *string `json:"leave_request"`
	ReferenceDate string  `json:"reference_date,omitempty"`
}

func (s *Server) handleParseLeave(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req parseLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.LeaveRequest == nil || strings.TrimSpace(*req.LeaveRequest) == "" {
		respondError(w, http.StatusBadRequest, "leave_request is required")
		return
	}

	var (
		extraction *leave.Extraction
		err        error
	)
	if req.ReferenceDate != "" {
		if _, perr := timeutil.ParseDate(req.ReferenceDate); perr != nil {
			respondError(w, http.StatusBadRequest, "reference_date must be YYYY-MM-DD")
			return
		}
		extraction, err = s.extractor.ExtractAt(r.Context(), *req.LeaveRequest, req.ReferenceDate)
	} else {
		extraction, err = s.extractor.Extract(r.Context(), *req.LeaveRequest)
	}

	if err != nil {
		status := statusForError(err)
		log.WithError(err).WithField("status", status).Error("leave extraction failed")
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, extraction)
}

// statusForError maps extraction failures onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, leave.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ollama.ErrModelTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ollama.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, leave.ErrMalformedOutput), errors.Is(err, leave.ErrSchemaViolation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Error encoding JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
