package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/snapsolve/snapsolve/internal/pipeline"
	"github.com/snapsolve/snapsolve/internal/quota"
	"github.com/snapsolve/snapsolve/internal/service"
	"github.com/snapsolve/snapsolve/internal/storage"
	"github.com/snapsolve/snapsolve/internal/vision"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// userHeader carries the authenticated user ID set by the fronting proxy.
// Requests without it are treated as guests and rate-limited by IP.
const userHeader = "X-User-ID"

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	// Image uploads arrive as multipart; text-only requests may use a
	// plain urlencoded form.
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil && err != http.ErrNotMultipart {
		s.jsonError(w, "invalid form", http.StatusBadRequest)
		return
	}

	input := pipeline.Input{
		Text:              r.FormValue("text"),
		Subject:           models.Subject(r.FormValue("subject")),
		GradeLevel:        r.FormValue("grade_level"),
		PreferredProvider: r.FormValue("ai_provider"),
	}

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
		if err != nil {
			s.jsonError(w, "failed to read image", http.StatusBadRequest)
			return
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			s.jsonError(w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		// Photographed homework is routinely sideways; fix the pixels
		// before the vision model sees them.
		normalized, _ := vision.NormalizeOrientation(data)
		input.Image = normalized
	}

	result, err := s.service.Solve(r.Context(), s.identity(r), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, result)
}

func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		s.jsonError(w, "text extraction not configured", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.jsonError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		s.jsonError(w, "image is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		s.jsonError(w, "failed to read image", http.StatusBadRequest)
		return
	}
	normalized, _ := vision.NormalizeOrientation(data)

	result, err := s.extractor.ExtractText(r.Context(), normalized)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"text":       result.Text,
		"confidence": result.Confidence,
	})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetScan(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	turns, err := s.service.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := s.service.FollowUp(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.QuotaStatus(r.Context(), s.identity(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		s.jsonError(w, "history requires a signed-in user", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	scans, err := s.service.History(r.Context(), userID, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"scans": scans})
}

// identity resolves the caller: signed-in users by the proxy-set header,
// everyone else as a guest keyed by client IP.
func (s *Server) identity(r *http.Request) quota.Identity {
	if userID := r.Header.Get(userHeader); userID != "" {
		return quota.UserIdentity(userID, s.quotaCfg.UserDailyLimit, s.quotaCfg.UserDailyLimit > 0)
	}
	return quota.GuestIdentity(clientIP(r))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
			"error":    "daily quota exceeded",
			"limit":    exceeded.Limit,
			"used":     exceeded.Used,
			"reset_at": exceeded.ResetAt,
		})
	case errors.Is(err, storage.ErrNotFound):
		s.jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, service.ErrEmptyInput):
		s.jsonError(w, "either 'image' or 'text' must be provided", http.StatusUnprocessableEntity)
	case pipeline.IsGenerationError(err):
		s.logger.Error("solve failed", "error", err)
		s.jsonError(w, "solution generation failed", http.StatusBadGateway)
	default:
		s.logger.Error("request failed", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("json encode error", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
