package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/chaosarchitect/missions/internal/platform/errors"
	"github.com/chaosarchitect/missions/internal/platform/errors/i18n"
	"github.com/chaosarchitect/missions/internal/services/missions/lifecycle"
	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

// maxBodyBytes caps request bodies; requests only carry an email.
const maxBodyBytes = 64 << 10

// rejectedMessage acknowledges a recorded rejection.
const rejectedMessage = "Mission rejected. The Chaos Architect will remember this."

// Lifecycle is the mission lifecycle the handlers drive.
type Lifecycle interface {
	RequestMission(ctx context.Context, email string) (lifecycle.Issued, error)
	RejectMission(ctx context.Context, email string) error
	GetStanding(ctx context.Context, email string) (mission.Standing, mission.Record, error)
}

// Options wires optional endpoints next to the lifecycle routes.
type Options struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// MCP serves /mcp when set.
	MCP http.Handler
}

// Server exposes lifecycle operations over HTTP.
type Server struct {
	lifecycle Lifecycle
	opts      Options
}

// NewServer creates an HTTP API server.
func NewServer(lc Lifecycle, opts Options) *Server {
	return &Server{lifecycle: lc, opts: opts}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return LogRequests(mux)
}

// RegisterRoutes mounts the API routes. Lifecycle routes are also served
// under /api for clients built against the original paths.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("POST "+prefix+"/mission", s.handleRequestMission)
		mux.HandleFunc("POST "+prefix+"/mission/reject", s.handleRejectMission)
		mux.HandleFunc("GET "+prefix+"/mission/status", s.handleMissionStatus)
	}
	mux.HandleFunc("GET /up", handleUp)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	if s.opts.MCP != nil {
		mux.Handle("/mcp", s.opts.MCP)
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

type missionResponse struct {
	Email      string `json:"email"`
	Title      string `json:"title"`
	Lore       string `json:"lore"`
	Antagonist string `json:"antagonist"`
	Task       string `json:"task"`
	TechStack  string `json:"techStack"`
	IsNew      bool   `json:"isNew"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type standingResponse struct {
	Email    string `json:"email"`
	Standing string `json:"standing"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (s *Server) handleRequestMission(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}
	issued, err := s.lifecycle.RequestMission(r.Context(), email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	record := issued.Record
	writeJSON(w, http.StatusOK, missionResponse{
		Email:      record.Email,
		Title:      record.Title,
		Lore:       record.Lore,
		Antagonist: record.Antagonist,
		Task:       record.Task,
		TechStack:  record.TechStack,
		IsNew:      issued.IsNew,
	})
}

func (s *Server) handleRejectMission(w http.ResponseWriter, r *http.Request) {
	email, ok := decodeEmail(w, r)
	if !ok {
		return
	}
	if err := s.lifecycle.RejectMission(r.Context(), email); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: rejectedMessage})
}

func (s *Server) handleMissionStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	standing, _, err := s.lifecycle.GetStanding(r.Context(), email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	normalized, _ := mission.NormalizeEmail(email)
	writeJSON(w, http.StatusOK, standingResponse{Email: normalized, Standing: standing.String()})
}

func handleUp(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeEmail reads the {email} body. It writes the 400 response itself on
// failure.
func decodeEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		details := "request body must be a JSON object with an email field"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			details = "request body is too large"
		case errors.Is(err, io.EOF):
			details = "request body is empty"
		}
		writeInvalidInput(w, r, details)
		return "", false
	}
	return req.Email, true
}

func writeInvalidInput(w http.ResponseWriter, r *http.Request, details string) {
	catalog := i18n.GetCatalog(i18n.MatchAcceptLanguage(r.Header.Get("Accept-Language")))
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   apperrors.CodeInvalidInput.WireName(),
		Message: catalog.Format(string(apperrors.CodeInvalidInput), nil),
		Details: details,
	})
}

// writeDomainError maps a lifecycle error to its status and localized body.
// Infrastructure causes are never echoed to the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	var metadata map[string]string
	if domainErr, ok := apperrors.As(err); ok {
		metadata = domainErr.Metadata
	}
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}

	catalog := i18n.GetCatalog(i18n.MatchAcceptLanguage(r.Header.Get("Accept-Language")))
	resp := errorResponse{
		Error:     code.WireName(),
		Message:   catalog.Format(string(code), metadata),
		Retryable: code.Retryable(),
	}
	if code == apperrors.CodeInvalidInput {
		resp.Details = invalidInputDetails(err)
	}
	writeJSON(w, status, resp)
}

func invalidInputDetails(err error) string {
	switch {
	case errors.Is(err, mission.ErrEmptyEmail):
		return "email is required"
	case errors.Is(err, mission.ErrInvalidEmail):
		return "email must be a plain address such as agent@example.com"
	default:
		return strings.TrimSpace(err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
