package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"framecast/internal/config"
	"framecast/internal/jobs"
	"framecast/internal/media"
	"framecast/internal/models"
	"framecast/internal/telemetry"
	"framecast/internal/worker"
)

const anonymousUser = "anonymous"

// JobService is the part of jobs.Service the handlers use.
type JobService interface {
	Submit(ctx context.Context, req models.VideoRequest) (string, error)
	Status(ctx context.Context, jobID string) (models.JobStatus, error)
	Healthy(ctx context.Context) bool
	Backend() string
}

// Limiter admits or rejects a submission for a user.
type Limiter interface {
	Allow(ctx context.Context, user string) (bool, float64, error)
}

// Options are the optional collaborators of a Server.
type Options struct {
	// Limiter is nil when no shared store backs rate limiting.
	Limiter Limiter
	// MediaDir, when set, is served under /media/.
	MediaDir string
	Logger   *slog.Logger
}

// Server wires HTTP handlers for the video job API.
type Server struct {
	cfg      config.Config
	jobs     JobService
	limiter  Limiter
	mediaDir string
	logger   *slog.Logger
}

// New constructs the API server.
func New(cfg config.Config, svc JobService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		jobs:     svc,
		limiter:  opts.Limiter,
		mediaDir: opts.MediaDir,
		logger:   logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs/video", s.handleSubmit)
	r.Get("/jobs/video/{id}", s.handleStatus)

	if s.mediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaDir))))
	}
	return r
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := userFromRequest(r)
	req, err := s.parseSubmission(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = user

	// Only well-formed submissions spend a token.
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), user)
		if err != nil {
			s.logger.Error("rate limit check failed", "user_id", user, "error", err)
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	jobID, err := s.jobs.Submit(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID})
	case errors.Is(err, jobs.ErrMissingImage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped):
		writeError(w, http.StatusServiceUnavailable, "job queue unavailable")
	default:
		s.logger.Error("submit video job", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
	}
}

func (s *Server) parseSubmission(w http.ResponseWriter, r *http.Request) (models.VideoRequest, error) {
	var req models.VideoRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return req, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	start, err := s.readImage(r, "starting_image")
	if err != nil {
		return req, err
	}
	if start == nil {
		return req, jobs.ErrMissingImage
	}
	end, err := s.readImage(r, "ending_image")
	if err != nil {
		return req, err
	}

	req.StartingImage = start
	req.EndingImage = end
	req.CustomPrompt = strings.TrimSpace(r.FormValue("custom_prompt"))
	req.GlobalContext = strings.TrimSpace(r.FormValue("global_context"))
	if v := strings.TrimSpace(r.FormValue("duration_seconds")); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return req, errors.New("duration_seconds must be a positive integer")
		}
		req.DurationSeconds = secs
	}
	return req, nil
}

// readImage returns nil when the field is absent.
func (s *Server) readImage(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	img, err := media.Normalize(raw, s.cfg.ImageMaxDimension)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	if w, h, err := media.Dimensions(img); err == nil {
		s.logger.Debug("image prepared", "field", field, "width", w, "height", h, "bytes", len(img))
	}
	return img, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.jobs.Status(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
		return
	}
	if err != nil {
		s.logger.Error("read job status", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if !s.jobs.Healthy(ctx) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status, "store": s.jobs.Backend()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(began).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func userFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-User-ID")); v != "" {
		return v
	}
	return anonymousUser
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
