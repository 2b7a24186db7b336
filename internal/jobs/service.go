// Package jobs owns the lifecycle of video jobs: submission, the background
// pipeline and status reads.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"framecast/internal/config"
	"framecast/internal/models"
	"framecast/internal/store"
	"framecast/internal/telemetry"
	"framecast/internal/video"
	"framecast/internal/worker"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrMissingImage = errors.New("starting image is required")
)

const (
	defaultDurationSeconds = 6
	terminalWriteTimeout   = 10 * time.Second
)

// Analyzer describes the annotations drawn on a frame.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, image []byte) (string, error)
}

// ImageEditor rewrites a frame according to an instruction.
type ImageEditor interface {
	EditImage(ctx context.Context, prompt string, image []byte) ([]byte, error)
}

// VideoGenerator produces the final clip.
type VideoGenerator interface {
	Generate(ctx context.Context, req video.Request) (video.Result, error)
}

// Scheduler accepts background work without blocking.
type Scheduler interface {
	Submit(task worker.Task) error
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Store     store.Store
	Scheduler Scheduler
	Analyzer  Analyzer
	Editor    ImageEditor
	Generator VideoGenerator
	Logger    *slog.Logger
}

// Service submits jobs and answers status queries.
type Service struct {
	store     store.Store
	scheduler Scheduler
	analyzer  Analyzer
	editor    ImageEditor
	generator VideoGenerator
	logger    *slog.Logger

	pendingTTL time.Duration
	errorTTL   time.Duration
	doneTTL    time.Duration
	now        func() time.Time
}

// NewService wires a Service. TTLs come from cfg.
func NewService(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      deps.Store,
		scheduler:  deps.Scheduler,
		analyzer:   deps.Analyzer,
		editor:     deps.Editor,
		generator:  deps.Generator,
		logger:     logger,
		pendingTTL: ttlOr(cfg.PendingTTL, 600*time.Second),
		errorTTL:   ttlOr(cfg.ErrorTTL, 600*time.Second),
		doneTTL:    ttlOr(cfg.DoneTTL, time.Hour),
		now:        time.Now,
	}
}

func ttlOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Submit records the job as pending, hands the pipeline to the scheduler and
// returns the new id without waiting for any external call.
func (s *Service) Submit(ctx context.Context, req models.VideoRequest) (string, error) {
	if len(req.StartingImage) == 0 {
		return "", ErrMissingImage
	}
	if req.DurationSeconds == 0 {
		req.DurationSeconds = defaultDurationSeconds
	}

	jobID := uuid.NewString()
	start := s.now().UTC()

	// The pending record must exist before the id is handed out, so an early
	// poll reads "waiting" rather than "not found".
	blob, err := store.Encode(models.Record{JobID: jobID, Status: models.StatusPending, JobStartTime: start})
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, PendingKey(jobID), blob, s.pendingTTL); err != nil {
		return "", fmt.Errorf("store pending record: %w", err)
	}

	err = s.scheduler.Submit(worker.Task{
		ID: jobID,
		Run: func(ctx context.Context) error {
			return s.process(ctx, jobID, start, req)
		},
	})
	if err != nil {
		err = fmt.Errorf("schedule job: %w", err)
		if werr := s.finishWithError(context.WithoutCancel(ctx), jobID, start, err); werr != nil {
			s.logger.Error("recording schedule failure", "job_id", jobID, "error", werr)
		}
		return "", err
	}

	telemetry.JobsSubmitted.Inc()
	s.logger.Info("video job submitted",
		"job_id", jobID,
		"user_id", req.UserID,
		"duration_seconds", req.DurationSeconds,
		"ending_image", req.HasEndingImage(),
	)
	return jobID, nil
}

// Status reports the job's externally visible state. It returns ErrNotFound
// when no record exists, including the brief window while a job is between
// records.
func (s *Service) Status(ctx context.Context, jobID string) (models.JobStatus, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return models.JobStatus{}, ErrNotFound
	}
	for _, kind := range readOrder {
		blob, found, err := s.store.Get(ctx, recordKey(kind, jobID))
		if err != nil {
			return models.JobStatus{}, fmt.Errorf("read %s record: %w", kind, err)
		}
		if !found {
			continue
		}
		var rec models.Record
		if err := store.Decode(blob, &rec); err != nil {
			return models.JobStatus{}, fmt.Errorf("read %s record: %w", kind, err)
		}
		return s.project(kind, rec), nil
	}
	return models.JobStatus{}, ErrNotFound
}

func (s *Service) project(kind string, rec models.Record) models.JobStatus {
	switch kind {
	case models.StatusPending:
		return models.JobStatus{Status: models.StatusWaiting, JobStartTime: rec.JobStartTime}
	case models.StatusError:
		return models.JobStatus{Status: models.StatusError, JobStartTime: rec.JobStartTime, Error: rec.Error}
	default:
		end := rec.JobEndTime
		if end == nil {
			now := s.now().UTC()
			end = &now
		}
		return models.JobStatus{
			Status:       models.StatusDone,
			JobStartTime: rec.JobStartTime,
			JobEndTime:   end,
			VideoURL:     rec.VideoURL,
			Metadata:     rec.Metadata,
		}
	}
}

// Healthy reports store reachability for liveness probes.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.store.Healthy(ctx)
}

// Backend names the store in use.
func (s *Service) Backend() string {
	return s.store.Backend()
}
