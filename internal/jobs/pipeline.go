package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"framecast/internal/models"
	"framecast/internal/prompt"
	"framecast/internal/store"
	"framecast/internal/telemetry"
	"framecast/internal/video"
)

// process runs the pipeline and writes exactly one terminal record. The
// returned error only reports a failed terminal write; pipeline failures are
// recorded, not returned.
func (s *Service) process(ctx context.Context, jobID string, start time.Time, req models.VideoRequest) error {
	began := time.Now()
	telemetry.InFlightGauge.Inc()
	defer func() {
		telemetry.InFlightGauge.Dec()
		telemetry.PipelineDuration.Observe(time.Since(began).Seconds())
	}()

	rec, err := s.execute(ctx, jobID, start, req)
	if err != nil {
		s.logger.Error("video job failed", "job_id", jobID, "error", err)
		return s.finishWithError(ctx, jobID, start, err)
	}
	return s.finish(ctx, rec)
}

func (s *Service) execute(ctx context.Context, jobID string, start time.Time, req models.VideoRequest) (rec models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return s.pipeline(ctx, jobID, start, req)
}

// goRecover runs fn on g and reports a panic as that call's error. A recover
// in the caller does not reach errgroup goroutines.
func goRecover(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline panic: %v", r)
			}
		}()
		return fn()
	})
}

func (s *Service) pipeline(ctx context.Context, jobID string, start time.Time, req models.VideoRequest) (models.Record, error) {
	var (
		annotations string
		startFrame  []byte
		endFrame    []byte
	)

	g, gctx := errgroup.WithContext(ctx)
	goRecover(g, func() error {
		text, err := s.analyzer.Analyze(gctx, prompt.AnnotationAnalysis, req.StartingImage)
		if err != nil {
			return fmt.Errorf("analyze annotations: %w", err)
		}
		annotations = text
		return nil
	})
	goRecover(g, func() error {
		frame, err := s.editor.EditImage(gctx, prompt.CleanStartFrame, req.StartingImage)
		if err != nil {
			return fmt.Errorf("clean starting frame: %w", err)
		}
		startFrame = frame
		return nil
	})
	if req.HasEndingImage() {
		goRecover(g, func() error {
			frame, err := s.editor.EditImage(gctx, prompt.CleanEndFrame, req.EndingImage)
			if err != nil {
				return fmt.Errorf("clean ending frame: %w", err)
			}
			endFrame = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Record{}, err
	}

	res, err := s.generator.Generate(ctx, video.Request{
		JobID:           jobID,
		Prompt:          prompt.Build(req.CustomPrompt, req.GlobalContext, annotations),
		StartFrame:      startFrame,
		EndFrame:        endFrame,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		return models.Record{}, err
	}

	end := s.now().UTC()
	s.logger.Info("video job done",
		"job_id", jobID,
		"mode", string(res.Mode),
		"duration", res.Duration,
		"attempts", res.Attempts,
		"durable", res.DurableURL != "",
	)
	return models.Record{
		JobID:        jobID,
		Status:       models.StatusDone,
		JobStartTime: start,
		JobEndTime:   &end,
		VideoURL:     res.URL(),
		Metadata:     &models.Metadata{AnnotationDescription: annotations},
	}, nil
}

// finish swaps the pending record for the done record.
func (s *Service) finish(ctx context.Context, rec models.Record) error {
	if err := s.transition(ctx, rec.JobID, DoneKey(rec.JobID), rec, s.doneTTL); err != nil {
		return err
	}
	telemetry.JobsSucceeded.Inc()
	return nil
}

// finishWithError swaps the pending record for an error record.
func (s *Service) finishWithError(ctx context.Context, jobID string, start time.Time, cause error) error {
	rec := models.Record{
		JobID:        jobID,
		Status:       models.StatusError,
		JobStartTime: start,
		Error:        cause.Error(),
	}
	if err := s.transition(ctx, jobID, ErrorKey(jobID), rec, s.errorTTL); err != nil {
		return err
	}
	telemetry.JobsFailed.Inc()
	return nil
}

// transition writes the terminal record even if ctx was cancelled during
// shutdown, so a job does not stay pending until its ttl runs out.
func (s *Service) transition(ctx context.Context, jobID, key string, rec models.Record, ttl time.Duration) error {
	blob, err := store.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", rec.Status, err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if err := s.store.Replace(ctx, PendingKey(jobID), key, blob, ttl); err != nil {
		return fmt.Errorf("write %s record: %w", rec.Status, err)
	}
	return nil
}
