// Package video turns cleaned frames into a generated clip and persists it.
package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"framecast/internal/prompt"
	"framecast/internal/storage"
	"framecast/internal/telemetry"
)

// ErrNoMediaGenerated marks a generation that finished without output,
// typically a content-safety rejection. Only this failure is retried.
var ErrNoMediaGenerated = errors.New("no media generated")

// Mode selects which generation endpoint is used.
type Mode string

const (
	ModeImageToVideo   Mode = "image-to-video"
	ModeFirstLastFrame Mode = "first-last-frame-to-video"
)

// DefaultDuration is used for any duration without a bucket.
const DefaultDuration = "6s"

var durationBuckets = map[int]string{
	4: "4s",
	5: "4s",
	6: "6s",
	7: "6s",
	8: "8s",
}

// DurationBucket maps requested seconds onto a preset the provider accepts.
func DurationBucket(seconds int) string {
	if d, ok := durationBuckets[seconds]; ok {
		return d
	}
	return DefaultDuration
}

// RenderRequest is a single call to the generation provider.
type RenderRequest struct {
	Mode       Mode
	Prompt     string
	FirstFrame []byte
	LastFrame  []byte
	Duration   string
}

// Renderer runs one generation and returns the provider's transient URL.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}

// Request describes a clip to generate for a job.
type Request struct {
	JobID           string
	Prompt          string
	StartFrame      []byte
	EndFrame        []byte
	DurationSeconds int
}

// Result reports what was generated and where it lives.
type Result struct {
	TransientURL string
	DurableURL   string
	Mode         Mode
	Duration     string
	Attempts     int
}

// URL prefers the durable copy.
func (r Result) URL() string {
	if r.DurableURL != "" {
		return r.DurableURL
	}
	return r.TransientURL
}

// Generator wraps a Renderer with the retry policy and best-effort persistence.
type Generator struct {
	renderer    Renderer
	uploader    storage.Uploader
	httpClient  *http.Client
	maxAttempts int
	maxBytes    int64
	logger      *slog.Logger
}

// Options tune a Generator; zero values pick defaults.
type Options struct {
	MaxAttempts     int
	DownloadTimeout time.Duration
	MaxBytes        int64
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// NewGenerator builds a Generator. uploader may be nil, in which case results
// only carry the transient URL.
func NewGenerator(renderer Renderer, uploader storage.Uploader, opts Options) *Generator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 2
	}
	if opts.DownloadTimeout == 0 {
		opts.DownloadTimeout = 300 * time.Second
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 512 * 1024 * 1024
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.DownloadTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Generator{
		renderer:    renderer,
		uploader:    uploader,
		httpClient:  opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		maxBytes:    opts.MaxBytes,
		logger:      opts.Logger,
	}
}

// Generate renders the clip, retrying once with a simplified prompt when the
// provider produced no media, then copies it to durable storage if possible.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	res := Result{
		Mode:     ModeImageToVideo,
		Duration: DurationBucket(req.DurationSeconds),
	}
	if len(req.EndFrame) > 0 {
		res.Mode = ModeFirstLastFrame
	}
	logger := g.logger.With("job_id", req.JobID, "mode", string(res.Mode), "duration", res.Duration)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		p := req.Prompt
		if attempt > 1 {
			p = prompt.Simplify(req.Prompt)
			telemetry.GenerationRetries.Inc()
		}
		res.Attempts = attempt
		logger.Info("generating video", "attempt", attempt, "max_attempts", g.maxAttempts, "prompt_chars", len(p))

		url, err := g.renderer.Render(ctx, RenderRequest{
			Mode:       res.Mode,
			Prompt:     p,
			FirstFrame: req.StartFrame,
			LastFrame:  req.EndFrame,
			Duration:   res.Duration,
		})
		if err == nil {
			res.TransientURL = url
			lastErr = nil
			break
		}
		lastErr = err
		if !errors.Is(err, ErrNoMediaGenerated) {
			break
		}
		logger.Warn("no media generated", "attempt", attempt, "error", err)
	}
	if lastErr != nil {
		return res, fmt.Errorf("generate video: %w", lastErr)
	}
	if res.TransientURL == "" {
		return res, errors.New("generate video: provider returned no video url")
	}

	if g.uploader == nil || req.JobID == "" {
		return res, nil
	}
	durable, err := g.persist(ctx, req.JobID, res.TransientURL)
	if err != nil {
		telemetry.StorageFallbacks.Inc()
		logger.Error("storing video failed, keeping provider url", "error", err)
		return res, nil
	}
	res.DurableURL = durable
	return res, nil
}

func (g *Generator) persist(ctx context.Context, jobID, url string) (string, error) {
	data, err := g.download(ctx, url)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("videos/%s.mp4", jobID)
	stored, err := g.uploader.Upload(ctx, key, data, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}
	g.logger.Info("video stored", "job_id", jobID, "bytes", len(data), "url", stored)
	return stored, nil
}

func (g *Generator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download video: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read video: %w", err)
	}
	if int64(len(body)) > g.maxBytes {
		return nil, fmt.Errorf("video too large (>%d bytes)", g.maxBytes)
	}
	if len(body) == 0 {
		return nil, errors.New("download video: empty body")
	}
	return body, nil
}
