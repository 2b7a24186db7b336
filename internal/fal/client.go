// Package fal talks to the fal.ai queue API for image edits and video
// generation.
package fal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"framecast/internal/config"
	"framecast/internal/video"
)

const (
	statusCompleted = "COMPLETED"

	noMediaGenerated = "no_media_generated"
	maxErrorBody     = 64 * 1024
)

// APIError is a non-2xx answer from fal.
type APIError struct {
	StatusCode int
	Type       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("fal api error: status %d (%s): %s", e.StatusCode, e.Type, e.Body)
	}
	return fmt.Sprintf("fal api error: status %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, video.ErrNoMediaGenerated) classify content-safety
// rejections.
func (e *APIError) Is(target error) bool {
	if target != video.ErrNoMediaGenerated {
		return false
	}
	return e.Type == noMediaGenerated || strings.Contains(e.Body, noMediaGenerated)
}

// Client submits requests to the fal queue and waits for their results.
type Client struct {
	key          string
	baseURL      string
	api          *http.Client
	download     *http.Client
	pollInterval time.Duration
	editTimeout  time.Duration
	videoTimeout time.Duration
	logger       *slog.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	poll := cfg.FalPollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		key:          cfg.FalKey,
		baseURL:      strings.TrimRight(cfg.FalQueueURL, "/"),
		api:          &http.Client{Timeout: orDefault(cfg.FalRequestTimeout, 30*time.Second)},
		download:     &http.Client{Timeout: orDefault(cfg.ImageDownloadTimeout, 120*time.Second)},
		pollInterval: poll,
		editTimeout:  orDefault(cfg.EditTimeout, 3*time.Minute),
		videoTimeout: orDefault(cfg.VideoGenerationTimeout, 10*time.Minute),
		logger:       logger,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

type queueTicket struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type queueStatus struct {
	Status        string `json:"status"`
	QueuePosition int    `json:"queue_position"`
}

// run submits arguments to a model, polls until it completes and decodes the
// result into out.
func (c *Client) run(ctx context.Context, model string, args any, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}

	var ticket queueTicket
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/"+model, body, &ticket); err != nil {
		return fmt.Errorf("submit %s: %w", model, err)
	}
	if ticket.RequestID == "" {
		return fmt.Errorf("submit %s: missing request id", model)
	}
	if ticket.StatusURL == "" {
		ticket.StatusURL = fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, model, ticket.RequestID)
	}
	if ticket.ResponseURL == "" {
		ticket.ResponseURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, model, ticket.RequestID)
	}
	logger := c.logger.With("model", model, "request_id", ticket.RequestID)
	logger.Debug("fal request queued")

	for {
		var st queueStatus
		if err := c.do(ctx, http.MethodGet, ticket.StatusURL, nil, &st); err != nil {
			return fmt.Errorf("poll %s: %w", model, err)
		}
		if st.Status == statusCompleted {
			break
		}
		logger.Debug("fal request pending", "status", st.Status, "queue_position", st.QueuePosition)
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll %s: %w", model, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}

	if err := c.do(ctx, http.MethodGet, ticket.ResponseURL, nil, out); err != nil {
		return fmt.Errorf("fetch %s result: %w", model, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && len(payload.Detail) > 0 {
		var details []struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(payload.Detail, &details) == nil && len(details) > 0 {
			apiErr.Type = details[0].Type
		}
	}
	return apiErr
}

// fetch downloads a result asset such as an edited image.
func (c *Client) fetch(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download asset: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("asset too large (>%d bytes)", limit)
	}
	return data, nil
}

// dataURI inlines image bytes so no separate upload step is needed.
func dataURI(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("image is empty")
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
