package fal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecast/internal/config"
	"framecast/internal/video"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

// fakeQueue mimics the fal queue: submit, a pending poll, then the result.
type fakeQueue struct {
	t      *testing.T
	srv    *httptest.Server
	result string
	status int
	polls  atomic.Int32
	mu     sync.Mutex
	model  string
	auth   string
	args   map[string]any
}

func newFakeQueue(t *testing.T, resultStatus int, result string) *fakeQueue {
	f := &fakeQueue{t: t, result: result, status: resultStatus}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeQueue) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost:
		var args map[string]any
		_ = json.NewDecoder(r.Body).Decode(&args)
		f.mu.Lock()
		f.model = strings.TrimPrefix(r.URL.Path, "/")
		f.auth = r.Header.Get("Authorization")
		f.args = args
		f.mu.Unlock()
		fmt.Fprintf(w, `{"request_id":"req-1","status_url":"%s/requests/req-1/status","response_url":"%s/requests/req-1"}`, f.srv.URL, f.srv.URL)
	case r.URL.Path == "/requests/req-1/status":
		if f.polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"status":"IN_QUEUE","queue_position":3}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"COMPLETED"}`))
	case r.URL.Path == "/requests/req-1":
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(strings.ReplaceAll(f.result, "{base}", f.srv.URL)))
	case r.URL.Path == "/asset.png":
		_, _ = w.Write(pngMagic)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeQueue) client() *Client {
	return NewClient(config.Config{
		FalKey:          "secret",
		FalQueueURL:     f.srv.URL,
		FalPollInterval: time.Millisecond,
	}, nil)
}

func TestRenderImageToVideo(t *testing.T) {
	q := newFakeQueue(t, http.StatusOK, `{"video":{"url":"https://v3.fal.media/out.mp4"}}`)

	url, err := q.client().Render(context.Background(), video.RenderRequest{
		Mode:       video.ModeImageToVideo,
		Prompt:     "a cat jumps",
		FirstFrame: pngMagic,
		Duration:   "6s",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://v3.fal.media/out.mp4", url)
	assert.EqualValues(t, 2, q.polls.Load())

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, "fal-ai/veo3.1/fast/image-to-video", q.model)
	assert.Equal(t, "Key secret", q.auth)
	assert.Equal(t, "a cat jumps", q.args["prompt"])
	assert.Equal(t, "6s", q.args["duration"])
	assert.Equal(t, false, q.args["generate_audio"])
	assert.True(t, strings.HasPrefix(q.args["image_url"].(string), "data:image/png;base64,"))
	assert.NotContains(t, q.args, "last_frame_url")
}

func TestRenderFirstLastFrame(t *testing.T) {
	q := newFakeQueue(t, http.StatusOK, `{"video":{"url":"https://v3.fal.media/out.mp4"}}`)

	_, err := q.client().Render(context.Background(), video.RenderRequest{
		Mode:       video.ModeFirstLastFrame,
		Prompt:     "p",
		FirstFrame: pngMagic,
		LastFrame:  pngMagic,
		Duration:   "8s",
	})
	require.NoError(t, err)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, "fal-ai/veo3.1/fast/first-last-frame-to-video", q.model)
	assert.Contains(t, q.args, "first_frame_url")
	assert.Contains(t, q.args, "last_frame_url")
	assert.NotContains(t, q.args, "image_url")
	assert.Equal(t, "8s", q.args["duration"])
}

func TestRenderClassifiesNoMediaGenerated(t *testing.T) {
	q := newFakeQueue(t, http.StatusUnprocessableEntity,
		`{"detail":[{"type":"no_media_generated","msg":"The model did not produce any output"}]}`)

	_, err := q.client().Render(context.Background(), video.RenderRequest{
		Mode: video.ModeImageToVideo, Prompt: "p", FirstFrame: pngMagic, Duration: "6s",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, video.ErrNoMediaGenerated)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "no_media_generated", apiErr.Type)
}

func TestRenderOtherErrorsAreNotNoMedia(t *testing.T) {
	q := newFakeQueue(t, http.StatusInternalServerError, `{"detail":"internal error"}`)

	_, err := q.client().Render(context.Background(), video.RenderRequest{
		Mode: video.ModeImageToVideo, Prompt: "p", FirstFrame: pngMagic, Duration: "6s",
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, video.ErrNoMediaGenerated))
}

func TestRenderRejectsUnknownMode(t *testing.T) {
	q := newFakeQueue(t, http.StatusOK, `{}`)
	_, err := q.client().Render(context.Background(), video.RenderRequest{Mode: "slideshow", FirstFrame: pngMagic})
	assert.Error(t, err)
}

func TestEditImageDownloadsResult(t *testing.T) {
	q := newFakeQueue(t, http.StatusOK, `{"images":[{"url":"{base}/asset.png"}]}`)

	out, err := q.client().EditImage(context.Background(), "remove the text", pngMagic)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, out)

	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Equal(t, "fal-ai/nano-banana-pro/edit", q.model)
	assert.Equal(t, "remove the text", q.args["prompt"])
	assert.Len(t, q.args["image_urls"], 1)
	assert.Equal(t, "png", q.args["output_format"])
}

func TestEditImageFailsWithoutImages(t *testing.T) {
	q := newFakeQueue(t, http.StatusOK, `{"images":[]}`)
	_, err := q.client().EditImage(context.Background(), "p", pngMagic)
	assert.Error(t, err)
}

func TestPollingHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"request_id":"r"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"IN_PROGRESS"}`))
	}))
	defer srv.Close()

	c := NewClient(config.Config{FalQueueURL: srv.URL, FalPollInterval: 5 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Render(ctx, video.RenderRequest{Mode: video.ModeImageToVideo, FirstFrame: pngMagic})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDataURI(t *testing.T) {
	_, err := dataURI(nil)
	assert.Error(t, err)

	uri, err := dataURI([]byte("plain bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
