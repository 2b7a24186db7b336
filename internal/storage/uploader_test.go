package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framecast/internal/config"
)

func TestLocalUploaderWritesUnderBaseDir(t *testing.T) {
	dir := t.TempDir()
	up := NewLocalUploader(dir, "http://localhost:8080/")

	url, err := up.Upload(context.Background(), "videos/job-1.mp4", []byte("mp4"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/videos/job-1.mp4", url)

	data, err := os.ReadFile(filepath.Join(dir, "videos", "job-1.mp4"))
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4"), data)
}

func TestSanitizeKeyStaysInsideRoot(t *testing.T) {
	assert.Equal(t, "etc/passwd", sanitizeKey("../../etc/passwd"))
	assert.Equal(t, "videos/a.mp4", sanitizeKey("/videos/./a.mp4"))
	assert.Equal(t, "videos/a.mp4", sanitizeKey(`videos\a.mp4`))
}

type fakeS3 struct {
	mu      sync.Mutex
	method  string
	path    string
	ctype   string
	payload []byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.method, f.path, f.ctype, f.payload = r.Method, r.URL.Path, r.Header.Get("Content-Type"), body
	f.mu.Unlock()
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
}

func newS3Config(endpoint string) config.Config {
	return config.Config{
		StorageBackend:    "s3",
		S3Bucket:          "clips",
		S3Region:          "auto",
		S3Endpoint:        endpoint,
		S3AccessKeyID:     "test",
		S3SecretAccessKey: "secret",
		S3PathStyle:       true,
	}
}

func TestS3UploaderPutsObjectAndReturnsPublicURL(t *testing.T) {
	fake := &fakeS3{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := newS3Config(srv.URL)
	cfg.PublicURL = "https://cdn.example.com"
	up, err := New(context.Background(), cfg)
	require.NoError(t, err)

	url, err := up.Upload(context.Background(), "videos/job-9.mp4", []byte("video-bytes"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/videos/job-9.mp4", url)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, http.MethodPut, fake.method)
	assert.Equal(t, "/clips/videos/job-9.mp4", fake.path)
	assert.Equal(t, "video/mp4", fake.ctype)
	assert.Equal(t, []byte("video-bytes"), fake.payload)
}

func TestS3UploaderPresignsWithoutPublicURL(t *testing.T) {
	srv := httptest.NewServer(&fakeS3{})
	defer srv.Close()

	cfg := newS3Config(srv.URL)
	cfg.PresignTTL = time.Hour
	up, err := New(context.Background(), cfg)
	require.NoError(t, err)

	url, err := up.Upload(context.Background(), "videos/job-2.mp4", []byte("x"), "video/mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, srv.URL+"/clips/videos/job-2.mp4?"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
	assert.Contains(t, url, "X-Amz-Expires=3600")
}

func TestNewSelectsBackend(t *testing.T) {
	up, err := New(context.Background(), config.Config{StorageBackend: "none"})
	require.NoError(t, err)
	assert.Nil(t, up)

	up, err = New(context.Background(), config.Config{StorageBackend: "local", StorageDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalUploader{}, up)

	_, err = New(context.Background(), config.Config{StorageBackend: "s3"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.Config{StorageBackend: "ftp"})
	assert.Error(t, err)
}
