package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the API process and its background workers.
type Config struct {
	Env      string
	HTTPPort string
	LogLevel string

	RedisURL            string
	MemorySweepSchedule string
	PendingTTL          time.Duration
	ErrorTTL            time.Duration
	DoneTTL             time.Duration

	WorkerCount           int
	WorkerQueueSize       int
	GenerationMaxAttempts int

	FalKey                 string
	FalQueueURL            string
	FalPollInterval        time.Duration
	FalRequestTimeout      time.Duration
	EditTimeout            time.Duration
	VideoGenerationTimeout time.Duration
	ImageDownloadTimeout   time.Duration
	VideoDownloadTimeout   time.Duration
	VideoMaxBytes          int64

	GeminiAPIKey   string
	GeminiBaseURL  string
	GeminiModel    string
	AnalyzeTimeout time.Duration

	StorageBackend    string
	StorageDir        string
	PublicURL         string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool
	PresignTTL        time.Duration

	MaxUploadBytes    int64
	ImageMaxDimension int

	RateLimitCapacity int
	RateLimitRefill   float64
}

// Load reads configuration from a .env file (if any) and environment variables,
// with defaults suitable for local development.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisURL:            getEnv("REDIS_URL", ""),
		MemorySweepSchedule: getEnv("MEMORY_SWEEP_SCHEDULE", "@every 1m"),
		PendingTTL:          getEnvDuration("PENDING_TTL", 600*time.Second),
		ErrorTTL:            getEnvDuration("ERROR_TTL", 600*time.Second),
		DoneTTL:             getEnvDuration("DONE_TTL", time.Hour),

		WorkerCount:           getEnvInt("WORKER_COUNT", 8),
		WorkerQueueSize:       getEnvInt("WORKER_QUEUE_SIZE", 100),
		GenerationMaxAttempts: getEnvInt("GENERATION_MAX_ATTEMPTS", 2),

		FalKey:                 getEnv("FAL_KEY", ""),
		FalQueueURL:            getEnv("FAL_QUEUE_URL", "https://queue.fal.run"),
		FalPollInterval:        getEnvDuration("FAL_POLL_INTERVAL", 2*time.Second),
		FalRequestTimeout:      getEnvDuration("FAL_REQUEST_TIMEOUT", 30*time.Second),
		EditTimeout:            getEnvDuration("EDIT_TIMEOUT", 3*time.Minute),
		VideoGenerationTimeout: getEnvDuration("VIDEO_GENERATION_TIMEOUT", 10*time.Minute),
		ImageDownloadTimeout:   getEnvDuration("IMAGE_DOWNLOAD_TIMEOUT", 120*time.Second),
		VideoDownloadTimeout:   getEnvDuration("VIDEO_DOWNLOAD_TIMEOUT", 300*time.Second),
		VideoMaxBytes:          getEnvInt64("VIDEO_MAX_BYTES", 512*1024*1024),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:  getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AnalyzeTimeout: getEnvDuration("ANALYZE_TIMEOUT", 60*time.Second),

		StorageBackend:    strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		StorageDir:        getEnv("STORAGE_DIR", "./output"),
		PublicURL:         strings.TrimRight(getEnv("PUBLIC_URL", ""), "/"),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3PathStyle:       getEnvBool("S3_PATH_STYLE", false),
		PresignTTL:        getEnvDuration("PRESIGN_TTL", 7*24*time.Hour),

		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 32*1024*1024),
		ImageMaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 2048),

		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.1),
	}

	// R2 endpoints are derived from the account id.
	if cfg.S3Endpoint == "" {
		if account := getEnv("R2_ACCOUNT_ID", ""); account != "" {
			cfg.S3Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", account)
		}
	}
	if cfg.StorageBackend == "" {
		if cfg.S3Bucket != "" {
			cfg.StorageBackend = "s3"
		} else {
			cfg.StorageBackend = "none"
		}
	}
	return cfg
}

// Validate reports settings that leave a capability unusable. The service still
// starts; callers log the result.
func (c Config) Validate() error {
	var errs []error
	if c.FalKey == "" {
		errs = append(errs, errors.New("FAL_KEY is not set: image cleanup and video generation will fail"))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is not set: annotation analysis will fail"))
	}
	switch c.StorageBackend {
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("STORAGE_BACKEND=s3 requires S3_BUCKET"))
		}
	case "local", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.GenerationMaxAttempts < 1 {
		errs = append(errs, errors.New("GENERATION_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare integers are read as seconds, matching the TTL settings.
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
