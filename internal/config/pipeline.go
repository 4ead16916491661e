package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// PipelineConfig drives the evaluation worker pool, retry policy and the
// circuit breaker guarding the external AI endpoints.
type PipelineConfig struct {
	Provider                string // "openrouter" or "gemini"
	Workers                 int
	QueueSize               int
	MaxRetries              int
	BaseDelay               time.Duration
	MaxDelay                time.Duration
	MaxTextLen              int
	UploadDir               string
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenDuration     time.Duration
}

var (
	pipelineConfig *PipelineConfig
	pipelineOnce   sync.Once
)

func LoadPipelineConfig() *PipelineConfig {
	pipelineOnce.Do(func() {
		provider := os.Getenv("AI_PROVIDER")
		if provider == "" {
			provider = "openrouter"
		}
		uploadDir := os.Getenv("UPLOAD_DIR")
		if uploadDir == "" {
			uploadDir = "./uploads/cv"
		}
		pipelineConfig = &PipelineConfig{
			Provider:                provider,
			Workers:                 getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:               getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			MaxRetries:              getEnvAsInt("PIPELINE_MAX_RETRIES", 3),
			BaseDelay:               getEnvAsDuration("PIPELINE_BASE_DELAY", time.Second),
			MaxDelay:                getEnvAsDuration("PIPELINE_MAX_DELAY", 90*time.Second),
			MaxTextLen:              getEnvAsInt("EXTRACT_MAX_CHARS", 50000),
			UploadDir:               uploadDir,
			BreakerFailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 3),
			BreakerSuccessThreshold: getEnvAsInt("BREAKER_SUCCESS_THRESHOLD", 1),
			BreakerOpenDuration:     getEnvAsDuration("BREAKER_OPEN_DURATION", 60*time.Second),
		}
	})
	return pipelineConfig
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
