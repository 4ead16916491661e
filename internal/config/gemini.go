package config

import (
	"os"
	"sync"
	"time"
)

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

var (
	geminiConfig *GeminiConfig
	geminiOnce   sync.Once
)

func LoadGeminiConfig() *GeminiConfig {
	geminiOnce.Do(func() {
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			model = "gemini-2.5-flash"
		}
		geminiConfig = &GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Model:   model,
			Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
		}
	})
	return geminiConfig
}
