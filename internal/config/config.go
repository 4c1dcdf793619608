package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the realtime gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Bearer token clients must present on /v1/realtime. When empty the
	// gateway accepts unauthenticated connections (local development only).
	AuthToken string `envconfig:"AUTH_TOKEN" default:""`

	// Deepgram recognition API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)
	UtteranceEndMs   string `envconfig:"UTTERANCE_END_MS" default:"1000"` // Silence before a turn ends

	// Completion service (streaming HTTP)
	CompletionURL     string `envconfig:"COMPLETION_URL" required:"true"`
	CompletionAPIKey  string `envconfig:"COMPLETION_API_KEY" default:""`
	CompletionTimeout int    `envconfig:"COMPLETION_TIMEOUT" default:"120"` // seconds

	// Synthesis service (streaming HTTP)
	SynthesisURL        string `envconfig:"SYNTHESIS_URL" required:"true"`
	SynthesisAPIKey     string `envconfig:"SYNTHESIS_API_KEY" default:""`
	SynthesisVoiceID    string `envconfig:"SYNTHESIS_VOICE_ID" default:"sonic-english"`
	SynthesisModelID    string `envconfig:"SYNTHESIS_MODEL_ID" default:"sonic"`
	SynthesisSampleRate int    `envconfig:"SYNTHESIS_SAMPLE_RATE" default:"24000"` // rate the provider returns

	// Audio configuration
	InputSampleRate       int `envconfig:"INPUT_SAMPLE_RATE" default:"24000"`       // default client capture rate
	RecognitionSampleRate int `envconfig:"RECOGNITION_SAMPLE_RATE" default:"16000"` // rate sent to recognition
	OutputSampleRate      int `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"`      // wire output rate

	// Speech session timers (seconds unless noted)
	SpeechInactivityTimeout int `envconfig:"SPEECH_INACTIVITY_TIMEOUT" default:"60"`
	SpeechFinalGrace        int `envconfig:"SPEECH_FINAL_GRACE" default:"2"`
	SpeechTurnCeiling       int `envconfig:"SPEECH_TURN_CEILING" default:"40"`
	SpeechKeepAliveMs       int `envconfig:"SPEECH_KEEPALIVE_MS" default:"100"` // milliseconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate required fields
	if cfg.DeepgramAPIKey == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	if cfg.CompletionURL == "" {
		return nil, fmt.Errorf("COMPLETION_URL is required")
	}
	if cfg.SynthesisURL == "" {
		return nil, fmt.Errorf("SYNTHESIS_URL is required")
	}
	if cfg.RecognitionSampleRate <= 0 || cfg.OutputSampleRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
