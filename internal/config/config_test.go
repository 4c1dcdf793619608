package config

import (
	"os"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("COMPLETION_URL", "http://localhost:9001/v1/complete")
	os.Setenv("SYNTHESIS_URL", "http://localhost:9002/v1/synthesize")
	t.Cleanup(func() {
		os.Unsetenv("DEEPGRAM_API_KEY")
		os.Unsetenv("COMPLETION_URL")
		os.Unsetenv("SYNTHESIS_URL")
	})
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}

	if cfg.CompletionURL != "http://localhost:9001/v1/complete" {
		t.Errorf("Expected CompletionURL to round-trip, got '%s'", cfg.CompletionURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")
	os.Unsetenv("COMPLETION_URL")
	os.Unsetenv("SYNTHESIS_URL")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}

	if cfg.DeepgramLanguage != "en" {
		t.Errorf("Expected default DeepgramLanguage 'en', got '%s'", cfg.DeepgramLanguage)
	}

	if cfg.SynthesisVoiceID != "sonic-english" {
		t.Errorf("Expected default SynthesisVoiceID 'sonic-english', got '%s'", cfg.SynthesisVoiceID)
	}

	if cfg.SynthesisModelID != "sonic" {
		t.Errorf("Expected default SynthesisModelID 'sonic', got '%s'", cfg.SynthesisModelID)
	}

	if cfg.RecognitionSampleRate != 16000 {
		t.Errorf("Expected default RecognitionSampleRate 16000, got %d", cfg.RecognitionSampleRate)
	}

	if cfg.OutputSampleRate != 24000 {
		t.Errorf("Expected default OutputSampleRate 24000, got %d", cfg.OutputSampleRate)
	}

	if cfg.UtteranceEndMs != "1000" {
		t.Errorf("Expected default UtteranceEndMs '1000', got '%s'", cfg.UtteranceEndMs)
	}
}

func TestLoad_SpeechTimerDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.SpeechInactivityTimeout != 60 {
		t.Errorf("Expected default SpeechInactivityTimeout 60, got %d", cfg.SpeechInactivityTimeout)
	}

	if cfg.SpeechFinalGrace != 2 {
		t.Errorf("Expected default SpeechFinalGrace 2, got %d", cfg.SpeechFinalGrace)
	}

	if cfg.SpeechTurnCeiling != 40 {
		t.Errorf("Expected default SpeechTurnCeiling 40, got %d", cfg.SpeechTurnCeiling)
	}

	if cfg.SpeechKeepAliveMs != 100 {
		t.Errorf("Expected default SpeechKeepAliveMs 100, got %d", cfg.SpeechKeepAliveMs)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.RetryInitialBackoff != 100 {
		t.Errorf("Expected default RetryInitialBackoff 100, got %d", cfg.RetryInitialBackoff)
	}

	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}

	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequired(t)
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// The default should be "info" (lowercase) as defined in config.go
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
