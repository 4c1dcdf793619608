package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/realtime-gateway/internal/completion"
	"github.com/lexiqai/realtime-gateway/internal/config"
	"github.com/lexiqai/realtime-gateway/internal/gateway"
	"github.com/lexiqai/realtime-gateway/internal/observability"
	"github.com/lexiqai/realtime-gateway/internal/protocol"
	"github.com/lexiqai/realtime-gateway/internal/resilience"
	"github.com/lexiqai/realtime-gateway/internal/responder"
	"github.com/lexiqai/realtime-gateway/internal/session"
	"github.com/lexiqai/realtime-gateway/internal/speech"
	"github.com/lexiqai/realtime-gateway/internal/synthesis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("completion_url", cfg.CompletionURL).
		Str("synthesis_url", cfg.SynthesisURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Realtime Gateway Service starting")

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}

	completionClient := completion.NewHTTPClient(completion.HTTPOptions{
		URL:                 cfg.CompletionURL,
		APIKey:              cfg.CompletionAPIKey,
		RequestTimeout:      time.Duration(cfg.CompletionTimeout) * time.Second,
		BreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
		BreakerResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
		Retry:               retryCfg,
	}, logger)
	defer completionClient.Close()

	synthesisClient := synthesis.NewHTTPClient(synthesis.HTTPOptions{
		URL:                 cfg.SynthesisURL,
		APIKey:              cfg.SynthesisAPIKey,
		ProviderSampleRate:  cfg.SynthesisSampleRate,
		OutputSampleRate:    cfg.OutputSampleRate,
		BreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
		BreakerResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
	}, logger)
	defer synthesisClient.Close()

	registry := session.NewRegistry()
	table := speech.NewTable()
	orchestrator := responder.New(completionClient, synthesisClient, logger)

	reconnectCfg := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
	newRecognizer := func() speech.Recognizer {
		return speech.NewDeepgramRecognizer(speech.DeepgramOptions{
			APIKey:         cfg.DeepgramAPIKey,
			Model:          cfg.DeepgramModel,
			Language:       cfg.DeepgramLanguage,
			SampleRate:     cfg.RecognitionSampleRate,
			UtteranceEndMs: cfg.UtteranceEndMs,
			Reconnect:      reconnectCfg,
		}, logger)
	}

	speechCfg := speech.Config{
		SampleRate:        cfg.RecognitionSampleRate,
		InactivityTimeout: time.Duration(cfg.SpeechInactivityTimeout) * time.Second,
		FinalGrace:        time.Duration(cfg.SpeechFinalGrace) * time.Second,
		TurnCeiling:       time.Duration(cfg.SpeechTurnCeiling) * time.Second,
		KeepAliveInterval: time.Duration(cfg.SpeechKeepAliveMs) * time.Millisecond,
	}

	gw := gateway.New(gateway.Options{
		AuthToken:       cfg.AuthToken,
		InputSampleRate: cfg.InputSampleRate,
		Speech:          speechCfg,
		Defaults: protocol.SessionConfig{
			Modalities:    []string{"text", "audio"},
			Voice:         cfg.SynthesisVoiceID,
			Model:         cfg.SynthesisModelID,
			Eagerness:     "auto",
			TurnDetection: "server_vad",
		},
	}, registry, table, orchestrator, newRecognizer, logger)

	// Create HTTP server
	mux := http.NewServeMux()

	// Register realtime WebSocket handler
	mux.HandleFunc("/v1/realtime", gw.Handler())

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint - lightweight reachability probes, no paid API calls
	checks := map[string]observability.HealthCheckFunc{
		"recognition": func(ctx context.Context) (bool, error) {
			if cfg.DeepgramAPIKey == "" {
				return false, fmt.Errorf("recognition credentials not configured")
			}
			return true, nil
		},
		"completion": probeHTTP(cfg.CompletionURL),
		"synthesis":  probeHTTP(cfg.SynthesisURL),
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts; upgraded WebSocket connections are
	// hijacked and not subject to these.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/v1/realtime", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// probeHTTP reports whether a downstream HTTP base URL answers at all. Any
// response, including an error status, counts as reachable.
func probeHTTP(url string) observability.HealthCheckFunc {
	client := &http.Client{Timeout: 3 * time.Second}
	return func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		resp.Body.Close()
		return true, nil
	}
}
