package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omriShneor/leave_extractor/internal/config"
	"github.com/omriShneor/leave_extractor/internal/leave"
	"github.com/omriShneor/leave_extractor/internal/ollama"
	"github.com/omriShneor/leave_extractor/internal/server"
	"github.com/omriShneor/leave_extractor/internal/timeutil"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadFromEnv()
	initLogging(cfg)

	prompt, err := leave.DefaultPrompt()
	if err != nil {
		fatal("loading prompt", err)
	}

	client := initModelClient(cfg)
	extractor := initExtractor(cfg, client, prompt)

	srv := server.New(server.ServerConfig{
		Extractor:    extractor,
		Model:        client,
		Port:         cfg.HTTPPort,
		ModelTimeout: cfg.ModelTimeout,
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			fatal("running HTTP server", err)
		}
	}()

	checkModel(client)
	waitForShutdown(srv)
}

func initLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func initModelClient(cfg *config.Config) *ollama.Client {
	client := ollama.NewClient(ollama.Config{
		BaseURL:     cfg.OllamaBaseURL,
		Model:       cfg.ModelName,
		Temperature: cfg.ModelTemperature,
		Timeout:     cfg.ModelTimeout,
		JSONMode:    cfg.ModelJSONMode,
	})
	logrus.WithFields(logrus.Fields{
		"model":    client.Model(),
		"base_url": cfg.OllamaBaseURL,
		"timeout":  cfg.ModelTimeout,
	}).Info("Model client configured (Ollama)")
	return client
}

func initExtractor(cfg *config.Config, client *ollama.Client, prompt *leave.Prompt) *leave.Extractor {
	loc, fallback := timeutil.ResolveLocation(cfg.Timezone)
	if fallback && cfg.Timezone != "" {
		logrus.Warnf("Unknown LEAVE_TIMEZONE %q, using server local time", cfg.Timezone)
	}

	return leave.NewExtractor(leave.ExtractorConfig{
		Model:    client,
		Prompt:   prompt,
		Location: loc,
	})
}

// checkModel warns at startup when Ollama is not reachable. The service still
// starts; requests fail with 503 until it is.
func checkModel(client *ollama.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		logrus.WithError(err).Warn("Model endpoint not reachable")
	}
}

func fatal(context string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", context, err)
	os.Exit(1)
}

func waitForShutdown(srv *server.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logrus.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
}
