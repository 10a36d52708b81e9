// Package main provides a development server for the leave API that needs no
// Ollama. Prompts are answered from the worked examples, so posting one of
// their messages returns its expected extraction and anything else yields 502.
//
// Answers are matched on the message text alone, so the returned dates are
// the example's fixed dates whatever the reference date is. Send the
// example's reference_date (listed by /api/test/examples) to get a
// consistent request and response.
//
// Usage:
//
//	go run ./cmd/testserver
//
// The server exposes an additional endpoint:
//   - GET /api/test/examples - List the worked example messages
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omriShneor/leave_extractor/internal/config"
	"github.com/omriShneor/leave_extractor/internal/leave"
	"github.com/omriShneor/leave_extractor/internal/server"
	"github.com/omriShneor/leave_extractor/internal/timeutil"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.DebugLevel)
	logrus.Info("Starting leave extractor test server (scripted model)...")

	cfg := config.LoadFromEnv()

	prompt, err := leave.DefaultPrompt()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load prompt: %v\n", err)
		os.Exit(1)
	}

	loc, _ := timeutil.ResolveLocation(cfg.Timezone)
	extractor := leave.NewExtractor(leave.ExtractorConfig{
		Model:    leave.NewExampleModel(prompt.Examples()),
		Prompt:   prompt,
		Location: loc,
	})

	srv := server.New(server.ServerConfig{
		Extractor: extractor,
		Port:      cfg.HTTPPort,
	})

	// Create test control mux
	testMux := http.NewServeMux()
	testMux.HandleFunc("GET /api/test/examples", func(w http.ResponseWriter, r *http.Request) {
		type exampleMessage struct {
			LeaveRequest  string `json:"leave_request"`
			ReferenceDate string `json:"reference_date"`
		}
		var messages []exampleMessage
		for _, ex := range prompt.Examples() {
			messages = append(messages, exampleMessage{LeaveRequest: ex.Input, ReferenceDate: ex.Date})
		}
		respondJSON(w, http.StatusOK, messages)
	})
	testMux.Handle("/", srv.Handler())

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      testMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logrus.Infof("Test server listening on http://localhost:%d", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logrus.Info("Shutting down test server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Test server shutdown failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Error encoding JSON response")
	}
}
