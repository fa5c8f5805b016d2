package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheShakSpace/Samyak/internal/agent"
	"github.com/TheShakSpace/Samyak/internal/config"
	"github.com/TheShakSpace/Samyak/internal/httpserver"
	"github.com/TheShakSpace/Samyak/internal/infra/storage"
	"github.com/TheShakSpace/Samyak/internal/responder"
	"github.com/TheShakSpace/Samyak/internal/store"
	"github.com/TheShakSpace/Samyak/internal/transcript"
	"github.com/TheShakSpace/Samyak/internal/tts"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	srv := httpserver.New(buildDeps(cfg))

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// buildDeps wires the responder chain, speech adapters, store, and archive
// from configuration. Missing credentials degrade to null adapters.
func buildDeps(cfg config.Config) httpserver.Deps {
	var chain []responder.Named
	if cfg.GeminiAPIKey != "" {
		chain = append(chain, responder.Named{
			Name:      "gemini",
			Responder: responder.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel),
		})
	}
	if cfg.AgentBackendURL != "" {
		chain = append(chain, responder.Named{
			Name:      "backend",
			Responder: responder.NewBackendClient(cfg.AgentBackendURL),
		})
	}
	chain = append(chain, responder.Named{Name: "canned", Responder: responder.NewCanned("")})

	var recognizer agent.Recognizer = transcript.NullRecognizer{}
	if cfg.AssemblyAIKey != "" {
		recognizer = transcript.NewAssemblyAIRecognizer(cfg.AssemblyAIKey)
	}

	newSpeaker := func(sink tts.Sink) agent.Speaker {
		if cfg.DeepgramAPIKey == "" {
			return tts.NullSpeaker{}
		}
		return tts.NewDeepgramSpeaker(cfg.DeepgramAPIKey, cfg.DeepgramTTSModel, sink)
	}

	deps := httpserver.Deps{
		Store:           store.New(),
		Responder:       responder.NewChain(chain...),
		Recognizer:      recognizer,
		NewSpeaker:      newSpeaker,
		TwilioAuthToken: cfg.TwilioAuthToken,
	}

	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		archive, err := storage.NewArchive(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
		if err != nil {
			log.Printf("archive disabled: %v", err)
		} else {
			deps.Archive = archive
		}
	}

	return deps
}
