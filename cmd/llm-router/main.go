package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	llmrouter "github.com/radlab/llm-router"
	"github.com/radlab/llm-router/internal/version"

	// Register built-in maskers and guardrails so they can be loaded from
	// config.
	_ "github.com/radlab/llm-router/internal/hooks/lengthguard"
	_ "github.com/radlab/llm-router/internal/hooks/regexmask"
	_ "github.com/radlab/llm-router/internal/hooks/wordguard"
)

func main() {
	// Optional config file; the LLM_ROUTER_* environment always wins.
	var base *llmrouter.Config
	if cfgPath := os.Getenv("LLM_ROUTER_CONFIG"); cfgPath != "" {
		loaded, err := llmrouter.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		base = loaded
	}
	cfg := llmrouter.ConfigFromEnv(base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := llmrouter.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start router: %v", err)
	}
	defer func() { _ = router.Close() }()

	router.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router.Handler(),
		ReadTimeout: 30 * time.Second,
		// Write timeout must outlive the upstream leg, streams included.
		WriteTimeout: cfg.ExternalTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("llm-router %s listening on %s (strategy=%s, models=%d)",
		version.Short(), addr, cfg.BalanceStrategy, len(router.Catalog().ActiveModels()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}
