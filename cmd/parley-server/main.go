package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfgPkg "github.com/parleychat/parley/pkg/config"
	"github.com/parleychat/parley/pkg/extract"
	"github.com/parleychat/parley/pkg/history"
	"github.com/parleychat/parley/pkg/llm"
	"github.com/parleychat/parley/server"
)

func main() {
	var configPath string
	var port string
	var dbURL string

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&port, "port", "", "Port to listen on")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string for conversation history")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if port != "" {
		cfg.Server.Port = port
	}
	if dbURL != "" {
		cfg.History.DatabaseURL = dbURL
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("Invalid config: %v", e)
		}
		os.Exit(1)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
	if err != nil {
		log.Fatalf("Failed to initialize chat engine: %v", err)
	}

	srv := server.NewServer(server.Config{
		Port:           cfg.Server.Port,
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		MaxBodyBytes:   int64(cfg.Server.MaxBodyMB) << 20,
		Model:          cfg.LLM.Model,
	}, chatEngine, extract.New())

	// History is optional: without a database the server still chats,
	// it just cannot store or search conversations.
	if cfg.History.DatabaseURL != "" {
		store, err := history.NewWithConfig(history.StoreConfig{
			ConnString:  cfg.History.DatabaseURL,
			VectorDim:   cfg.History.VectorDim,
			SearchLimit: cfg.History.SearchLimit,
		})
		if err != nil {
			log.Fatalf("Failed to initialize history store: %v", err)
		}
		defer store.Close()

		embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:   cfg.History.EmbedModel,
			BaseURL: cfg.History.EmbedBaseURL,
		})
		if err != nil {
			log.Fatalf("Failed to initialize embedder: %v", err)
		}

		srv.WithStore(store).WithEmbedder(embedder)
		log.Println("Conversation history enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
