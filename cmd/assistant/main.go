package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tealbridge/feishu-assistant/internal/api"
	"github.com/tealbridge/feishu-assistant/internal/biz/usecase"
	"github.com/tealbridge/feishu-assistant/internal/conf"
	"github.com/tealbridge/feishu-assistant/internal/data"
	"github.com/tealbridge/feishu-assistant/internal/infra/feishu"
	"github.com/tealbridge/feishu-assistant/internal/observability"
	"github.com/tealbridge/feishu-assistant/internal/server"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Durable store
	store, err := data.NewStore(cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	fmt.Printf("[Assistant] Store DB: %s\n", cfg.Store.DBPath)

	// External endpoints
	llmClient := data.NewLLMClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.VisionModel, cfg.LLM.Timeout)
	searchClient := data.NewSearchClient(cfg.Search.BaseURL)
	if cfg.Search.BaseURL != "" {
		fmt.Printf("[Assistant] Search endpoint: %s\n", cfg.Search.BaseURL)
	} else {
		fmt.Println("[Assistant] No search endpoint configured, augmentation degraded")
	}

	// Usecase layer
	historyUC := usecase.NewHistoryUsecase(store, cfg.History.WindowSize)
	filterUC := usecase.NewFilterUsecase(store)
	promptBuilder := usecase.NewPromptBuilder(cfg.ToPromptConfig())
	responderUC := usecase.NewResponderUsecase(historyUC, filterUC, promptBuilder, store, llmClient, searchClient)

	// An unloaded filter cache behaves like "no filters", so a failed bulk
	// load is worth a loud warning even though lazy loads can recover later.
	ctx := context.Background()
	if err := filterUC.LoadAll(ctx); err != nil {
		fmt.Printf("[Assistant] Warning: filter preload failed, moderation may lag: %v\n", err)
	}

	// Observability
	metrics := observability.NewMetrics("assistant")

	// Admin/ops HTTP API (loopback only)
	apiServer := api.NewServer(filterUC, store, cfg.API.Port)
	go func() {
		if err := apiServer.Start(); err != nil {
			fmt.Printf("[Assistant] API server error: %v\n", err)
		}
	}()

	// Gateway
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
	srv := server.NewFeishuServer(feishuClient, responderUC, filterUC, metrics, cfg.Feishu.OwnerID)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		srv.Stop()
		apiServer.Stop()
		store.Close()
		os.Exit(0)
	}()

	fmt.Println("Starting Feishu assistant gateway...")
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
