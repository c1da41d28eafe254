package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tealbridge/feishu-assistant/mcpserver"
)

func main() {
	apiURL := os.Getenv("ASSISTANT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:9876"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	srv := mcpserver.NewServer(apiURL)
	fmt.Fprintf(os.Stderr, "[MCP] Serving assistant admin tools (API: %s)\n", apiURL)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
