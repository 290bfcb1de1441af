package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/notegraph/notegraph-mcp/internal/config"
	"github.com/notegraph/notegraph-mcp/internal/graph"
	"github.com/notegraph/notegraph-mcp/internal/server"
	"github.com/notegraph/notegraph-mcp/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	transport := flag.String("transport", "", "Transport mode: stdio or http")
	port := flag.String("port", "", "HTTP port (only used with --transport http)")
	vaultDir := flag.String("vault", "", "Directory holding the entity markdown files")
	watch := flag.Bool("watch", false, "Log external edits to vault files")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *vaultDir != "" {
		cfg.VaultDir = *vaultDir
	}
	if *watch {
		cfg.Watch = true
	}

	// Open the vault
	v, err := vault.Open(cfg.VaultDir)
	if err != nil {
		log.Fatalf("Failed to open vault: %v", err)
	}

	if cfg.Watch {
		w, err := v.Watch(func(ev vault.Event) {
			log.Printf("Vault change: entity %q (%s)", ev.Entity, ev.Op)
		})
		if err != nil {
			log.Fatalf("Failed to watch vault: %v", err)
		}
		defer w.Close()
	}

	// Build the MCP server with all tools registered
	srv := server.New(graph.New(v))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cfg.Transport {
	case "stdio":
		log.Printf("Knowledge graph MCP server starting (stdio, vault %s)", v.Root())
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case "http":
		addr := ":" + cfg.Port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		log.Printf("Knowledge graph MCP server listening on %s (vault %s)", addr, v.Root())
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	default:
		log.Fatalf("Unknown transport: %s (use stdio or http)", cfg.Transport)
	}
}
