// ABOUTME: Entry point for the crafty-gateway server
// ABOUTME: Wires config, store, vault, bridges and the HTTP API

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/Bakhitov/crafty-gateway/internal/auth"
	"github.com/Bakhitov/crafty-gateway/internal/bridge"
	"github.com/Bakhitov/crafty-gateway/internal/channel"
	"github.com/Bakhitov/crafty-gateway/internal/config"
	"github.com/Bakhitov/crafty-gateway/internal/connection"
	"github.com/Bakhitov/crafty-gateway/internal/conversation"
	"github.com/Bakhitov/crafty-gateway/internal/dedupe"
	"github.com/Bakhitov/crafty-gateway/internal/gateway"
	"github.com/Bakhitov/crafty-gateway/internal/imagegen"
	"github.com/Bakhitov/crafty-gateway/internal/keyvault"
	"github.com/Bakhitov/crafty-gateway/internal/llm"
	"github.com/Bakhitov/crafty-gateway/internal/store"
	"github.com/Bakhitov/crafty-gateway/internal/tools"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 __ _
  ___ _ __ __ _ / _| |_ _   _        __ _  __ _| |_ _____      ____ _ _   _
 / __| '__/ _' | |_| __| | | |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (__| | | (_| |  _| |_| |_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___|_|  \__,_|_|  \__|\__, |      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                        |___/       |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: CRAFTY_CONFIG env var > XDG_CONFIG_HOME/crafty/gateway.yaml > ~/.config/crafty/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CRAFTY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "crafty", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: crafty-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                 Start the gateway server")
		fmt.Println("  token --user USER     Mint a bearer token for a user")
		fmt.Println("  health                Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:   %s\n", cfg.Server.HTTPAddr)
	fmt.Println()

	logger.Info("starting crafty-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	vault, err := keyvault.NewService(st, cfg.Security.KeyEncryptionSecret, providerDefaults(cfg))
	if err != nil {
		return fmt.Errorf("creating key vault: %w", err)
	}
	sealer, err := keyvault.NewSealer(cfg.Security.KeyEncryptionSecret)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}

	resolver := llm.NewResolver(vault, cfg.Providers.OllamaBaseURL)
	registry := tools.NewRegistry(cfg.MCP.Servers, tools.WorkflowsFromConfig(cfg.Workflows))
	images := imagegen.NewDispatcher(vault)
	orchestrator := conversation.NewOrchestrator(st, resolver, registry, vault, images, cfg.MCP.CustomizationPrompt)

	evoClient := bridge.NewEvolutionClient(cfg.Bridges.Evolution.URL, cfg.Bridges.Evolution.APIKey)
	cwClient := bridge.NewChatwootClient(cfg.Bridges.Chatwoot.URL, cfg.Bridges.Chatwoot.APIToken)
	connections := connection.NewService(st, evoClient, cwClient, sealer, cfg.Server.BaseURL)
	channels := channel.NewService(st, cwClient, resolver, dedupe.New(10*time.Minute, 4096), llm.ProviderOpenAI, "")

	if cfg.Poller.Enabled {
		poller := connection.NewPoller(connections, cfg.Poller.Interval)
		if err := poller.Start(ctx); err != nil {
			return fmt.Errorf("starting poller: %w", err)
		}
		defer poller.Stop()
	}

	srv := gateway.New(gateway.Options{
		Addr:        cfg.Server.HTTPAddr,
		Store:       st,
		Turns:       orchestrator,
		Connections: connections,
		Channels:    channels,
		Vault:       vault,
		Verifier:    auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// providerDefaults maps configured process-wide keys onto the vault's
// fallback table. Empty values are dropped by the vault.
func providerDefaults(cfg *config.Config) map[string]string {
	return map[string]string{
		llm.ProviderOpenAI:     cfg.Providers.OpenAIAPIKey,
		llm.ProviderAnthropic:  cfg.Providers.AnthropicAPIKey,
		llm.ProviderGoogle:     cfg.Providers.GoogleAPIKey,
		llm.ProviderXAI:        cfg.Providers.XAIAPIKey,
		llm.ProviderOpenRouter: cfg.Providers.OpenRouterAPIKey,
		"fal":                  cfg.Providers.FalAPIKey,
		"luma":                 cfg.Providers.LumaAPIKey,
		"replicate":            cfg.Providers.ReplicateAPIKey,
		"exa":                  cfg.Providers.ExaAPIKey,
	}
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id the token authenticates")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(*user, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.Server.HTTPAddr+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: %s", resp.Status)
	}
	color.New(color.FgGreen).Println("gateway is healthy")
	return nil
}
