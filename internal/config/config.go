// ABOUTME: Configuration loading and parsing for crafty-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete crafty-gateway configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Security  SecurityConfig   `yaml:"security"`
	Providers ProvidersConfig  `yaml:"providers"`
	MCP       MCPConfig        `yaml:"mcp"`
	Workflows []WorkflowConfig `yaml:"workflows"`
	Bridges   BridgesConfig    `yaml:"bridges"`
	Poller    PollerConfig     `yaml:"poller"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// BaseURL is the externally reachable URL used when registering
	// webhooks with the bridges (e.g. "https://gw.example.com").
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SecurityConfig holds secrets-at-rest configuration
type SecurityConfig struct {
	// KeyEncryptionSecret seals user API keys in the database.
	KeyEncryptionSecret string `yaml:"key_encryption_secret"`
}

// ProvidersConfig holds process-wide default API keys per model provider.
// A per-user key stored in the vault always takes precedence over these.
type ProvidersConfig struct {
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	GoogleAPIKey     string `yaml:"google_api_key"`
	XAIAPIKey        string `yaml:"xai_api_key"`
	OpenRouterAPIKey string `yaml:"openrouter_api_key"`
	FalAPIKey        string `yaml:"fal_api_key"`
	LumaAPIKey       string `yaml:"luma_api_key"`
	ReplicateAPIKey  string `yaml:"replicate_api_key"`
	ExaAPIKey        string `yaml:"exa_api_key"`
	OllamaBaseURL    string `yaml:"ollama_base_url"`
}

// MCPServerConfig describes one plugin (MCP) server tools are loaded from.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// MCPConfig holds plugin server configuration
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
	// CustomizationPrompt is appended to the system prompt whenever at
	// least one plugin server contributed tools to the turn.
	CustomizationPrompt string `yaml:"customization_prompt"`
}

// WorkflowStepConfig describes one HTTP request in a configured workflow.
// URL and BodyTemplate may reference tool arguments as {{name}}.
type WorkflowStepConfig struct {
	Method       string            `yaml:"method"`
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers"`
	BodyTemplate string            `yaml:"body_template"`
}

// WorkflowConfig describes one workflow exposed to the model as a tool.
// InputSchema is a JSON schema document for the tool's arguments.
type WorkflowConfig struct {
	ID          string               `yaml:"id"`
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	InputSchema string               `yaml:"input_schema"`
	Steps       []WorkflowStepConfig `yaml:"steps"`
}

// BridgesConfig holds configuration for the external messaging bridges
type BridgesConfig struct {
	Evolution EvolutionConfig `yaml:"evolution"`
	Chatwoot  ChatwootConfig  `yaml:"chatwoot"`
}

// EvolutionConfig holds the WhatsApp instance manager endpoint
type EvolutionConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// ChatwootConfig holds the support inbox platform endpoint
type ChatwootConfig struct {
	URL       string `yaml:"url"`
	AccountID string `yaml:"account_id"`
	APIToken  string `yaml:"api_token"`
}

// PollerConfig holds connection status poller configuration
type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Security.KeyEncryptionSecret == "" {
		return fmt.Errorf("security.key_encryption_secret is required")
	}

	for i, srv := range c.MCP.Servers {
		if srv.Name == "" {
			return fmt.Errorf("mcp.servers[%d].name is required", i)
		}
		if srv.URL == "" {
			return fmt.Errorf("mcp.servers[%d].url is required", i)
		}
	}

	for i, wf := range c.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("workflows[%d].name is required", i)
		}
		if len(wf.Steps) == 0 {
			return fmt.Errorf("workflows[%d].steps is required", i)
		}
		for j, step := range wf.Steps {
			if step.URL == "" {
				return fmt.Errorf("workflows[%d].steps[%d].url is required", i, j)
			}
		}
	}

	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval is required when the poller is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Poller.IntervalRaw != "" {
		interval, err := time.ParseDuration(cfg.Poller.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poller interval %q: %w", cfg.Poller.IntervalRaw, err)
		}
		cfg.Poller.Interval = interval
	}

	return nil
}
