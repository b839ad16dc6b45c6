// Package config loads the application configuration from an optional
// YAML file with environment variable overrides. Credential fields
// support ${VAR} substitution so keys never have to live in the file
// itself.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

// Defaults applied when the file and environment leave a key unset.
const (
	DefaultSynthesizer = "claude"
	DefaultRounds      = 1
	MaxRounds          = 3
	DefaultMaxTokens   = 4096
	DefaultTimeoutSecs = 120
)

// DefaultAliases maps the built-in short names to aggregator-catalog
// model IDs.
var DefaultAliases = map[string]string{
	"claude": "anthropic/claude-sonnet-4.5",
	"gpt":    "openai/gpt-5.2",
	"gemini": "google/gemini-2.5-pro",
	"grok":   "x-ai/grok-4",
}

// DefaultPanel is the built-in debate panel.
var DefaultPanel = []string{"claude", "gpt", "gemini", "grok"}

// credentialEnvVars names the environment variable consulted for each
// vendor when the file does not configure a key.
var credentialEnvVars = map[domain.Vendor]string{
	domain.VendorAnthropic:  "ANTHROPIC_API_KEY",
	domain.VendorOpenAI:     "OPENAI_API_KEY",
	domain.VendorGoogle:     "GOOGLE_API_KEY",
	domain.VendorXAI:        "XAI_API_KEY",
	domain.VendorGroq:       "GROQ_API_KEY",
	domain.VendorOpenRouter: "OPENROUTER_API_KEY",
}

type Config struct {
	Server   ServerConfig             `koanf:"server"`
	Log      LogConfig                `koanf:"log"`
	Debate   DebateConfig             `koanf:"debate"`
	Aliases  map[string]string        `koanf:"aliases"`
	Routing  RoutingConfig            `koanf:"routing"`
	Backends map[string]BackendConfig `koanf:"backends"`
	Prompts  PromptsConfig            `koanf:"prompts"`
}

// ServerConfig controls the HTTP API. APIKey, when set, gates every
// endpoint except the health check behind a bearer token. MaxConcurrent
// bounds how many debates run at once; requests beyond it are rejected
// rather than queued.
type ServerConfig struct {
	Port           int    `koanf:"port"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	APIKey         string `koanf:"api_key"`
	MaxConcurrent  int    `koanf:"max_concurrent"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type DebateConfig struct {
	Panel       []string `koanf:"panel"`
	Synthesizer string   `koanf:"synthesizer"`
	Rounds      int      `koanf:"rounds"`
	MaxTokens   int      `koanf:"max_tokens"`
}

// RoutingConfig selects how aliases reach backends. Overrides take
// precedence over the default mode for the named alias only.
type RoutingConfig struct {
	DefaultMode string            `koanf:"default_mode"`
	Overrides   map[string]string `koanf:"overrides"`
}

// BackendConfig holds per-vendor connection settings. APIKey supports
// ${VAR} substitution and defaults to the vendor's canonical environment
// variable.
type BackendConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxConcurrent  int    `koanf:"max_concurrent"`
}

// PromptsConfig overrides the built-in debate templates. Empty fields
// keep the defaults. Template placeholder names are part of the config
// contract.
type PromptsConfig struct {
	Initial    string `koanf:"initial"`
	Reflection string `koanf:"reflection"`
	Synthesis  string `koanf:"synthesis"`
	Scoring    string `koanf:"scoring"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from path (missing file is fine) and applies
// QAI_* environment overrides, defaults, and credential substitution.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use defaults and env vars
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Environment variables override file config: QAI_SERVER__PORT → server.port
	if err := k.Load(env.Provider("QAI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "QAI_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("server.timeout_seconds") {
		k.Set("server.timeout_seconds", 600)
	}
	if !k.Exists("server.max_concurrent") {
		k.Set("server.max_concurrent", 4)
	}
	if !k.Exists("log.level") {
		k.Set("log.level", "info")
	}
	if !k.Exists("log.format") {
		k.Set("log.format", "json")
	}
	if !k.Exists("debate.synthesizer") {
		k.Set("debate.synthesizer", DefaultSynthesizer)
	}
	if !k.Exists("debate.rounds") {
		k.Set("debate.rounds", DefaultRounds)
	}
	if !k.Exists("debate.max_tokens") {
		k.Set("debate.max_tokens", DefaultMaxTokens)
	}
	if !k.Exists("routing.default_mode") {
		k.Set("routing.default_mode", string(domain.RouteAuto))
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Debate.Panel) == 0 {
		cfg.Debate.Panel = append([]string(nil), DefaultPanel...)
	}
	if cfg.Debate.Rounds > MaxRounds {
		cfg.Debate.Rounds = MaxRounds
	}

	// File aliases extend the defaults rather than replacing them.
	aliases := make(map[string]string, len(DefaultAliases)+len(cfg.Aliases))
	for k, v := range DefaultAliases {
		aliases[k] = v
	}
	for k, v := range cfg.Aliases {
		aliases[k] = v
	}
	cfg.Aliases = aliases

	if cfg.Backends == nil {
		cfg.Backends = make(map[string]BackendConfig)
	}

	cfg.Server.APIKey = substituteEnvVars(cfg.Server.APIKey)

	// Substitute ${VAR} references, then fall back to the canonical env
	// var for vendors the file doesn't mention.
	for name, bc := range cfg.Backends {
		bc.APIKey = substituteEnvVars(bc.APIKey)
		bc.BaseURL = substituteEnvVars(bc.BaseURL)
		cfg.Backends[name] = bc
	}
	for vendor, envName := range credentialEnvVars {
		bc := cfg.Backends[string(vendor)]
		if bc.APIKey == "" {
			bc.APIKey = os.Getenv(envName)
		}
		cfg.Backends[string(vendor)] = bc
	}
	if bc := cfg.Backends[string(domain.VendorOllama)]; bc.BaseURL == "" {
		bc.BaseURL = os.Getenv("OLLAMA_HOST")
		cfg.Backends[string(domain.VendorOllama)] = bc
	}

	if !domain.RoutingMode(cfg.Routing.DefaultMode).Valid() {
		return nil, fmt.Errorf("invalid routing mode %q", cfg.Routing.DefaultMode)
	}
	for alias, mode := range cfg.Routing.Overrides {
		if !domain.RoutingMode(mode).Valid() {
			return nil, fmt.Errorf("invalid routing mode %q for alias %q", mode, alias)
		}
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Backend returns the connection settings for a vendor, zero-valued when
// unconfigured.
func (c *Config) Backend(v domain.Vendor) BackendConfig {
	return c.Backends[string(v)]
}

// Credentials reports which vendors have usable credentials. The ollama
// vendor is keyless and counts as credentialed whenever a host is set.
func (c *Config) Credentials() domain.CredentialSet {
	creds := make(domain.CredentialSet)
	for name, bc := range c.Backends {
		v := domain.Vendor(name)
		switch v {
		case domain.VendorOllama:
			creds[v] = bc.BaseURL != ""
		default:
			creds[v] = bc.APIKey != ""
		}
	}
	return creds
}

// ModeFor returns the routing mode in effect for an alias, applying
// per-alias overrides on top of the default mode.
func (c *Config) ModeFor(alias string) domain.RoutingMode {
	if mode, ok := c.Routing.Overrides[alias]; ok {
		return domain.RoutingMode(mode)
	}
	return domain.RoutingMode(c.Routing.DefaultMode)
}

// ResolveModel resolves an alias to a fully-qualified model ID. Inputs
// that already look like model IDs (contain a slash) pass through
// verbatim.
func (c *Config) ResolveModel(aliasOrID string) (string, error) {
	if id, ok := c.Aliases[aliasOrID]; ok {
		return id, nil
	}
	if strings.Contains(aliasOrID, "/") {
		return aliasOrID, nil
	}
	known := make([]string, 0, len(c.Aliases))
	for alias := range c.Aliases {
		known = append(known, alias)
	}
	sort.Strings(known)
	return "", domain.ErrInvalidRequestf(
		"unknown model alias %q (known aliases: %s; or pass a full model ID like anthropic/claude-sonnet-4.5)",
		aliasOrID, strings.Join(known, ", "))
}

// ResolvePanel resolves a list of aliases or model IDs.
func (c *Config) ResolvePanel(panel []string) ([]string, error) {
	ids := make([]string, len(panel))
	for i, alias := range panel {
		id, err := c.ResolveModel(alias)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
