package mcpruntime

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Default per-operation timeouts.
const (
	defaultInitializeTimeout = 10 * time.Second
	defaultListToolsTimeout  = 10 * time.Second
	defaultToolCallTimeout   = 30 * time.Second
)

// RuntimeConfig holds the knobs a host process can tune. Every field has a
// sensible default; only environment overlay (LoadConfigFromEnv) or
// explicit Options need to set them.
type RuntimeConfig struct {
	InitializeTimeout time.Duration
	ListToolsTimeout  time.Duration
	ToolCallTimeout   time.Duration
	EventBufferSize   int
	MaxLineBytes      int
	Logger            *slog.Logger
}

// envConfig is the envdecode target. It mirrors RuntimeConfig's tunable
// fields using the corpus's "env tag with inline default" convention, so a
// host can default the runtime purely from its process environment.
type envConfig struct {
	InitializeTimeoutMS int `env:"MCPRUNTIME_INITIALIZE_TIMEOUT_MS,default=10000"`
	ListToolsTimeoutMS  int `env:"MCPRUNTIME_LIST_TOOLS_TIMEOUT_MS,default=10000"`
	ToolCallTimeoutMS   int `env:"MCPRUNTIME_TOOL_CALL_TIMEOUT_MS,default=30000"`
	EventBufferSize     int `env:"MCPRUNTIME_EVENT_BUFFER_SIZE,default=64"`
	MaxLineBytes        int `env:"MCPRUNTIME_MAX_LINE_BYTES,default=16777216"`
}

// defaultRuntimeConfig returns the hardcoded default timeouts and buffer
// sizes, with no environment or option overlay applied.
func defaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		InitializeTimeout: defaultInitializeTimeout,
		ListToolsTimeout:  defaultListToolsTimeout,
		ToolCallTimeout:   defaultToolCallTimeout,
		EventBufferSize:   defaultEventBufferSize,
		MaxLineBytes:      defaultMaxLineBytes,
		Logger:            slog.Default(),
	}
}

// LoadConfigFromEnv overlays defaultRuntimeConfig with any MCPRUNTIME_*
// environment variables present, using joeshaw/envdecode. It never returns
// an error for missing variables, since envdecode's inline defaults cover
// that, only for a variable present but unparsable as its declared type.
func LoadConfigFromEnv() (RuntimeConfig, error) {
	cfg := defaultRuntimeConfig()

	var ec envConfig
	if err := envdecode.Decode(&ec); err != nil {
		return cfg, fmt.Errorf("decode environment config: %w", err)
	}

	cfg.InitializeTimeout = time.Duration(ec.InitializeTimeoutMS) * time.Millisecond
	cfg.ListToolsTimeout = time.Duration(ec.ListToolsTimeoutMS) * time.Millisecond
	cfg.ToolCallTimeout = time.Duration(ec.ToolCallTimeoutMS) * time.Millisecond
	cfg.EventBufferSize = ec.EventBufferSize
	cfg.MaxLineBytes = ec.MaxLineBytes

	return cfg, nil
}

// Option configures a Runtime at construction time, following the
// functional-options idiom used throughout this corpus (ClientOption,
// ServerOption). New applies Options in the order given, so an Option wins
// over the environment overlay only when it comes after WithEnv.
type Option func(*RuntimeConfig)

// WithLogger sets the structured logger every component uses.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RuntimeConfig) { c.Logger = logger }
}

// WithTimeouts overrides one or more of the three per-operation timeouts.
// A zero duration leaves the corresponding default (or env-overlaid value)
// untouched.
func WithTimeouts(initialize, listTools, toolCall time.Duration) Option {
	return func(c *RuntimeConfig) {
		if initialize > 0 {
			c.InitializeTimeout = initialize
		}
		if listTools > 0 {
			c.ListToolsTimeout = listTools
		}
		if toolCall > 0 {
			c.ToolCallTimeout = toolCall
		}
	}
}

// WithEventBufferSize overrides the per-subscriber event channel depth.
func WithEventBufferSize(n int) Option {
	return func(c *RuntimeConfig) {
		if n > 0 {
			c.EventBufferSize = n
		}
	}
}

// WithMaxLineBytes overrides the oversized-line threshold.
func WithMaxLineBytes(n int) Option {
	return func(c *RuntimeConfig) {
		if n > 0 {
			c.MaxLineBytes = n
		}
	}
}

// WithEnv replaces the config being built with LoadConfigFromEnv's result
// (defaults plus environment), discarding any Option applied before it,
// WithLogger included. If the environment cannot be decoded it leaves the
// config unchanged. Pass it first among Options so any Option listed after
// it still wins.
func WithEnv() Option {
	return func(c *RuntimeConfig) {
		envCfg, err := LoadConfigFromEnv()
		if err != nil {
			return
		}
		*c = envCfg
	}
}

// serverManifest is the YAML shape LoadLaunchSpecsFromFile parses: a named
// set of servers to bulk-connect at process start, the YAML analogue of the
// corpus's JSON ".mcp.json" convention. This is sugar over ConnectServer,
// not a change to persisted state.
type serverManifest struct {
	Servers map[string]struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
	} `yaml:"servers"`
}

// LoadLaunchSpecsFromFile reads a YAML manifest of server_id -> LaunchSpec
// entries, for callers that want to bulk-connect servers listed in a
// config file rather than calling ConnectServer once per server in code.
func LoadLaunchSpecsFromFile(path string) (map[ServerID]LaunchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}

	var manifest serverManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}

	specs := make(map[ServerID]LaunchSpec, len(manifest.Servers))
	for name, entry := range manifest.Servers {
		specs[ServerID(name)] = LaunchSpec{Command: entry.Command, Args: entry.Args}
	}
	return specs, nil
}
