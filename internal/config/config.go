// Package config provides configuration management for the DBGp bridge.
//
// Configuration controls:
//   - Listener address: which host/port the engine dials into
//   - Command timeout: how long a single DBGp command may stay outstanding
//   - Inspection limits: max_depth, max_children, max_data negotiated on attach
//   - Capability mode: readonly vs full, mirroring which tools are exposed
//   - Safety limits: maximum concurrent sessions
//   - Path mapping: container/host filename prefixes, when the bridge and
//     the debug engine see the debugged script under different roots
//
// Configuration can be loaded from a JSON file or use sensible defaults.
package config

import (
	"encoding/json"
	"os"
	"time"
)

// CapabilityMode controls which tools the MCP surface exposes.
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // inspection tools only
	ModeFull     CapabilityMode = "full"     // breakpoints, stepping, eval, everything
)

// Config holds the server configuration (spec §6).
type Config struct {
	ListenHost       string         `json:"listenHost"`
	ListenPort       int            `json:"listenPort"`
	CommandTimeoutMS int            `json:"commandTimeoutMs"`
	MaxDepth         int            `json:"maxDepth"`
	MaxChildren      int            `json:"maxChildren"`
	MaxData          int            `json:"maxData"`
	ShowHidden       bool           `json:"showHidden"`
	LogLevel         string         `json:"logLevel"`

	Mode         CapabilityMode `json:"mode"`
	AllowModify  bool           `json:"allowModify"`
	AllowExecute bool           `json:"allowExecute"`

	MaxSessions    int           `json:"maxSessions"`
	SessionTimeout time.Duration `json:"sessionTimeout"`

	// ContainerPathPrefix/HostPathPrefix configure a pathurl.PrefixMapper
	// for when the bridge and the debug engine see the debugged script
	// under different filesystem roots (e.g. the bridge runs inside a
	// container bind-mounting the host project directory elsewhere).
	// Both empty means the two share a filesystem view.
	ContainerPathPrefix string `json:"containerPathPrefix"`
	HostPathPrefix      string `json:"hostPathPrefix"`
}

// PathMappingConfigured reports whether a container/host path prefix
// mapping was set.
func (c *Config) PathMappingConfigured() bool {
	return c.ContainerPathPrefix != "" || c.HostPathPrefix != ""
}

// CommandTimeout returns the configured command timeout as a time.Duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// DefaultConfig returns a configuration with the defaults from spec §6.
func DefaultConfig() *Config {
	return &Config{
		ListenHost:       "0.0.0.0",
		ListenPort:       9003,
		CommandTimeoutMS: 30000,
		MaxDepth:         3,
		MaxChildren:      128,
		MaxData:          2048,
		ShowHidden:       false,
		LogLevel:         "info",

		Mode:         ModeFull,
		AllowModify:  true,
		AllowExecute: true,

		MaxSessions:    10,
		SessionTimeout: 30 * time.Minute,
	}
}

// LoadConfig loads configuration from a JSON file, overlaying it onto the
// defaults. An empty path returns the defaults unmodified.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CanUseControlTools returns true if execution-control tools (continue,
// step, breakpoints) are enabled.
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanModifyVariables returns true if set-variable/property_set is allowed.
func (c *Config) CanModifyVariables() bool {
	return c.Mode == ModeFull && c.AllowModify
}

// CanEvaluate returns true if expression evaluation is allowed.
func (c *Config) CanEvaluate() bool {
	return c.AllowExecute
}
