package warden

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/platform"
)

// Config is warden's on-disk configuration, loaded from
// ~/.warden/config.yaml. Absent keys keep their defaults; unknown keys
// are rejected so typos fail loudly.
type Config struct {
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Security SecurityConfig `yaml:"security"`
}

// SandboxConfig controls command execution and resource ceilings.
type SandboxConfig struct {
	// Enabled turns sandboxed execution on. When false, commands run
	// unconfined but resource ceilings still apply.
	Enabled bool `yaml:"enabled"`

	// Level caps the capability tier: auto, full, standard, minimal, or
	// none. "auto" uses whatever the platform supports; any other value
	// clamps the detected tier down, never up.
	Level string `yaml:"level"`

	// TimeoutSecs is the wall-clock ceiling per command.
	TimeoutSecs int `yaml:"timeout_secs"`

	// MaxOutputBytes caps combined stdout+stderr capture.
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// MaxFileSizeBytes caps files the command may create (RLIMIT_FSIZE).
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// MaxProcesses caps the process count (RLIMIT_NPROC).
	MaxProcesses int `yaml:"max_processes"`

	// Network is the network posture: deny or proxy.
	Network NetworkConfig `yaml:"network"`

	// AllowPaths extends the policy grants for every invocation.
	AllowPaths AllowPathsConfig `yaml:"allow_paths"`
}

// NetworkConfig holds the network section of the sandbox config.
type NetworkConfig struct {
	Policy string `yaml:"policy"`
}

// AllowPathsConfig holds extra path grants applied to every policy.
type AllowPathsConfig struct {
	Read  []string `yaml:"read"`
	Write []string `yaml:"write"`
}

// SecurityConfig controls the trust layer: policy document injection,
// signing, and verification behavior.
type SecurityConfig struct {
	// StrictPolicy aborts session start when the policy document fails
	// verification instead of degrading to the built-in suffix alone.
	StrictPolicy bool `yaml:"strict_policy"`

	// DisablePolicy skips injecting the workspace policy document layer.
	DisablePolicy bool `yaml:"disable_policy"`

	// DisableSuffix skips injecting the built-in security suffix. Both
	// flags must be set to suppress the security block entirely.
	DisableSuffix bool `yaml:"disable_suffix"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	limits := platform.DefaultLimits()
	return &Config{
		Sandbox: SandboxConfig{
			Enabled:          true,
			Level:            "auto",
			TimeoutSecs:      limits.TimeoutSecs,
			MaxOutputBytes:   limits.MaxOutputBytes,
			MaxFileSizeBytes: limits.MaxFileSizeBytes,
			MaxProcesses:     limits.MaxProcesses,
			Network:          NetworkConfig{Policy: "deny"},
		},
	}
}

// DefaultConfigPath returns ~/.warden/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".warden", "config.yaml"), nil
}

// LoadConfig reads the config file at path. A missing file yields the
// defaults; a malformed or invalid file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		// An empty file is a valid all-defaults config.
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, accumulating every problem into one
// error so a broken file is fixed in a single pass.
func (c *Config) Validate() error {
	var errs []string

	switch c.Sandbox.Level {
	case "auto", "full", "standard", "minimal", "none":
	default:
		errs = append(errs, fmt.Sprintf("sandbox.level: unknown level %q", c.Sandbox.Level))
	}

	switch c.Sandbox.Network.Policy {
	case "deny", "proxy":
	default:
		errs = append(errs, fmt.Sprintf("sandbox.network.policy: unknown policy %q", c.Sandbox.Network.Policy))
	}

	if c.Sandbox.TimeoutSecs < 0 {
		errs = append(errs, "sandbox.timeout_secs: must be >= 0")
	}
	if c.Sandbox.MaxOutputBytes < 0 {
		errs = append(errs, "sandbox.max_output_bytes: must be >= 0")
	}
	if c.Sandbox.MaxFileSizeBytes < 0 {
		errs = append(errs, "sandbox.max_file_size_bytes: must be >= 0")
	}
	if c.Sandbox.MaxProcesses < 0 {
		errs = append(errs, "sandbox.max_processes: must be >= 0")
	}

	for _, p := range c.Sandbox.AllowPaths.Read {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Sprintf("sandbox.allow_paths.read: %q is not absolute", p))
		}
	}
	for _, p := range c.Sandbox.AllowPaths.Write {
		if !filepath.IsAbs(p) {
			errs = append(errs, fmt.Sprintf("sandbox.allow_paths.write: %q is not absolute", p))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
}

// Limits converts the configured ceilings into the platform form. Zero
// values fall back to the defaults.
func (c *Config) Limits() platform.Limits {
	l := platform.DefaultLimits()
	if c.Sandbox.TimeoutSecs > 0 {
		l.TimeoutSecs = c.Sandbox.TimeoutSecs
	}
	if c.Sandbox.MaxOutputBytes > 0 {
		l.MaxOutputBytes = c.Sandbox.MaxOutputBytes
	}
	if c.Sandbox.MaxFileSizeBytes > 0 {
		l.MaxFileSizeBytes = c.Sandbox.MaxFileSizeBytes
	}
	if c.Sandbox.MaxProcesses > 0 {
		l.MaxProcesses = c.Sandbox.MaxProcesses
	}
	return *l
}

// NetworkPolicy parses the configured network posture. Validate has
// already constrained the value.
func (c *Config) NetworkPolicy() (NetworkPolicy, error) {
	return ParseNetworkPolicy(c.Sandbox.Network.Policy)
}
