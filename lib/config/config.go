// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Privarion
// daemon.
//
// Configuration is loaded from a single YAML file specified by:
//   - PRIVARION_CONFIG environment variable, or
//   - --config flag passed to the daemon
//
// There are no fallbacks or automatic discovery. Environment
// variables do not override file values; the only expansion performed
// is ${HOME} and similar path variables for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/privarion/privarion/audit"
	"github.com/privarion/privarion/processor"
)

// Config is the daemon configuration.
type Config struct {
	// Paths configures file and directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Mediation configures the event processing pipeline.
	Mediation MediationConfig `yaml:"mediation"`

	// Audit configures the audit trail.
	Audit AuditConfig `yaml:"audit"`
}

// PathsConfig configures file and directory locations.
type PathsConfig struct {
	// PolicyDir holds the protection policy documents (*.json or
	// *.jsonc). Default: /etc/privarion/policies
	PolicyDir string `yaml:"policy_dir"`

	// AuditDir holds the audit log segments.
	// Default: /var/lib/privarion/audit
	AuditDir string `yaml:"audit_dir"`

	// StatusFile is where the lifecycle status record is persisted.
	// Default: /var/lib/privarion/status.json
	StatusFile string `yaml:"status_file"`

	// BridgeSocket is the kernel event bridge's Unix socket.
	// Default: /var/run/privarion/bridge.sock
	BridgeSocket string `yaml:"bridge_socket"`
}

// MediationConfig configures the event processing pipeline.
type MediationConfig struct {
	// Budget bounds mediation of one event. Default: 100ms.
	Budget time.Duration `yaml:"budget"`

	// MaxExecutionsPerSecond is the per-parent execution rate limit.
	// Default: 10.
	MaxExecutionsPerSecond int `yaml:"max_executions_per_second"`

	// SuspiciousPaths are directory prefixes execution is denied from.
	// Empty means the built-in defaults.
	SuspiciousPaths []string `yaml:"suspicious_paths"`

	// SensitivePatterns are the file path patterns the sensitive file
	// monitor detects. Empty means the built-in defaults.
	SensitivePatterns []string `yaml:"sensitive_patterns"`

	// Categories are the event categories to subscribe to, by wire
	// name. Empty means all four.
	Categories []string `yaml:"categories"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// MaxSegmentBytes rotates the active segment past this size.
	// Default: 4 MiB.
	MaxSegmentBytes int64 `yaml:"max_segment_bytes"`

	// Compression is "none", "zstd", or "lz4". Default: zstd.
	Compression string `yaml:"compression"`

	// KeyFile, when set, points to a 32-byte key file; rotated
	// segments are then encrypted. Empty disables encryption.
	KeyFile string `yaml:"key_file"`
}

// Default returns the default configuration. These defaults make a
// bare `privariond` on a standard install work without a config file.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			PolicyDir:    "/etc/privarion/policies",
			AuditDir:     "/var/lib/privarion/audit",
			StatusFile:   "/var/lib/privarion/status.json",
			BridgeSocket: "/var/run/privarion/bridge.sock",
		},
		Mediation: MediationConfig{
			Budget:                 processor.DefaultBudget,
			MaxExecutionsPerSecond: 10,
		},
		Audit: AuditConfig{
			MaxSegmentBytes: audit.DefaultMaxSegmentBytes,
			Compression:     audit.CompressionZstd.String(),
		},
	}
}

// Load loads configuration from the PRIVARION_CONFIG environment
// variable. Fails when the variable is not set — there are no hidden
// fallbacks.
func Load() (*Config, error) {
	configPath := os.Getenv("PRIVARION_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PRIVARION_CONFIG environment variable not set; " +
			"set it to the path of your privarion.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency. All problems are
// reported, not just the first.
func (c *Config) Validate() error {
	var problems []error

	if c.Paths.PolicyDir == "" {
		problems = append(problems, errors.New("paths.policy_dir is required"))
	}
	if c.Paths.AuditDir == "" {
		problems = append(problems, errors.New("paths.audit_dir is required"))
	}
	if c.Paths.StatusFile == "" {
		problems = append(problems, errors.New("paths.status_file is required"))
	}
	if c.Paths.BridgeSocket == "" {
		problems = append(problems, errors.New("paths.bridge_socket is required"))
	}
	if c.Mediation.Budget < 0 {
		problems = append(problems, fmt.Errorf("mediation.budget must not be negative, got %v", c.Mediation.Budget))
	}
	if c.Mediation.MaxExecutionsPerSecond < 0 {
		problems = append(problems, fmt.Errorf("mediation.max_executions_per_second must not be negative, got %d",
			c.Mediation.MaxExecutionsPerSecond))
	}
	if c.Audit.MaxSegmentBytes < 0 {
		problems = append(problems, fmt.Errorf("audit.max_segment_bytes must not be negative, got %d",
			c.Audit.MaxSegmentBytes))
	}
	if _, err := audit.ParseCompression(c.Audit.Compression); err != nil {
		problems = append(problems, fmt.Errorf("audit.compression: %w", err))
	}

	return errors.Join(problems...)
}

// variablePattern matches ${VAR} references in path values.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandVariables expands ${HOME} and similar references in path
// fields. Unset variables expand to empty, which Validate then
// catches for required paths.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Paths.PolicyDir,
		&c.Paths.AuditDir,
		&c.Paths.StatusFile,
		&c.Paths.BridgeSocket,
		&c.Audit.KeyFile,
	} {
		*field = expand(*field)
	}
}

func expand(value string) string {
	expanded := variablePattern.ReplaceAllStringFunc(value, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
	if expanded == "" {
		return ""
	}
	return filepath.Clean(expanded)
}
