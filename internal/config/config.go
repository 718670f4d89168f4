// Package config handles settings and run options for ilcefix.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/audit"
)

// TargetField is the name of the district field that is corrected.
const TargetField = "ADI"

// DefaultRegionFields lists the province field names tried, in order.
func DefaultRegionFields() []string {
	return []string{"ILADI", "IL_ADI"}
}

// ConfigErrorType represents the type of configuration error.
type ConfigErrorType string

const (
	FileNotFound       ConfigErrorType = "FILE_NOT_FOUND"
	InvalidJSON        ConfigErrorType = "INVALID_JSON"
	ValidationError    ConfigErrorType = "VALIDATION_ERROR"
	ConflictingOptions ConfigErrorType = "CONFLICTING_OPTIONS"
)

// ConfigError represents an error in the settings file or the run options.
type ConfigError struct {
	Type    ConfigErrorType
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	switch e.Type {
	case FileNotFound:
		return fmt.Sprintf("configuration file not found: %s", e.Path)
	case InvalidJSON:
		return fmt.Sprintf("invalid JSON in configuration file: %s", e.Message)
	case ValidationError:
		return fmt.Sprintf("configuration validation error: %s", e.Message)
	case ConflictingOptions:
		return fmt.Sprintf("conflicting options: %s", e.Message)
	default:
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
}

// WatchSettings configures watch mode.
type WatchSettings struct {
	DebounceSeconds   int      `json:"debounceSeconds"`
	StableThresholdMs int      `json:"stableThresholdMs"`
	IgnorePatterns    []string `json:"ignorePatterns,omitempty"`
}

// Configuration holds the settings file contents.
type Configuration struct {
	Reference    string             `json:"reference,omitempty"` // Default reference dataset
	RegionFields []string           `json:"regionFields,omitempty"`
	Audit        *audit.AuditConfig `json:"audit,omitempty"`
	Watch        *WatchSettings     `json:"watch,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Configuration {
	c := &Configuration{}
	c.ApplyDefaults()
	return c
}

// Validate checks the values of the settings file.
func (c *Configuration) Validate() error {
	for i, name := range c.RegionFields {
		if name == "" {
			return &ConfigError{
				Type:    ValidationError,
				Message: fmt.Sprintf("regionFields[%d] cannot be empty", i),
			}
		}
	}

	if c.Watch != nil {
		if c.Watch.DebounceSeconds < 0 {
			return &ConfigError{Type: ValidationError, Message: "watch.debounceSeconds cannot be negative"}
		}
		if c.Watch.StableThresholdMs < 0 {
			return &ConfigError{Type: ValidationError, Message: "watch.stableThresholdMs cannot be negative"}
		}
	}

	if c.Audit != nil {
		switch c.Audit.RotationPeriod {
		case "", "daily", "weekly":
		default:
			return &ConfigError{
				Type:    ValidationError,
				Message: fmt.Sprintf("audit.rotationPeriod must be \"daily\", \"weekly\" or empty, got %q", c.Audit.RotationPeriod),
			}
		}
		if c.Audit.RetentionDays < 0 || c.Audit.RetentionRuns < 0 {
			return &ConfigError{Type: ValidationError, Message: "audit retention limits cannot be negative"}
		}
	}

	return nil
}

// ApplyDefaults fills in region fields, audit and watch settings left unset.
func (c *Configuration) ApplyDefaults() {
	if len(c.RegionFields) == 0 {
		c.RegionFields = DefaultRegionFields()
	}
	c.ApplyAuditDefaults()

	if c.Watch == nil {
		c.Watch = &WatchSettings{}
	}
	if c.Watch.DebounceSeconds == 0 {
		c.Watch.DebounceSeconds = 2
	}
	if c.Watch.StableThresholdMs == 0 {
		c.Watch.StableThresholdMs = 1000
	}
}

// ApplyAuditDefaults ensures the Audit configuration has sensible defaults.
// If Audit is nil, it creates a new AuditConfig with defaults.
// If Audit exists but has zero values, it applies defaults for those fields.
func (c *Configuration) ApplyAuditDefaults() {
	defaults := audit.DefaultAuditConfig()

	if c.Audit == nil {
		c.Audit = &defaults
		return
	}

	if c.Audit.LogDirectory == "" {
		c.Audit.LogDirectory = defaults.LogDirectory
	}
	if c.Audit.RotationSize == 0 {
		c.Audit.RotationSize = defaults.RotationSize
	}
	// Zero retention limits mean unlimited.
	if c.Audit.MinRetentionDays == 0 {
		c.Audit.MinRetentionDays = defaults.MinRetentionDays
	}
}

// Load reads, validates and completes a settings file.
func Load(filePath string) (*Configuration, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{
				Type: FileNotFound,
				Path: filePath,
			}
		}
		return nil, &ConfigError{
			Type:    FileNotFound,
			Path:    filePath,
			Message: err.Error(),
		}
	}

	var config Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &ConfigError{
			Type:    InvalidJSON,
			Path:    filePath,
			Message: err.Error(),
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	return &config, nil
}

// LoadOrDefault loads filePath when it is set, and returns the defaults
// otherwise.
func LoadOrDefault(filePath string) (*Configuration, error) {
	if filePath == "" {
		return Default(), nil
	}
	return Load(filePath)
}

// Save serializes and writes a configuration to the given path.
func Save(config *Configuration, filePath string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return &ConfigError{
			Type:    InvalidJSON,
			Message: err.Error(),
		}
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return &ConfigError{
			Type:    ValidationError,
			Path:    filePath,
			Message: fmt.Sprintf("failed to write configuration file: %s", err.Error()),
		}
	}

	return nil
}
