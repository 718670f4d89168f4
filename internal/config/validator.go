package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationSeverity represents the severity of a validation issue.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ConfigValidationError represents a single validation issue.
type ConfigValidationError struct {
	Field    string // Config field with issue (e.g., "regionFields[1]")
	Message  string
	Severity ValidationSeverity
}

// ValidationResult contains all validation findings.
type ValidationResult struct {
	Errors   []ConfigValidationError
	Warnings []ConfigValidationError
	Valid    bool // True if no errors (warnings OK)
}

func (r *ValidationResult) add(issues []ConfigValidationError) {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			r.Errors = append(r.Errors, issue)
		} else {
			r.Warnings = append(r.Warnings, issue)
		}
	}
}

// ValidateConfig checks the settings against the file system and returns
// all findings.
func ValidateConfig(cfg *Configuration) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ConfigValidationError{},
		Warnings: []ConfigValidationError{},
	}

	result.add(ValidatePaths(cfg))
	result.add(ValidateRegionFields(cfg))

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidatePaths checks that the reference dataset is a readable file and
// that the audit directory exists or can be created.
func ValidatePaths(cfg *Configuration) []ConfigValidationError {
	var issues []ConfigValidationError

	if cfg.Reference != "" {
		info, err := os.Stat(cfg.Reference)
		switch {
		case os.IsNotExist(err):
			issues = append(issues, ConfigValidationError{
				Field:    "reference",
				Message:  "reference file does not exist: " + cfg.Reference,
				Severity: SeverityError,
			})
		case err != nil:
			issues = append(issues, ConfigValidationError{
				Field:    "reference",
				Message:  "error accessing reference file: " + err.Error(),
				Severity: SeverityError,
			})
		case info.IsDir():
			issues = append(issues, ConfigValidationError{
				Field:    "reference",
				Message:  "reference path is a directory: " + cfg.Reference,
				Severity: SeverityError,
			})
		}
	}

	if cfg.Audit != nil && cfg.Audit.LogDirectory != "" {
		if issue, ok := checkCreatableDir("audit.logDirectory", cfg.Audit.LogDirectory); !ok {
			issues = append(issues, issue)
		}
	}

	return issues
}

// checkCreatableDir reports whether dir exists as a directory, or its
// nearest existing ancestor is a writable directory.
func checkCreatableDir(field, dir string) (ConfigValidationError, bool) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return ConfigValidationError{
				Field:    field,
				Message:  "path exists but is not a directory: " + dir,
				Severity: SeverityError,
			}, false
		}
		return ConfigValidationError{}, true
	}
	if !os.IsNotExist(err) {
		return ConfigValidationError{
			Field:    field,
			Message:  "error accessing directory: " + err.Error(),
			Severity: SeverityError,
		}, false
	}

	parent := filepath.Dir(filepath.Clean(dir))
	for {
		info, err := os.Stat(parent)
		if err == nil {
			if !info.IsDir() {
				return ConfigValidationError{
					Field:    field,
					Message:  "parent path is not a directory: " + parent,
					Severity: SeverityError,
				}, false
			}
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}

	if !isDirectoryWritable(parent) {
		return ConfigValidationError{
			Field:    field,
			Message:  "directory cannot be created under " + parent,
			Severity: SeverityWarning,
		}, false
	}
	return ConfigValidationError{}, true
}

// isDirectoryWritable checks if a directory is writable by attempting to create a temp file.
func isDirectoryWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".ilcefix_write_test")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// ValidateRegionFields warns about region field names listed twice, and
// about a region field that is also the corrected field.
func ValidateRegionFields(cfg *Configuration) []ConfigValidationError {
	var issues []ConfigValidationError

	seen := make(map[string]int)
	for i, name := range cfg.RegionFields {
		key := strings.ToUpper(name)
		if first, ok := seen[key]; ok {
			issues = append(issues, ConfigValidationError{
				Field:    fmt.Sprintf("regionFields[%d]", i),
				Message:  fmt.Sprintf("duplicate region field %q (also at index %d)", name, first),
				Severity: SeverityWarning,
			})
			continue
		}
		seen[key] = i

		if key == TargetField {
			issues = append(issues, ConfigValidationError{
				Field:    fmt.Sprintf("regionFields[%d]", i),
				Message:  fmt.Sprintf("region field cannot be the corrected field %s", TargetField),
				Severity: SeverityError,
			})
		}
	}

	return issues
}
