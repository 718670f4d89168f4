// Package reference loads the canonical province/district dataset.
package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// LoadErrorType represents the type of reference loading error.
type LoadErrorType string

const (
	FileNotFound LoadErrorType = "FILE_NOT_FOUND"
	InvalidJSON  LoadErrorType = "INVALID_JSON"
)

// LoadError represents an error that occurred while reading the dataset.
type LoadError struct {
	Type    LoadErrorType
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	switch e.Type {
	case FileNotFound:
		return fmt.Sprintf("reference file not found: %s", e.Path)
	case InvalidJSON:
		return fmt.Sprintf("invalid JSON in reference file %s: %s", e.Path, e.Message)
	default:
		return fmt.Sprintf("reference error: %s", e.Message)
	}
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Entry is one province/district pair of the dataset.
type Entry struct {
	Region    string `json:"sehir_adi"`
	Subregion string `json:"ilce_adi"`
}

// Load reads a JSON array of entries. Field values are taken as-is; their
// cleanliness is the dataset's responsibility.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Type: FileNotFound, Path: path, Err: err}
		}
		return nil, &LoadError{Type: FileNotFound, Path: path, Message: err.Error(), Err: err}
	}
	return Parse(path, data)
}

// Parse decodes a JSON array of entries. The name is only used in errors.
func Parse(name string, data []byte) ([]Entry, error) {
	// Tolerate a UTF-8 byte order mark written by Windows editors.
	data = trimBOM(data)

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &LoadError{Type: InvalidJSON, Path: name, Message: err.Error(), Err: err}
	}
	return entries, nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
