package watcher

import (
	"path/filepath"
	"strings"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/patcher"
)

// DefaultIgnorePatterns returns the patterns of files never handled: the
// patcher's own temp files, partial downloads and lock files.
func DefaultIgnorePatterns() []string {
	return []string{
		"*" + patcher.TempSuffix,
		"*.part",
		"*.partial",
		"*.download",
		"*.crdownload",
		".~*",
		"~$*",
	}
}

// FileFilter matches base names against glob patterns.
type FileFilter struct {
	patterns []string
}

// NewFileFilter creates a FileFilter. Nil or empty patterns select the
// defaults.
func NewFileFilter(patterns []string) *FileFilter {
	if len(patterns) == 0 {
		patterns = DefaultIgnorePatterns()
	}
	return &FileFilter{
		patterns: patterns,
	}
}

// ShouldIgnore reports whether the base name of path matches a pattern.
// Patterns use filepath.Match syntax; a pattern such as ".bak" with no
// wildcard also matches as a case-insensitive suffix.
func (f *FileFilter) ShouldIgnore(path string) bool {
	name := filepath.Base(path)

	for _, pattern := range f.patterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
		if strings.HasPrefix(pattern, ".") && !strings.ContainsAny(pattern, "*?[") {
			if strings.HasSuffix(strings.ToLower(name), strings.ToLower(pattern)) {
				return true
			}
		}
	}
	return false
}

