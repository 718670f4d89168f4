package config

import (
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// Options are the per-run switches given on the command line.
type Options struct {
	Output          string // Destination table; empty overwrites the source
	InPlace         bool   // Overwrite the source table
	NoCodepage      bool   // Leave the language driver byte untouched
	NoCompanion     bool   // Do not write the .cpg companion file
	UTF8            bool   // Write UTF-8 instead of Windows-1254
	ASCII           bool   // Replace Turkish letters with ASCII look-alikes
	Force           bool   // Rewrite every live record
	NoRepairOffsets bool   // Keep the field addresses stored in the header
	DryRun          bool   // Report only
	NoAudit         bool   // Do not record the run in the audit log
	Verbose         bool
}

// Validate rejects combinations of options that cannot be honoured. batch
// reports whether the run covers a directory of tables.
func (o *Options) Validate(batch bool) error {
	if o.InPlace && o.Output != "" {
		return &ConfigError{
			Type:    ConflictingOptions,
			Message: "--in-place cannot be combined with --out",
		}
	}
	if batch && o.Output != "" {
		return &ConfigError{
			Type:    ConflictingOptions,
			Message: "--out names a single table and cannot be used with a directory",
		}
	}
	return nil
}

// ValidateForWatch applies the batch rules and also rejects options that
// would rewrite tables repeatedly as they arrive.
func (o *Options) ValidateForWatch() error {
	if err := o.Validate(true); err != nil {
		return err
	}
	if o.Force {
		return &ConfigError{
			Type:    ConflictingOptions,
			Message: "--force cannot be used in watch mode",
		}
	}
	return nil
}

// Encoding returns the encoding tables are written with.
func (o *Options) Encoding() textenc.Encoding {
	if o.UTF8 {
		return textenc.UTF8
	}
	return textenc.CP1254
}
