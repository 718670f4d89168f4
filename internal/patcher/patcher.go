// Package patcher rewrites selected fields of a table while leaving every
// other byte of the file untouched.
package patcher

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// TempSuffix ends the name of the working copy written next to the
// destination. The full name is <dest>.<random>.tmp.
const TempSuffix = ".tmp"

// PatchErrorType represents the type of patch error.
type PatchErrorType string

const (
	// SourceUnreadable indicates the source table could not be read.
	SourceUnreadable PatchErrorType = "SOURCE_UNREADABLE"
	// DestinationUnwritable indicates the destination or its temp file could not be written.
	DestinationUnwritable PatchErrorType = "DESTINATION_UNWRITABLE"
	// InvalidPlan indicates the plan addresses bytes outside the file.
	InvalidPlan PatchErrorType = "INVALID_PLAN"
)

// PatchError represents an error that occurred while patching a table.
type PatchError struct {
	Type PatchErrorType
	Path string
	Err  error
}

func (e *PatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Path)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// Update replaces the target field of one record.
type Update struct {
	Record int
	Text   string
	Raw    []byte // Pre-encoded field bytes; written verbatim instead of Text when set
}

// Plan describes every change to make to a table.
type Plan struct {
	HeaderLength int
	RecordLength int
	FieldOffset  int // Offset of the target field within a record
	FieldLength  int

	// Fields are the descriptors in file order. With RepairOffsets their
	// computed offsets are written into the descriptor address slots.
	Fields        []dbf.Field
	RepairOffsets bool
	// Addresses, when set, are written into the descriptor address slots
	// instead of the computed offsets.
	Addresses []uint32

	Codepage       *byte // Language driver ID to store; nil leaves it alone
	Updates        []Update
	Encoding       textenc.Encoding
	WriteCompanion bool
}

// Result describes a completed patch.
type Result struct {
	Source               string
	Destination          string
	TempPath             string
	BytesWritten         int
	UpdatesApplied       int
	DescriptorsRewritten int
	CodepageWritten      bool
	CompanionPath        string // Empty when no companion file was written
}

// NewPlan returns a plan targeting field of table. Updates and options are
// filled in by the caller.
func NewPlan(table *dbf.Table, field dbf.Field, enc textenc.Encoding) Plan {
	return Plan{
		HeaderLength: table.Header.HeaderLength,
		RecordLength: table.Header.RecordLength,
		FieldOffset:  field.Offset,
		FieldLength:  field.Length,
		Fields:       table.Fields,
		Encoding:     enc,
	}
}

// Apply copies src to dest with the plan applied. The patched bytes are
// written to a temporary sibling of dest and renamed over it, so src and
// dest may be the same file. Bounds are checked before anything is written.
func Apply(src, dest string, plan Plan) (*Result, error) {
	if err := plan.validate(); err != nil {
		return nil, &PatchError{Type: InvalidPlan, Path: src, Err: err}
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, &PatchError{Type: SourceUnreadable, Path: src, Err: err}
	}
	buf, err := os.ReadFile(src)
	if err != nil {
		return nil, &PatchError{Type: SourceUnreadable, Path: src, Err: err}
	}

	if err := plan.checkBounds(len(buf)); err != nil {
		return nil, &PatchError{Type: InvalidPlan, Path: src, Err: err}
	}

	result := &Result{Source: src, Destination: dest}

	if plan.Codepage != nil {
		buf[dbf.CodepageOffset] = *plan.Codepage
		result.CodepageWritten = true
	}

	result.DescriptorsRewritten = plan.writeAddresses(buf)

	for _, u := range plan.Updates {
		start := plan.HeaderLength + u.Record*plan.RecordLength + plan.FieldOffset
		copy(buf[start:start+plan.FieldLength], plan.fieldBytes(u))
		result.UpdatesApplied++
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, &PatchError{Type: DestinationUnwritable, Path: dest, Err: err}
	}
	if err := writeTemp(result, buf, info.Mode().Perm()); err != nil {
		return nil, err
	}
	if err := os.Rename(result.TempPath, dest); err != nil {
		os.Remove(result.TempPath)
		return nil, &PatchError{Type: DestinationUnwritable, Path: dest, Err: err}
	}
	result.BytesWritten = len(buf)

	if plan.WriteCompanion {
		if err := textenc.WriteCompanion(dest, plan.Encoding); err != nil {
			return result, &PatchError{Type: DestinationUnwritable, Path: textenc.CompanionPath(dest), Err: err}
		}
		result.CompanionPath = textenc.CompanionPath(dest)
	}

	return result, nil
}

// writeTemp writes buf to a fresh file beside the destination and records
// its name in result.
func writeTemp(result *Result, buf []byte, perm os.FileMode) error {
	dest := result.Destination
	f, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*"+TempSuffix)
	if err != nil {
		return &PatchError{Type: DestinationUnwritable, Path: dest, Err: err}
	}
	result.TempPath = f.Name()

	_, err = f.Write(buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(result.TempPath, perm)
	}
	if err != nil {
		os.Remove(result.TempPath)
		return &PatchError{Type: DestinationUnwritable, Path: result.TempPath, Err: err}
	}
	return nil
}

func (p Plan) validate() error {
	switch {
	case p.HeaderLength < dbf.HeaderPrefixLength:
		return fmt.Errorf("header length %d is shorter than %d", p.HeaderLength, dbf.HeaderPrefixLength)
	case p.RecordLength < 1:
		return fmt.Errorf("record length %d", p.RecordLength)
	case p.FieldOffset < 1 || p.FieldLength < 1:
		return fmt.Errorf("field at offset %d with length %d", p.FieldOffset, p.FieldLength)
	case p.FieldOffset+p.FieldLength > p.RecordLength:
		return fmt.Errorf("field ends at %d past record length %d", p.FieldOffset+p.FieldLength, p.RecordLength)
	case p.Addresses != nil && len(p.Addresses) != len(p.Fields):
		return fmt.Errorf("%d addresses for %d fields", len(p.Addresses), len(p.Fields))
	}
	for _, u := range p.Updates {
		if u.Record < 0 {
			return fmt.Errorf("negative record index %d", u.Record)
		}
		if u.Raw != nil && len(u.Raw) != p.FieldLength {
			return fmt.Errorf("record %d: raw value is %d bytes, field is %d", u.Record, len(u.Raw), p.FieldLength)
		}
	}
	return nil
}

func (p Plan) checkBounds(size int) error {
	if size < p.HeaderLength {
		return fmt.Errorf("file is %d bytes, header length is %d", size, p.HeaderLength)
	}
	if p.rewritesDescriptors() {
		end := dbf.HeaderPrefixLength + dbf.DescriptorLength*len(p.Fields)
		if end > p.HeaderLength {
			return fmt.Errorf("%d descriptors do not fit header length %d", len(p.Fields), p.HeaderLength)
		}
	}
	for _, u := range p.Updates {
		end := p.HeaderLength + u.Record*p.RecordLength + p.FieldOffset + p.FieldLength
		if end > size {
			return fmt.Errorf("record %d ends at byte %d, file is %d bytes", u.Record, end, size)
		}
	}
	return nil
}

func (p Plan) rewritesDescriptors() bool {
	return p.Addresses != nil || p.RepairOffsets
}

func (p Plan) writeAddresses(buf []byte) int {
	if !p.rewritesDescriptors() {
		return 0
	}
	for i, f := range p.Fields {
		address := uint32(f.Offset)
		if p.Addresses != nil {
			address = p.Addresses[i]
		}
		pos := dbf.HeaderPrefixLength + dbf.DescriptorLength*i + 12
		binary.LittleEndian.PutUint32(buf[pos:pos+4], address)
	}
	return len(p.Fields)
}

func (p Plan) fieldBytes(u Update) []byte {
	if u.Raw != nil {
		return u.Raw
	}
	return p.Encoding.Fit(u.Text, p.FieldLength)
}
