package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
)

// IdentityMatch represents the result of identity verification.
type IdentityMatch int

const (
	// IdentityMatches indicates the table is byte for byte the recorded one.
	IdentityMatches IdentityMatch = iota
	// IdentityShapeMismatch indicates the record count or the record layout changed.
	IdentityShapeMismatch
	// IdentitySizeMismatch indicates the file size does not match.
	IdentitySizeMismatch
	// IdentityHashMismatch indicates the content hash does not match.
	IdentityHashMismatch
	// IdentityNotFound indicates the file was not found.
	IdentityNotFound
)

// Describe explains a mismatch for undo reports.
func (m IdentityMatch) Describe() string {
	switch m {
	case IdentityMatches:
		return "table unchanged since the run"
	case IdentityShapeMismatch:
		return "records were added or removed, or the layout changed, after the run"
	case IdentitySizeMismatch:
		return "table size changed after the run"
	case IdentityHashMismatch:
		return "table contents changed after the run"
	}
	return "table no longer exists"
}

// IdentityResolver captures and checks the identity of patched tables.
type IdentityResolver struct{}

// NewIdentityResolver creates a new IdentityResolver instance.
func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{}
}

// CaptureIdentity records the SHA-256 hash, size, modification time and,
// when the file starts with a table header, the table shape of path.
func (r *IdentityResolver) CaptureIdentity(path string) (*FileIdentity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat table: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a table", path)
	}

	shape := readShape(f)
	hash, err := hashFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	return &FileIdentity{
		ContentHash: hash,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Shape:       shape,
	}, nil
}

// VerifyIdentity compares the table at path against an expected identity.
// The header shape and the size are compared before the content is hashed.
// Modification time is not compared; a patch-then-restore cycle changes it.
func (r *IdentityResolver) VerifyIdentity(path string, expected FileIdentity) (IdentityMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return IdentityNotFound, nil
		}
		return IdentityNotFound, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	if expected.Shape != nil {
		if shape := readShape(f); shape == nil || *shape != *expected.Shape {
			return IdentityShapeMismatch, nil
		}
	}

	info, err := f.Stat()
	if err != nil {
		return IdentityNotFound, fmt.Errorf("failed to stat table: %w", err)
	}
	if info.Size() != expected.Size {
		return IdentitySizeMismatch, nil
	}

	hash, err := hashFrom(f)
	if err != nil {
		return IdentityNotFound, fmt.Errorf("failed to compute hash: %w", err)
	}
	if hash != expected.ContentHash {
		return IdentityHashMismatch, nil
	}
	return IdentityMatches, nil
}

// readShape reads the size fields at the start of f, or returns nil when f
// is too short to hold them.
func readShape(f *os.File) *TableShape {
	prefix := make([]byte, dbf.SizeFieldsEnd)
	if _, err := f.ReadAt(prefix, 0); err != nil {
		return nil
	}
	records, headerLength, recordLength, err := dbf.SizeFields(prefix)
	if err != nil {
		return nil
	}
	return &TableShape{Records: records, HeaderLength: headerLength, RecordLength: recordLength}
}

// hashFrom returns the hex SHA-256 of the whole of f.
func hashFrom(f *os.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
