// Package dbf reads dBASE III style tables together with the layout
// metadata needed to patch them in place.
package dbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

const (
	// HeaderPrefixLength is the size of the fixed table header.
	HeaderPrefixLength = 32
	// DescriptorLength is the size of one field descriptor.
	DescriptorLength = 32
	// CodepageOffset is the header position of the language driver ID.
	CodepageOffset = 29
	// DescriptorTerminator ends the descriptor array.
	DescriptorTerminator = 0x0D
	// DeletedFlag marks a deleted record.
	DeletedFlag = '*'
	// SizeFieldsEnd is the number of leading header bytes that hold the
	// record count, header length and record length.
	SizeFieldsEnd = 12
)

// FormatErrorType represents the type of format error.
type FormatErrorType string

const (
	// TruncatedHeader indicates the file ends inside the header.
	TruncatedHeader FormatErrorType = "TRUNCATED_HEADER"
	// BadDescriptor indicates a field descriptor that cannot be used.
	BadDescriptor FormatErrorType = "BAD_DESCRIPTOR"
	// LayoutMismatch indicates the fields do not fit the declared record length.
	LayoutMismatch FormatErrorType = "LAYOUT_MISMATCH"
)

// FormatError reports a table that cannot be interpreted.
type FormatError struct {
	Type    FormatErrorType
	Path    string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Type, e.Path, e.Message)
}

// Field describes one column of the table.
type Field struct {
	Name     string
	Type     byte
	Address  uint32 // Offset stored in the descriptor; often stale or zero
	Offset   int    // Offset within the record, computed cumulatively from 1
	Length   int
	Decimals int
}

// Header holds the fixed table header values.
type Header struct {
	Version      byte
	LastUpdate   time.Time
	RecordCount  uint32
	HeaderLength int
	RecordLength int
	Codepage     byte
}

// Record is one row of the table. Index is the physical position in the
// file, counting deleted records.
type Record struct {
	Index   int
	Deleted bool
	Values  map[string]string
}

// Table is a fully loaded table.
type Table struct {
	Path     string
	Header   Header
	Fields   []Field
	Encoding textenc.Encoding
	data     []byte
}

// Open reads the table at path, decoding text with enc.
func Open(path string, enc textenc.Encoding) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	return Parse(path, data, enc)
}

// Parse interprets data as a table. name is used in error messages only.
func Parse(name string, data []byte, enc textenc.Encoding) (*Table, error) {
	if len(data) < HeaderPrefixLength {
		return nil, &FormatError{Type: TruncatedHeader, Path: name,
			Message: fmt.Sprintf("file is %d bytes, header needs %d", len(data), HeaderPrefixLength)}
	}

	h := Header{
		Version:      data[0],
		LastUpdate:   time.Date(1900+int(data[1]), time.Month(data[2]), int(data[3]), 0, 0, 0, 0, time.UTC),
		RecordCount:  binary.LittleEndian.Uint32(data[4:8]),
		HeaderLength: int(binary.LittleEndian.Uint16(data[8:10])),
		RecordLength: int(binary.LittleEndian.Uint16(data[10:12])),
		Codepage:     data[CodepageOffset],
	}
	if h.HeaderLength > len(data) {
		return nil, &FormatError{Type: TruncatedHeader, Path: name,
			Message: fmt.Sprintf("header length %d exceeds file size %d", h.HeaderLength, len(data))}
	}
	if h.RecordLength < 1 {
		return nil, &FormatError{Type: LayoutMismatch, Path: name, Message: "record length is zero"}
	}

	fields, err := readDescriptors(name, data, h.HeaderLength, enc)
	if err != nil {
		return nil, err
	}

	end := 1
	if len(fields) > 0 {
		last := fields[len(fields)-1]
		end = last.Offset + last.Length
	}
	if end > h.RecordLength {
		return nil, &FormatError{Type: LayoutMismatch, Path: name,
			Message: fmt.Sprintf("fields span %d bytes, record length is %d", end, h.RecordLength)}
	}

	return &Table{Path: name, Header: h, Fields: fields, Encoding: enc, data: data}, nil
}

func readDescriptors(name string, data []byte, headerLength int, enc textenc.Encoding) ([]Field, error) {
	var fields []Field
	offset := 1
	for pos := HeaderPrefixLength; pos < headerLength; pos += DescriptorLength {
		if data[pos] == DescriptorTerminator {
			break
		}
		if pos+DescriptorLength > headerLength {
			return nil, &FormatError{Type: TruncatedHeader, Path: name,
				Message: fmt.Sprintf("descriptor at byte %d runs past the header", pos)}
		}
		d := data[pos : pos+DescriptorLength]

		rawName := d[:11]
		if i := bytes.IndexByte(rawName, 0); i >= 0 {
			rawName = rawName[:i]
		}
		f := Field{
			Name:     strings.TrimSpace(enc.Decode(rawName)),
			Type:     d[11],
			Address:  binary.LittleEndian.Uint32(d[12:16]),
			Offset:   offset,
			Length:   int(d[16]),
			Decimals: int(d[17]),
		}
		if f.Name == "" || f.Length == 0 {
			return nil, &FormatError{Type: BadDescriptor, Path: name,
				Message: fmt.Sprintf("descriptor %d has name %q and length %d", len(fields), f.Name, f.Length)}
		}
		fields = append(fields, f)
		offset += f.Length
	}
	return fields, nil
}

// Field returns the descriptor whose name matches name, ignoring case.
func (t *Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// FirstField returns the first of names present in the table.
func (t *Table) FirstField(names ...string) (Field, bool) {
	for _, n := range names {
		if f, ok := t.Field(n); ok {
			return f, true
		}
	}
	return Field{}, false
}

// SizeFields returns the record count, header length and record length
// stored in the leading header bytes.
func SizeFields(prefix []byte) (records uint32, headerLength, recordLength int, err error) {
	if len(prefix) < SizeFieldsEnd {
		return 0, 0, 0, fmt.Errorf("need %d header bytes, have %d", SizeFieldsEnd, len(prefix))
	}
	records = binary.LittleEndian.Uint32(prefix[4:8])
	headerLength = int(binary.LittleEndian.Uint16(prefix[8:10]))
	recordLength = int(binary.LittleEndian.Uint16(prefix[10:12]))
	return records, headerLength, recordLength, nil
}

// DeclaredSize returns the file size the leading header bytes promise: the
// header plus every record. The end-of-file marker is optional and not
// counted.
func DeclaredSize(prefix []byte) (int64, error) {
	records, headerLength, recordLength, err := SizeFields(prefix)
	if err != nil {
		return 0, err
	}
	return int64(headerLength) + int64(records)*int64(recordLength), nil
}

// RecordCount returns the number of records physically present. A header
// count larger than the data is clamped.
func (t *Table) RecordCount() int {
	available := (len(t.data) - t.Header.HeaderLength) / t.Header.RecordLength
	if available < 0 {
		available = 0
	}
	if uint64(available) > uint64(t.Header.RecordCount) {
		return int(t.Header.RecordCount)
	}
	return available
}

func (t *Table) record(index int) []byte {
	start := t.Header.HeaderLength + index*t.Header.RecordLength
	return t.data[start : start+t.Header.RecordLength]
}

// Records decodes every record, deleted ones included.
func (t *Table) Records() []Record {
	n := t.RecordCount()
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		raw := t.record(i)
		values := make(map[string]string, len(t.Fields))
		for _, f := range t.Fields {
			values[f.Name] = t.decode(raw[f.Offset : f.Offset+f.Length])
		}
		records = append(records, Record{
			Index:   i,
			Deleted: raw[0] == DeletedFlag,
			Values:  values,
		})
	}
	return records
}

func (t *Table) decode(b []byte) string {
	return t.Encoding.Decode(bytes.TrimRight(b, " \x00"))
}

// RawField returns a copy of the stored bytes of field in record index.
func (t *Table) RawField(index int, field Field) ([]byte, error) {
	if index < 0 || index >= t.RecordCount() {
		return nil, fmt.Errorf("record %d out of range [0, %d)", index, t.RecordCount())
	}
	raw := t.record(index)
	out := make([]byte, field.Length)
	copy(out, raw[field.Offset:field.Offset+field.Length])
	return out, nil
}

// Bytes returns the raw table contents.
func (t *Table) Bytes() []byte {
	return t.data
}

// Addresses returns the offsets stored in the field descriptors.
func (t *Table) Addresses() []uint32 {
	out := make([]uint32, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Address
	}
	return out
}
