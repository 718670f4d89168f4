// Package dbftest builds small tables for tests.
package dbftest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// Column declares a character field.
type Column struct {
	Name    string
	Length  int
	Address uint32 // stored descriptor offset; zero mimics tools that never set it
}

// Row is one record. Values are matched to columns by position.
type Row struct {
	Deleted bool
	Values  []string
}

// Layout describes a table to build.
type Layout struct {
	Columns  []Column
	Rows     []Row
	Encoding textenc.Encoding
	Codepage byte
	// Trailer is appended after the records; dBASE writes 0x1A.
	Trailer []byte
}

// Build returns the table bytes for layout.
func Build(layout Layout) []byte {
	headerLength := 32 + 32*len(layout.Columns) + 1
	recordLength := 1
	for _, c := range layout.Columns {
		recordLength += c.Length
	}

	buf := make([]byte, headerLength, headerLength+recordLength*len(layout.Rows)+len(layout.Trailer))
	buf[0] = 0x03
	buf[1], buf[2], buf[3] = 124, 5, 17
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(layout.Rows)))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(headerLength))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(recordLength))
	buf[29] = layout.Codepage

	for i, c := range layout.Columns {
		d := buf[32+32*i : 64+32*i]
		copy(d[:11], c.Name)
		d[11] = 'C'
		binary.LittleEndian.PutUint32(d[12:16], c.Address)
		d[16] = byte(c.Length)
	}
	buf[headerLength-1] = 0x0D

	for _, row := range layout.Rows {
		flag := byte(' ')
		if row.Deleted {
			flag = '*'
		}
		buf = append(buf, flag)
		for i, c := range layout.Columns {
			value := ""
			if i < len(row.Values) {
				value = row.Values[i]
			}
			buf = append(buf, layout.Encoding.Fit(value, c.Length)...)
		}
	}
	return append(buf, layout.Trailer...)
}

// Write builds layout into dir/name and returns the path.
func Write(t testing.TB, dir, name string, layout Layout) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(layout), 0644); err != nil {
		t.Fatalf("failed to write fixture table: %v", err)
	}
	return path
}

// Districts returns a two-column ILADI/ADI layout.
func Districts(rows ...Row) Layout {
	return Layout{
		Columns: []Column{
			{Name: "ILADI", Length: 10},
			{Name: "ADI", Length: 12},
		},
		Rows:    rows,
		Trailer: []byte{0x1A},
	}
}

// R is shorthand for a live row.
func R(values ...string) Row {
	return Row{Values: values}
}
