// Package textenc handles the character encodings a corrected table can be
// written in, and the companion file that declares them.
package textenc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding identifies the encoding of the text fields of a table.
type Encoding int

const (
	// CP1254 is the Turkish single-byte Windows codepage.
	CP1254 Encoding = iota
	// UTF8 is the multi-byte universal encoding.
	UTF8
)

// CompanionExt is the extension of the encoding declaration file written
// next to a table, as used by shapefile tooling.
const CompanionExt = ".cpg"

// ReplacementByte stands in for characters the single-byte codepage cannot
// represent.
const ReplacementByte = '?'

func (e Encoding) String() string {
	return e.Name()
}

// Name returns the token written to the companion file.
func (e Encoding) Name() string {
	switch e {
	case UTF8:
		return "UTF-8"
	default:
		return "CP1254"
	}
}

// CodepageByte returns the dBASE language driver ID stored at header offset
// 29. UTF-8 has no driver ID; readers take it from the companion file.
func (e Encoding) CodepageByte() byte {
	switch e {
	case UTF8:
		return 0x00
	default:
		return 0xCA
	}
}

// Parse returns the encoding named by a companion file token.
func Parse(token string) (Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "1254", "CP1254", "WINDOWS-1254", "WINDOWS1254":
		return CP1254, nil
	case "UTF-8", "UTF8", "65001":
		return UTF8, nil
	default:
		return CP1254, fmt.Errorf("unsupported encoding token %q", strings.TrimSpace(token))
	}
}

// Encode converts s to the encoding. Characters that Windows-1254 cannot
// represent become ReplacementByte; encoding never fails.
func (e Encoding) Encode(s string) []byte {
	if e == UTF8 {
		return []byte(strings.ToValidUTF8(s, string(utf8.RuneError)))
	}
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1254.EncodeRune(r)
		if !ok {
			b = ReplacementByte
		}
		out = append(out, b)
	}
	return out
}

// Decode converts raw field bytes to a string, dropping bytes that have no
// mapping in the encoding.
func (e Encoding) Decode(b []byte) string {
	if e == UTF8 {
		return strings.ToValidUTF8(string(b), "")
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		r := charmap.Windows1254.DecodeByte(c)
		if r == utf8.RuneError {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Fit encodes s into exactly width bytes: longer encodings are truncated,
// shorter ones right-padded with ASCII spaces. UTF-8 output is cut on a rune
// boundary and the remainder padded.
func (e Encoding) Fit(s string, width int) []byte {
	if width <= 0 {
		return []byte{}
	}
	encoded := e.Encode(s)
	if len(encoded) > width {
		cut := width
		if e == UTF8 {
			for cut > 0 && !utf8.RuneStart(encoded[cut]) {
				cut--
			}
		}
		encoded = encoded[:cut]
	}
	out := make([]byte, width)
	n := copy(out, encoded)
	for i := n; i < width; i++ {
		out[i] = ' '
	}
	return out
}

// CompanionPath returns the path of the companion file for a table.
func CompanionPath(tablePath string) string {
	ext := filepath.Ext(tablePath)
	return strings.TrimSuffix(tablePath, ext) + CompanionExt
}

// ReadCompanion returns the encoding declared next to tablePath. The second
// result is false when no companion file exists.
func ReadCompanion(tablePath string) (Encoding, bool, error) {
	data, err := os.ReadFile(CompanionPath(tablePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CP1254, false, nil
		}
		return CP1254, false, err
	}
	enc, err := Parse(string(data))
	if err != nil {
		return CP1254, true, err
	}
	return enc, true, nil
}

// WriteCompanion writes the encoding token next to tablePath, replacing any
// existing declaration.
func WriteCompanion(tablePath string, enc Encoding) error {
	return os.WriteFile(CompanionPath(tablePath), []byte(enc.Name()), 0644)
}
