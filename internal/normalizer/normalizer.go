// Package normalizer produces comparison keys and ASCII display forms for
// Turkish place names.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mojibake is the UTF-8 encoding of U+FFFD rendered through a single-byte
// codepage. Tables that went through a broken conversion carry it literally.
const Mojibake = "ï¿½"

// turkishFold collapses the Turkish letters that NFKD either leaves intact
// (dotless i) or splits into a base letter plus mark.
var turkishFold = map[rune]rune{
	'ı': 'i', 'İ': 'i',
	'ç': 'c', 'Ç': 'c',
	'ş': 's', 'Ş': 's',
	'ğ': 'g', 'Ğ': 'g',
	'ö': 'o', 'Ö': 'o',
	'ü': 'u', 'Ü': 'u',
	'â': 'a', 'Â': 'a',
	'î': 'i', 'Î': 'i',
	'û': 'u', 'Û': 'u',
}

func foldTurkish(r rune) rune {
	if m, ok := turkishFold[r]; ok {
		return m
	}
	return r
}

// newASCIIFolder returns a fresh transformer chain; transformers carry state
// and must not be shared between goroutines.
func newASCIIFolder() transform.Transformer {
	return transform.Chain(
		norm.NFKD,
		runes.Map(foldTurkish),
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
}

func asciiFold(text string) string {
	folded, _, err := transform.String(newASCIIFolder(), text)
	if err != nil {
		// The chain only maps and removes runes; fall back to a manual pass.
		return manualFold(text)
	}
	return folded
}

func manualFold(text string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(text) {
		r = foldTurkish(r)
		if unicode.Is(unicode.Mn, r) || r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize maps text to the key used for equality matching: the mojibake
// marker is removed, accents and Turkish letters are folded to ASCII, any
// other non-ASCII character is dropped, and the result is lower-cased.
//
// Normalize is total and idempotent; Normalize("") == "".
func Normalize(text string) string {
	cleaned := strings.ReplaceAll(text, Mojibake, "")
	return strings.ToLower(asciiFold(cleaned))
}

// ToASCIIDisplay folds text to ASCII like Normalize, without stripping the
// mojibake marker, and upper-cases the result. It is the display form used
// when a table is written in pure ASCII.
func ToASCIIDisplay(text string) string {
	return strings.ToUpper(asciiFold(text))
}
