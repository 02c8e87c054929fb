// Package textnorm canonicalizes free text for natural keys and fuzzy
// comparison.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9 ]+`)
	whitespace = regexp.MustCompile(`\s+`)

	// legalSuffix matches trailing Brazilian legal-entity designators on an
	// already-normalized name.
	legalSuffix = regexp.MustCompile(`(\s+(ltda|me|epp|eireli|sa|s a|ss|limitada))+$`)
)

// locationStopwords are the prepositions dropped from municipality names.
var locationStopwords = map[string]bool{
	"de": true, "da": true, "do": true, "das": true, "dos": true,
}

// Normalize lowercases s, strips diacritics, drops everything outside
// [a-z0-9 ] and collapses whitespace. It is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(stripDiacritics(s))
	s = whitespace.ReplaceAllString(s, " ")
	s = nonAlnum.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeLocationName normalizes a municipality name and removes the
// connecting prepositions, so "São Miguel do Oeste" becomes "sao miguel oeste".
func NormalizeLocationName(s string) string {
	words := strings.Fields(Normalize(s))
	kept := words[:0]
	for _, w := range words {
		if !locationStopwords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// StripLegalSuffix removes trailing legal-entity designators (ltda, me, eireli,
// ...) from a normalized name. A name made only of a suffix is returned as is.
func StripLegalSuffix(normalized string) string {
	stripped := strings.TrimSpace(legalSuffix.ReplaceAllString(normalized, ""))
	if stripped == "" {
		return normalized
	}
	return stripped
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
