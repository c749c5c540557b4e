package service

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSequentialSuffix = 99

// SlugifyUsername lowercases, strips diacritics, drops anything outside
// [a-z0-9._-] and joins words with dots: "  João  da Silva!" → "joao.da.silva".
func SlugifyUsername(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(name))
	}

	var b strings.Builder
	pendingDot := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			if pendingDot && b.Len() > 0 {
				b.WriteByte('.')
			}
			pendingDot = false
			b.WriteRune(r)
		case r == '.' || unicode.IsSpace(r):
			pendingDot = true
		}
	}
	return b.String()
}

// suggestUsername returns the first free candidate among base, base2 … base99,
// then falls back to random numeric suffixes. taken must compare case-insensitively.
func suggestUsername(fullName string, taken func(string) bool) string {
	base := SlugifyUsername(fullName)
	if base == "" {
		return ""
	}
	if !taken(base) {
		return base
	}

	for i := 2; i <= maxSequentialSuffix; i++ {
		candidate := base + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}

	for {
		candidate := base + strconv.Itoa(100+rand.IntN(900_000))
		if !taken(candidate) {
			return candidate
		}
	}
}
