package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const priceRegistryMarker = "registro de preco"

// Fold lower-cases s and strips diacritics so "Preço" matches "preco".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// ContainsFolded reports whether needle occurs in haystack ignoring case and accents.
func ContainsFolded(haystack, needle string) bool {
	needle = Fold(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(Fold(haystack), needle)
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

// PriceRegistry keeps an explicit source flag and otherwise looks for the registry marker in texts.
func PriceRegistry(explicit, present bool, texts ...string) bool {
	if present {
		return explicit
	}
	for _, text := range texts {
		if strings.Contains(Fold(text), priceRegistryMarker) {
			return true
		}
	}
	return false
}
