package portal

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxFieldLength caps sanitized text, in runes.
const MaxFieldLength = 2000

const ellipsis = "..."

// Sanitize prepares extracted text for storage: control characters and line
// breaks become spaces, quotes and backslashes are dropped, whitespace is
// collapsed and the result is capped at MaxFieldLength runes plus an ellipsis.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '\'' || r == '\\':
			return -1
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > MaxFieldLength {
		s = string(r[:MaxFieldLength]) + ellipsis
	}
	return s
}

// Fold lowercases s with Portuguese rules so that keyword matching ignores case.
func Fold(s string) string {
	return cases.Lower(language.BrazilianPortuguese).String(s)
}

// ContainsAny reports whether s contains any needle, ignoring case.
func ContainsAny(s string, needles ...string) bool {
	folded := Fold(s)
	for _, n := range needles {
		if strings.Contains(folded, Fold(n)) {
			return true
		}
	}
	return false
}

// CanonicalDocumentURL resolves raw against base and makes sure the
// document is requested in PDF form.
func CanonicalDocumentURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http") {
		if b, err := url.Parse(base); err == nil {
			if ref, err := url.Parse(raw); err == nil {
				raw = b.ResolveReference(ref).String()
			}
		}
	}
	if strings.Contains(raw, "formato=PDF") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "formato=PDF"
}

// NormalizeID reduces a case identifier to its digits. Applying it to an
// already normalized identifier returns it unchanged.
func NormalizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanID strips the wildcard padding some worklists carry around identifiers.
func CleanID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "%")
}

// IsHabeasCorpus reports whether the identifier names a habeas corpus case.
func IsHabeasCorpus(id string) bool {
	return strings.Contains(strings.ToLower(id), "hc")
}
