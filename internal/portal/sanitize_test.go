package portal

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeIDIdempotent(t *testing.T) {
	ids := []string{
		"1234567-89.2023.8.26.0050",
		"HC 812.345",
		"%0001234-56.2024.8.26.0001%",
		"",
		"12345678920238260050",
	}
	for _, id := range ids {
		once := NormalizeID(id)
		if twice := NormalizeID(once); twice != once {
			t.Errorf("NormalizeID not idempotent for %q: %q then %q", id, once, twice)
		}
		if strings.TrimFunc(once, func(r rune) bool { return r >= '0' && r <= '9' }) != "" {
			t.Errorf("NormalizeID(%q) = %q contains non-digits", id, once)
		}
	}
	if got := NormalizeID("1234567-89.2023.8.26.0050"); got != "12345678920238260050" {
		t.Errorf("got %q", got)
	}
}

func TestCleanID(t *testing.T) {
	if got := CleanID(" %1234.5% "); got != "1234.5" {
		t.Errorf("CleanID = %q", got)
	}
}

func TestIsHabeasCorpus(t *testing.T) {
	tests := map[string]bool{
		"HC 812345":                 true,
		"hc812345":                  true,
		"RHC 100.200":               true,
		"1234567-89.2023.8.26.0050": false,
	}
	for id, want := range tests {
		if got := IsHabeasCorpus(id); got != want {
			t.Errorf("IsHabeasCorpus(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  plain  ", "plain"},
		{"line\r\nbreak\ttab", "line break tab"},
		{`he said "no" and 'yes' \o/`, "he said no and yes o/"},
		{"ctrl\x00\x1fchars\x7f", "ctrl chars"},
		{"a   b \n\n c", "a b c"},
		{"João   d'Ávila", "João dÁvila"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("á", MaxFieldLength+50)
	got := Sanitize(long)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
	if n := utf8.RuneCountInString(got); n != MaxFieldLength+3 {
		t.Errorf("rune count = %d, want %d", n, MaxFieldLength+3)
	}

	exact := strings.Repeat("x", MaxFieldLength)
	if got := Sanitize(exact); got != exact {
		t.Errorf("text at the cap must not be truncated")
	}
}

func TestCanonicalDocumentURL(t *testing.T) {
	const base = "https://processo.stj.jus.br"
	tests := []struct {
		raw, want string
	}{
		{"", ""},
		{"/processo/dj/documento/mediado/?id=1", "https://processo.stj.jus.br/processo/dj/documento/mediado/?id=1&formato=PDF"},
		{"/processo/dj/documento/mediado/", "https://processo.stj.jus.br/processo/dj/documento/mediado/?formato=PDF"},
		{"https://example.org/doc?formato=PDF", "https://example.org/doc?formato=PDF"},
		{"https://example.org/doc?a=1&formato=PDF&b=2", "https://example.org/doc?a=1&formato=PDF&b=2"},
	}
	for _, tt := range tests {
		if got := CanonicalDocumentURL(base, tt.raw); got != tt.want {
			t.Errorf("CanonicalDocumentURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
