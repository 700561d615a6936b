package sanitize

import "regexp"

// Plain email addresses (case-insensitive).
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +55..., (11) 99999-9999, 08xx..., etc.
// Only digits, spaces, minus, dot, parentheses and plus are allowed,
// with at least 9 digits total so short numbers are left alone.
var rePhone = regexp.MustCompile(`\+?\d[\d\s\-\.\(\)]{7,}\d`)

// RedactPII removes contact details from text shown to lawyers before a
// match is accepted, so contact happens through the platform.
func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[contato removido]")
	s = rePhone.ReplaceAllString(s, "[contato removido]")
	return s
}

// Summary cuts text for listings, breaking on a word boundary when possible.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && i < len(s) && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return s[:i] + "…"
}
