package normalize

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns a case- and accent-insensitive form of s with runs of
// whitespace and punctuation collapsed to a single space.
func Fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// Email validates a bare email address and returns it lowercased.
func Email(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", eris.Wrapf(err, "email: parse %q", raw)
	}
	if addr.Name != "" || !strings.EqualFold(addr.Address, strings.Trim(s, "<>")) {
		return "", eris.Errorf("email: %q is not a bare address", raw)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", eris.Errorf("email: %q has no qualified domain", raw)
	}
	return strings.ToLower(addr.Address), nil
}

// EmailDomain returns the lowercased domain of an email address, or "".
func EmailDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return ""
	}
	return canonicalHost(s[at+1:])
}
