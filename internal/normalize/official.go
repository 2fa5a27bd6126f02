package normalize

import "strings"

// OfficialMatcher recognizes regulator and government hosts from a
// configured allow-list of domains.
type OfficialMatcher struct {
	domains []string
}

// NewOfficialMatcher builds a matcher. Entries may be bare domains or URLs.
func NewOfficialMatcher(domains []string) *OfficialMatcher {
	m := &OfficialMatcher{}
	for _, d := range domains {
		if h := Host(strings.TrimPrefix(strings.TrimSpace(d), ".")); h != "" {
			m.domains = append(m.domains, h)
		}
	}
	return m
}

// IsOfficial reports whether the URL's host falls under an allow-listed domain.
func (m *OfficialMatcher) IsOfficial(rawURL string) bool {
	host := Host(rawURL)
	for _, d := range m.domains {
		if WithinDomain(host, d) {
			return true
		}
	}
	return false
}
