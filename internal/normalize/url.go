// Package normalize holds the comparison forms used throughout enrichment:
// canonical source URLs, hosts, E.164 phones, emails and folded names.
package normalize

import (
	"net"
	"net/url"
	"sort"
	"strings"
)

// URLNormalizer canonicalizes source URLs so mirrored or tracked variants
// of one page collapse to a single entry.
type URLNormalizer struct {
	exact    map[string]bool
	prefixes []string
}

// NewURLNormalizer builds a normalizer that strips the given query
// parameters. A trailing "*" matches by prefix (e.g. "utm_*").
func NewURLNormalizer(trackingParams []string) *URLNormalizer {
	n := &URLNormalizer{exact: make(map[string]bool)}
	for _, p := range trackingParams {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			n.prefixes = append(n.prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		n.exact[p] = true
	}
	return n
}

func (n *URLNormalizer) isTracking(key string) bool {
	k := strings.ToLower(key)
	if n.exact[k] {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// Normalize returns the canonical form of raw and whether raw was a usable
// http(s) URL. Scheme is unified to https, the host is lowercased with any
// "www." prefix and default port removed, fragments and tracking
// parameters are dropped, remaining parameters are sorted and the trailing
// slash is trimmed.
func (n *URLNormalizer) Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := canonicalHost(u.Host)
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	q := u.Query()
	for key := range q {
		if n.isTracking(key) {
			q.Del(key)
		}
	}

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(path)
	if len(q) > 0 {
		b.WriteString("?")
		b.WriteString(q.Encode())
	}
	return b.String(), true
}

// NormalizeAll normalizes and deduplicates urls, returning them sorted.
// Unusable entries are dropped.
func (n *URLNormalizer) NormalizeAll(urls []string) []string {
	set := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		if u, ok := n.Normalize(raw); ok {
			set[u] = struct{}{}
		}
	}
	return SortedSet(set)
}

// SortedSet returns the keys of set in sorted order.
func SortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Host returns the canonical host of a URL or bare domain, or "".
func Host(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return canonicalHost(u.Host)
}

func canonicalHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if host, port, err := net.SplitHostPort(h); err == nil {
		if port == "80" || port == "443" {
			h = host
		}
	}
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}

// WithinDomain reports whether host equals domain or is a subdomain of it.
func WithinDomain(host, domain string) bool {
	host = canonicalHost(host)
	domain = canonicalHost(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Website returns the comparison form of a website value: canonical host
// plus path, without scheme.
func Website(raw string) string {
	u, ok := NewURLNormalizer(nil).Normalize(raw)
	if !ok {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.TrimPrefix(u, "https://")
}
