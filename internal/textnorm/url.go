package textnorm

import (
	"net/url"
	"strings"
)

// CanonicalURL returns the form under which two website values are considered
// the same site: trimmed, scheme and host lowercased, no fragment and no
// trailing slash. Unparseable input is only trimmed.
func CanonicalURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return strings.TrimRight(u.String(), "/")
}
