// Package helpers holds small text and URL utilities shared by the research engine.
package helpers

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var trackingParams = map[string]struct{}{
	"gclid":   {},
	"dclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"igshid":  {},
	"ref":     {},
}

// CanonicalURL normalises raw so two links to the same page compare equal:
// lower-case scheme and host, default port and fragment dropped, path cleaned,
// utm_* and click-id parameters removed, remaining query sorted. A missing
// scheme defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	} else if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	p := path.Clean("/" + u.Path)
	if p != "/" && strings.HasSuffix(u.Path, "/") {
		p += "/"
	}
	u.Path = p
	u.RawPath = ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	// Encode sorts by key
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SourceKey is CanonicalURL for deduplication: unparseable input falls back
// to its trimmed, lower-cased form instead of failing.
func SourceKey(raw string) string {
	if c, err := CanonicalURL(raw); err == nil {
		return c
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
