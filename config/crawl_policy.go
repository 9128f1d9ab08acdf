package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CrawlPolicyConfig configures which hosts the research engine may read pages from.
// An empty Allow list permits every host that is not disallowed.
type CrawlPolicyConfig struct {
	Allow       []string          `mapstructure:"allow" json:"allow"`
	Disallow    []string          `mapstructure:"disallow" json:"disallow"`
	Paywall     []string          `mapstructure:"paywall" json:"paywall"`
	Attribution map[string]string `mapstructure:"attribution" json:"attribution"`
}

// Normalize cleans entries and removes duplicates.
func (c CrawlPolicyConfig) Normalize() CrawlPolicyConfig {
	norm := c
	norm.Allow = sanitizeDomainList(norm.Allow)
	norm.Disallow = sanitizeDomainList(norm.Disallow)
	norm.Paywall = sanitizeDomainList(norm.Paywall)
	attr := make(map[string]string, len(norm.Attribution))
	for host, val := range norm.Attribution {
		key := normalizeHost(host)
		if key == "" {
			continue
		}
		attr[key] = strings.TrimSpace(val)
	}
	norm.Attribution = attr
	return norm
}

// Validate ensures configured policy entries do not conflict.
func (c CrawlPolicyConfig) Validate() error {
	norm := c.Normalize()
	allow := toSet(norm.Allow)
	disallow := toSet(norm.Disallow)
	for host := range disallow {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("crawl policy conflict: host %q present in both allow and disallow lists", host)
		}
	}
	for _, host := range norm.Paywall {
		if _, ok := disallow[host]; ok {
			return fmt.Errorf("crawl policy conflict: host %q marked disallow and paywall", host)
		}
	}
	return nil
}

// Permits reports whether a page on rawURL may be read at all. Subdomains
// inherit the rule of their parent entry.
func (c CrawlPolicyConfig) Permits(rawURL string) bool {
	host := normalizeHost(rawURL)
	if host == "" {
		return false
	}
	if matchHost(host, c.Disallow) {
		return false
	}
	if len(c.Allow) == 0 {
		return true
	}
	return matchHost(host, c.Allow)
}

// Paywalled reports whether rawURL is behind a known paywall; only the search
// snippet is used for such pages.
func (c CrawlPolicyConfig) Paywalled(rawURL string) bool {
	return matchHost(normalizeHost(rawURL), c.Paywall)
}

// Attribute returns the publisher label configured for rawURL's host, or the host itself.
func (c CrawlPolicyConfig) Attribute(rawURL string) string {
	host := normalizeHost(rawURL)
	for h := host; h != ""; h = parentHost(h) {
		if label, ok := c.Attribution[h]; ok && label != "" {
			return label
		}
	}
	return host
}

func matchHost(host string, list []string) bool {
	if host == "" {
		return false
	}
	for _, entry := range list {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func parentHost(host string) string {
	i := strings.IndexByte(host, '.')
	if i < 0 || !strings.Contains(host[i+1:], ".") {
		return ""
	}
	return host[i+1:]
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return ""
		}
		value = u.Hostname()
	}
	return strings.TrimPrefix(value, "www.")
}
