package config

import "testing"

func TestCrawlPolicyNormalize(t *testing.T) {
	cfg := CrawlPolicyConfig{
		Allow:       []string{"Example.com", "https://news.example.com/path"},
		Disallow:    []string{"www.Bad.com", "bad.com"},
		Paywall:     []string{"Paywall.com", "PAYWALL.COM"},
		Attribution: map[string]string{"WWW.Example.com": " Example ", "": "ignored"},
	}

	norm := cfg.Normalize()
	if len(norm.Allow) != 2 || norm.Allow[0] != "example.com" || norm.Allow[1] != "news.example.com" {
		t.Fatalf("unexpected allow list: %#v", norm.Allow)
	}
	if len(norm.Disallow) != 1 || norm.Disallow[0] != "bad.com" {
		t.Fatalf("unexpected disallow list: %#v", norm.Disallow)
	}
	if len(norm.Paywall) != 1 || norm.Paywall[0] != "paywall.com" {
		t.Fatalf("unexpected paywall list: %#v", norm.Paywall)
	}
	if len(norm.Attribution) != 1 || norm.Attribution["example.com"] != "Example" {
		t.Fatalf("unexpected attribution: %#v", norm.Attribution)
	}
}

func TestCrawlPolicyValidate(t *testing.T) {
	valid := CrawlPolicyConfig{Allow: []string{"example.com"}, Disallow: []string{"blocked.com"}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	conflict := CrawlPolicyConfig{Allow: []string{"example.com"}, Disallow: []string{"Example.com"}}
	if err := conflict.Validate(); err == nil {
		t.Fatalf("expected conflict validation error")
	}

	paywallConflict := CrawlPolicyConfig{Disallow: []string{"paywall.com"}, Paywall: []string{"paywall.com"}}
	if err := paywallConflict.Validate(); err == nil {
		t.Fatalf("expected paywall/disallow conflict error")
	}
}

func TestCrawlPolicyPermits(t *testing.T) {
	open := CrawlPolicyConfig{Disallow: []string{"spam.com"}}.Normalize()
	if !open.Permits("https://espresso.example.org/reviews") {
		t.Fatalf("expected open policy to permit unlisted host")
	}
	if open.Permits("https://cdn.spam.com/x") {
		t.Fatalf("expected subdomain of disallowed host to be rejected")
	}
	if open.Permits("not a url") {
		t.Fatalf("expected garbage url to be rejected")
	}

	closed := CrawlPolicyConfig{Allow: []string{"example.com"}}.Normalize()
	if !closed.Permits("https://www.example.com/a") || closed.Permits("https://other.org") {
		t.Fatalf("allow list not enforced")
	}
}

func TestCrawlPolicyAttribute(t *testing.T) {
	p := CrawlPolicyConfig{
		Paywall:     []string{"ft.com"},
		Attribution: map[string]string{"ft.com": "Financial Times"},
	}.Normalize()
	if got := p.Attribute("https://www.ft.com/content/1"); got != "Financial Times" {
		t.Fatalf("expected attribution label, got %q", got)
	}
	if got := p.Attribute("https://blog.ft.com/content/1"); got != "Financial Times" {
		t.Fatalf("expected parent attribution label, got %q", got)
	}
	if got := p.Attribute("https://example.org/x"); got != "example.org" {
		t.Fatalf("expected host fallback, got %q", got)
	}
	if !p.Paywalled("https://ft.com/a") {
		t.Fatalf("expected paywalled host")
	}
}
