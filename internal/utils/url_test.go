package utils

import "testing"

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("proof: https://i.imgur.com/abc.png, and (http://example.com/x).")
	if len(urls) != 2 {
		t.Fatalf("expected 2 urls, got %d", len(urls))
	}
	if urls[0] != "https://i.imgur.com/abc.png" {
		t.Fatalf("unexpected first url: %s", urls[0])
	}
	if urls[1] != "http://example.com/x" {
		t.Fatalf("unexpected second url: %s", urls[1])
	}
}

func TestParseURL(t *testing.T) {
	parsed, err := ParseURL("https://user@Пример.рф/Shot.PNG#frag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Hostname() != "xn--e1afmkfd.xn--p1ai" {
		t.Fatalf("unexpected host: %s", parsed.Hostname())
	}
	if Extension(parsed) != ".png" {
		t.Fatalf("unexpected extension: %s", Extension(parsed))
	}
	if parsed.User != nil || parsed.Fragment != "" {
		t.Fatalf("expected user and fragment stripped")
	}
}

func TestHostMatches(t *testing.T) {
	hosts := []string{"imgur.com"}
	if !HostMatches("i.imgur.com", hosts) {
		t.Fatalf("expected subdomain match")
	}
	if !HostMatches("IMGUR.com", hosts) {
		t.Fatalf("expected case-insensitive match")
	}
	if HostMatches("notimgur.com", hosts) {
		t.Fatalf("unexpected suffix match without dot")
	}
}
