package utils

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s<>]+`)

func ExtractURLs(content string) []string {
	matches := urlRegex.FindAllString(content, -1)
	for i, match := range matches {
		matches[i] = strings.TrimRight(match, ".,;:!?)]>")
	}
	return matches
}

// ParseURL returns the parsed url with a lower-cased ASCII host.
func ParseURL(raw string) (*url.URL, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	if port := parsed.Port(); port != "" {
		parsed.Host = host + ":" + port
	} else {
		parsed.Host = host
	}
	parsed.User = nil
	parsed.Fragment = ""
	return parsed, nil
}

// Extension is the lower-cased file extension of the url path, including the dot.
func Extension(u *url.URL) string {
	return strings.ToLower(path.Ext(u.Path))
}

// HostMatches reports whether host equals one of hosts or is a subdomain of it.
func HostMatches(host string, hosts []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, candidate := range hosts {
		candidate = strings.ToLower(candidate)
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}
