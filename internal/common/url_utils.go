package common

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrInvalidURL is returned when the text does not parse as an absolute URL
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnsupportedHost is returned when the URL is not on an accepted video host
	ErrUnsupportedHost = errors.New("unsupported video host")
)

// IsValidURL reports whether s parses with both a scheme and a host
func IsValidURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// CleanVideoURL strips extra query parameters from video-host URLs, keeping only
// the part before the first '&' (playlist and timestamp parameters confuse the remote site)
func CleanVideoURL(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "&"); i >= 0 {
		return s[:i]
	}
	return s
}

// HostAllowed reports whether host equals or is a subdomain of one of the allowed domains
func HostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// NormalizeVideoURL validates s as a video URL on an allowed host and returns the cleaned form
func NormalizeVideoURL(s string, allowed []string) (string, error) {
	if !IsValidURL(s) {
		return "", ErrInvalidURL
	}
	cleaned := CleanVideoURL(s)
	u, err := url.Parse(cleaned)
	if err != nil {
		return "", ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if len(allowed) > 0 && !HostAllowed(u.Host, allowed) {
		return "", ErrUnsupportedHost
	}
	return cleaned, nil
}
