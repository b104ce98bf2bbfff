// Package privacy scrubs delivery secrets from text that leaves the
// process. Webhook URLs, shoutrrr service URLs, and broker addresses all
// embed tokens or credentials, so anything headed for logs, metric
// labels, or telemetry passes through here first.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Patterns are compiled once, scrubbing runs on the delivery path.
var (
	// Matches any scheme-qualified URL, including non-HTTP service URLs
	// such as discord:// or tcp://.
	urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://\S+`)

	ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// ScrubMessage replaces every URL in a message with its anonymized form.
// Provider error strings routinely quote the destination they failed
// against, so they are scrubbed before they reach telemetry.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL reduces a URL to a stable hash that preserves
// categorization (scheme, host class, port, path shape) without any
// secrets. Two reports against the same destination hash alike, which
// keeps telemetry events groupable.
func AnonymizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	var normalizedParts []string

	if parsedURL.Scheme != "" {
		normalizedParts = append(normalizedParts, parsedURL.Scheme)
	}

	host := parsedURL.Hostname()
	if host != "" {
		normalizedParts = append(normalizedParts, categorizeHost(host))
	}

	if parsedURL.Port() != "" {
		normalizedParts = append(normalizedParts, "port-"+parsedURL.Port())
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		normalizedParts = append(normalizedParts, anonymizePath(parsedURL.Path))
	}

	normalized := strings.Join(normalizedParts, ":")
	hash := sha256.Sum256([]byte(normalized))

	return fmt.Sprintf("url-%x", hash[:12])
}

// RedactURL returns a display form of a delivery URL with credentials,
// path, query, and fragment removed. Webhook tokens live in the path and
// service credentials in the userinfo, so only scheme, host, and port
// survive. Input without a scheme is anonymized instead, nothing slips
// through unparsed.
func RedactURL(raw string) string {
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return AnonymizeURL(raw)
	}

	rest := raw[schemeEnd+3:]

	// Userinfo ends at the last @ before the path. Passwords may
	// themselves contain @, so scan from the right.
	authority := rest
	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		authority = rest[:cut]
	}
	if at := strings.LastIndex(authority, "@"); at >= 0 {
		rest = rest[at+1:]
	}

	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		rest = rest[:cut]
	}

	return raw[:schemeEnd+3] + rest
}

// categorizeHost anonymizes hostnames while keeping a coarse class for
// debugging.
func categorizeHost(host string) string {
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return "localhost"
	}

	if isPrivateIP(host) {
		return "private-ip"
	}

	if isIPAddress(host) {
		return "public-ip"
	}

	// For domain names, only the TLD survives.
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}

	return "unknown-host"
}

// anonymizePath keeps the path's shape but not its contents. Well-known
// API words stay readable, numeric IDs collapse, and everything else,
// webhook tokens included, becomes a segment hash.
func anonymizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}

	segments := strings.Split(path, "/")
	var anonymizedSegments []string

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		switch {
		case isKnownServiceWord(segment):
			anonymizedSegments = append(anonymizedSegments, "service")
		case isNumeric(segment):
			anonymizedSegments = append(anonymizedSegments, "numeric")
		default:
			hash := sha256.Sum256([]byte(segment))
			anonymizedSegments = append(anonymizedSegments, fmt.Sprintf("seg-%x", hash[:4]))
		}
	}

	return strings.Join(anonymizedSegments, "/")
}

// isPrivateIP checks if the host is a private IPv4 or IPv6 address.
func isPrivateIP(host string) bool {
	privateRanges := []string{
		// IPv4 private ranges
		"10.", "172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.", "172.22.", "172.23.",
		"172.24.", "172.25.", "172.26.", "172.27.", "172.28.", "172.29.", "172.30.", "172.31.",
		"192.168.", "169.254.",
		// IPv6 private ranges
		"fc00:", "fd00:", // unique local
		"fe80:",                   // link-local
		"::1",                     // loopback
		"ff00:", "ff01:", "ff02:", // multicast
	}

	for _, prefix := range privateRanges {
		if strings.HasPrefix(strings.ToLower(host), strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// isIPAddress checks if the host looks like an IP address.
func isIPAddress(host string) bool {
	if ipv4Pattern.MatchString(host) {
		return true
	}

	// IPv6 contains colons
	return strings.Contains(host, ":")
}

// isKnownServiceWord reports whether a path segment is a routine,
// non-sensitive API word seen in webhook endpoints.
func isKnownServiceWord(segment string) bool {
	commonWords := []string{"api", "webhook", "hook", "services", "notify", "messages", "bot", "send"}
	segment = strings.ToLower(segment)

	for _, word := range commonWords {
		if strings.Contains(segment, word) {
			return true
		}
	}
	return false
}

// isNumeric checks if a string is purely numeric.
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
