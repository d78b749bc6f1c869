package window

import (
	"fmt"
	"net/url"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// OriginOf resolves rawURL against base and returns its scheme://host[:port]
// origin, dropping the scheme's default port.
func OriginOf(rawURL, base string) (string, error) {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("window: parse %q: %w", rawURL, err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("window: parse base %q: %w", base, err)
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme == "" || ref.Host == "" {
		return "", fmt.Errorf("window: %q has no origin", rawURL)
	}

	scheme := strings.ToLower(ref.Scheme)
	host := strings.ToLower(ref.Hostname())
	if port := ref.Port(); port != "" && port != defaultPorts[scheme] {
		host = host + ":" + port
	}
	return scheme + "://" + host, nil
}
