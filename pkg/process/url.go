package process

import (
	"net/url"
	"strings"
)

// IsRemoteURL reports whether s is a fetchable remote reference, i.e. parses
// as a URL with an http or https scheme. Local paths, data URIs, mailto links
// and bare anchors all return false; the rewriters emit those references
// byte-identical to their input.
func IsRemoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}
