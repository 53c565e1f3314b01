// Package device derives a coarse device descriptor from a User-Agent header.
// It only needs to be good enough for a "manage devices" listing, not for
// fingerprinting.
package device

import "strings"

type Info struct {
	Name    string
	Type    string // mobile, tablet, desktop, unknown
	Browser string
	OS      string
}

// Parse extracts a best-effort descriptor from a raw User-Agent value.
func Parse(userAgent string) Info {
	info := Info{Type: "unknown"}
	if userAgent == "" {
		return info
	}

	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		info.Type = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		info.Type = "mobile"
	default:
		info.Type = "desktop"
	}

	switch {
	case strings.Contains(ua, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(ua, "chrome/") && !strings.Contains(ua, "chromium"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox/"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari/") && strings.Contains(ua, "version/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		info.OS = "iOS"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "mac os"):
		info.OS = "macOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	var parts []string
	if info.Browser != "" {
		parts = append(parts, info.Browser)
	}
	if info.OS != "" {
		parts = append(parts, "on "+info.OS)
	}
	if len(parts) > 0 {
		info.Name = strings.Join(parts, " ")
	}

	return info
}
