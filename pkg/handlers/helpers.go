package handlers

import (
	"strings"
)

// periodHours converts the dashboard period query ("1h", "24h", "7d") into hours.
// Unknown values fall back to 24h.
func periodHours(period string) int {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "1h":
		return 1
	case "7d":
		return 24 * 7
	default:
		return 24
	}
}

// allowsAnyOrigin reports whether the CORS origin list is a wildcard.
// trimOrigins drops the blanks left by "a, b" style env values.
func trimOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
