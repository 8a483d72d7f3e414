package api

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// normalizeOrigins reduces configured origins to lowercase scheme://host
// form without duplicates. A list with no entries, or one holding "*",
// allows every origin.
func normalizeOrigins(origins []string) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	allowAll, wildcard := true, false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		allowAll = false
		if trimmed == "*" {
			wildcard = true
			continue
		}

		if o, ok := normalizeOrigin(trimmed); ok && !slices.Contains(normalized, o) {
			normalized = append(normalized, o)
		}
	}

	return normalized, allowAll || wildcard
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin allows requests without an Origin header, which come from
// non-browser clients such as the connector.
func (a *RelayApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || a.allowAll {
		return true
	}

	normalized, ok := normalizeOrigin(origin)
	if ok && slices.Contains(a.allowedOrigins, normalized) {
		return true
	}

	a.log.Warn().Str("origin", origin).Msg("blocked websocket connection from disallowed origin")
	return false
}
