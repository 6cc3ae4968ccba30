package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParamMarkers are substrings that mark a query parameter as a
// credential. Matching is case-insensitive, so API_KEY and Api-Key are
// both caught.
var sensitiveParamMarkers = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
}

// sanitizeURL renders a URL safe for logs. Remote server endpoints are
// configured by users and routinely embed credentials in query strings or
// userinfo; both are redacted before the URL reaches a log line.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	safe := *u

	if safe.User != nil {
		safe.User = url.User("[REDACTED]")
	}

	q := safe.Query()
	redacted := false
	for param := range q {
		if sensitiveParam(param) {
			q.Set(param, "[REDACTED]")
			redacted = true
		}
	}
	if redacted {
		safe.RawQuery = q.Encode()
	}

	return safe.String()
}

func sensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, marker := range sensitiveParamMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
