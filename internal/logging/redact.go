package logging

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Field names whose values are never logged.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"hash",
}

var secretPatterns = []*regexp.Regexp{
	// Graph API tokens passed as query parameters
	regexp.MustCompile(`(?i)access_token=[^&\s"]+`),
	// Page and user access tokens
	regexp.MustCompile(`\bEAA[a-zA-Z0-9]{20,}`),
	// Google API keys
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{16,}`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces secrets embedded in s. A token query parameter keeps its
// name.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			if name, _, ok := strings.Cut(match, "="); ok && strings.EqualFold(name, "access_token") {
				return name + "=" + RedactedValue
			}
			return RedactedValue
		})
	}
	return s
}

// RedactURL returns raw with sensitive query parameters replaced. Unparseable
// input falls back to pattern redaction.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redact(raw)
	}
	query := u.Query()
	var hits int
	for key := range query {
		if IsSensitiveField(key) {
			query.Set(key, RedactedValue)
			hits++
		}
	}
	if hits > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// IsSensitiveField reports whether values stored under name must not be
// shown, matching substrings case-insensitively.
func IsSensitiveField(name string) bool {
	name = strings.ToLower(name)
	return slices.ContainsFunc(sensitiveFields, func(field string) bool {
		return strings.Contains(name, field)
	})
}
