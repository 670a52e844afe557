package logger

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials that may leak into request URIs or error strings
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)((api[-_]?key|token|secret|passw(or)?d)[\s:=]+)([^;,&\s]{3,})`),
}

var sensitiveKeys = []string{"password", "passwd", "secret", "token", "apikey", "api_key", "authorization"}

// RedactSensitiveData replaces credentials in s with "[REDACTED]"
func RedactSensitiveData(s string) string {
	if s == "" {
		return s
	}
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, "$1[REDACTED]")
	}
	return s
}

// IsSensitiveKey reports whether a field name is likely to hold a credential
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
