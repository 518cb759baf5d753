/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package security scrubs credentials from text and request input before
// they reach the audit log or log output.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// redactedPlaceholder replaces sensitive values.
const redactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9\-_.~+/]+=*`),
	// Authorization headers
	regexp.MustCompile(`(?i)(authorization:\s*)(bearer\s+)?[a-zA-Z0-9\-_.~+/]+=*`),
	// Session cookies
	regexp.MustCompile(`(monfront_session=)[^;\s]+`),
	// Anti-forgery and API tokens
	regexp.MustCompile(`(?i)((?:_csrf_token|api_token|token)["\s:=]+)[a-zA-Z0-9\-_.~+/]{16,}=*`),
	// Hex keys (signing keys, session secrets)
	regexp.MustCompile(`(?i)((?:signing_key|secret|key)["\s:=]+)[0-9a-f]{32,}`),
	// Password fields
	regexp.MustCompile(`(?i)(password["\s:=]+)\S+`),
	// Private key blocks
	regexp.MustCompile(`(?s)-----BEGIN[A-Z ]*PRIVATE KEY-----.*?-----END[A-Z ]*PRIVATE KEY-----`),
}

// Sanitize replaces values matching a secret pattern with [REDACTED],
// keeping the label in front of them.
func Sanitize(text string) string {
	result := text
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			loc := pattern.FindStringSubmatchIndex(match)
			if len(loc) >= 4 && loc[2] >= 0 {
				return match[loc[2]:loc[3]] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}

// ContainsSecret checks if text likely contains sensitive data.
func ContainsSecret(text string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// SanitizeError sanitizes an error message and truncates it to maxLen.
func SanitizeError(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	sanitized := err.Error()
	if ContainsSecret(sanitized) {
		sanitized = Sanitize(sanitized)
	}
	if maxLen > 0 && len(sanitized) > maxLen {
		return sanitized[:maxLen] + "... (truncated)"
	}
	return sanitized
}

// SanitizeInput flattens the top level of request input for the audit log.
// Credential fields are redacted, nested values are summarised by size and
// strings longer than maxLen are cut.
func SanitizeInput(raw map[string]any, maxLen int) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if isCredentialKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		var s string
		switch v := v.(type) {
		case string:
			s = Sanitize(v)
		case map[string]any:
			s = fmt.Sprintf("[%d fields]", len(v))
		case []any:
			s = fmt.Sprintf("[%d items]", len(v))
		case nil:
			s = ""
		default:
			s = Sanitize(fmt.Sprint(v))
		}
		if maxLen > 0 && len(s) > maxLen {
			s = s[:maxLen] + "..."
		}
		out[k] = s
	}
	return out
}

// isCredentialKey checks if a field name suggests it holds a secret.
func isCredentialKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "api_key", "apikey", "private_key", "credential", "sign"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
