// Package logutil provides logging utilities for sanitization.
package logutil

import "strings"

// MaskEmail redacts the local part of an email address so addresses can be
// correlated in logs without exposing PII.
//
//	alice@example.com => a***@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskToken redacts all but the first and last four characters of a token
// or session identifier. Short tokens are fully redacted.
func MaskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
