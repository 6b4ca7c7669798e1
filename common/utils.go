// Package common: small helpers reused across config loading, the HTTP
// client, and the collectors.
package common

// MaskSecret masks sensitive strings for safe logging: first 4 and last 4
// characters for strings longer than 8 chars, "***" for short strings, and
// "<not set>" for empty strings.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
