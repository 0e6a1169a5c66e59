package util

// MaskToken deja visibles solo los extremos de un token para logs.
// Tokens cortos se ocultan enteros.
func MaskToken(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
