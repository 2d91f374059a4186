package visitor

import "strings"

// DefaultCountryCode is prepended to bare national numbers during
// normalization. The deployments this engine ships to are Indian societies;
// override via NormalizePhoneCC for other regions.
const DefaultCountryCode = "91"

// NormalizePhone canonicalizes a phone number for matching: digits only,
// leading trunk zero replaced by the default country code, bare 10-digit
// numbers prefixed with it.
func NormalizePhone(s string) string {
	return NormalizePhoneCC(s, DefaultCountryCode)
}

// NormalizePhoneCC is NormalizePhone with an explicit country code.
func NormalizePhoneCC(s, cc string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(digits, "0"):
		return cc + strings.TrimLeft(digits, "0")
	case len(digits) == 10:
		return cc + digits
	default:
		return digits
	}
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
