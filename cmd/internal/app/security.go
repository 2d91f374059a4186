package app

import (
	"errors"

	"gatepass/cmd/security/token"
)

// ValidateSecurityConfig enforces the credential-hashing policy at startup.
// Fail-fast: silently falling back to unkeyed hashing in production is not
// acceptable.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: GATEPASS_REQUIRE_TOKEN_HMAC=true but GATEPASS_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: GATEPASS_REQUIRE_TOKEN_HMAC=true but GATEPASS_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: GATEPASS_REQUIRE_TOKEN_HMAC=true but credential hasher is not in HMAC mode")
	}

	return nil
}
