// Package credential implements the single-use check-in credential codec.
//
// Each visit owns at most one OTP and one QR token, both generated from a
// cryptographically secure source and stored hashed (see security/token).
// The plain codes are returned exactly once, at issue time. Verification is
// a lookup plus state checks; consumption happens atomically with the
// check-in transition in the gate coordinator, never here.
package credential

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"regexp"
	"strings"

	"gatepass/cmd/security/token"
)

// Kind distinguishes the two credential forms a gate can accept.
type Kind string

const (
	// KindOTP is a 6-digit numeric one-time passcode.
	KindOTP Kind = "otp"
	// KindQR is an opaque QR token.
	KindQR Kind = "qr"
)

const (
	// OTPLength is the fixed width of generated OTPs. Leading zeros are kept.
	OTPLength = 6

	// QRPrefix marks Gatepass QR payloads so scanners can reject foreign codes early.
	QRPrefix = "VMS-"

	qrTokenBytes = 16 // 128 bits of entropy
)

var (
	// ErrInvalidCredential is returned when a presented code resolves to no
	// active visit: unknown, expired, or bound to a visit in the wrong state.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrAlreadyConsumed is returned when the code was valid but a check-in
	// already burned it.
	ErrAlreadyConsumed = errors.New("credential already consumed")
)

var otpRe = regexp.MustCompile(`^[0-9]{6}$`)

// Issued carries a freshly generated credential pair. OTP and QRToken are the
// plain codes handed to the visitor; the hashes are what stores persist.
type Issued struct {
	OTP     string
	QRToken string
	OTPHash string
	QRHash  string
}

// Issue generates a new OTP + QR token pair.
func Issue() (Issued, error) {
	otp, err := newOTP()
	if err != nil {
		return Issued{}, err
	}
	qr, err := newQRToken()
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		OTP:     otp,
		QRToken: qr,
		OTPHash: token.HashCredentialHex(otp),
		QRHash:  token.HashCredentialHex(qr),
	}, nil
}

// Hash returns the storage hash for a presented code.
func Hash(code string) string {
	return token.HashCredentialHex(strings.TrimSpace(code))
}

// ValidFormat reports whether a presented code is even well-formed for its
// kind, letting callers fail fast without a store round trip.
func ValidFormat(code string, kind Kind) bool {
	code = strings.TrimSpace(code)
	switch kind {
	case KindOTP:
		return otpRe.MatchString(code)
	case KindQR:
		return strings.HasPrefix(code, QRPrefix) && len(code) > len(QRPrefix)
	default:
		return false
	}
}

// newOTP draws a uniform 6-digit code from crypto/rand. Rejection sampling
// keeps the distribution unbiased.
func newOTP() (string, error) {
	const digits = "0123456789"
	buf := make([]byte, 1)
	out := make([]byte, 0, OTPLength)
	for len(out) < OTPLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		// 250 is the largest multiple of 10 below 256.
		if buf[0] >= 250 {
			continue
		}
		out = append(out, digits[int(buf[0])%10])
	}
	return string(out), nil
}

func newQRToken() (string, error) {
	b := make([]byte, qrTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
	return QRPrefix + enc, nil
}
