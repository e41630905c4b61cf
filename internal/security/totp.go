// Package security provides the cryptographic primitives behind the identity
// provider: TOTP secrets and validation, password hashing, and the
// failed-login lockout tracker.
//
// Purpose:
//   This package wraps the TOTP library (RFC 6238) for factor enrollment and
//   verification, derives Argon2id password hashes, and tracks failed login
//   attempts in Redis to drive account lockout.
//
// Dependencies:
//   - github.com/pquerna/otp: TOTP secret generation and code validation
//   - golang.org/x/crypto/argon2: password hashing
//   - github.com/redis/go-redis/v9: lockout attempt counters
//
// Debugging Notes:
//   - TOTP codes use the standard parameters: SHA1, 6 digits, 30-second period,
//     with the library's default ±1 step clock-skew tolerance
//   - Secrets are base32-encoded strings (standard authenticator format)
//   - The QR payload is a base64 PNG data URI rendered from the otpauth:// key
//
// Thread Safety:
//   - All functions are stateless and safe for concurrent use; LockoutTracker
//     delegates its state to Redis
package security

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrSizePixels = 200

// TOTPKey is a freshly generated TOTP secret plus the artifacts an
// authenticator app needs to import it.
type TOTPKey struct {
	// Secret is the base32 shared secret for manual entry.
	Secret string
	// URL is the otpauth:// provisioning URI.
	URL string
	// QRCodePNG is the provisioning URI rendered as a base64 PNG data URI.
	QRCodePNG string
}

// GenerateTOTPKey creates a new TOTP secret bound to the given issuer and
// account name (the user's email).
func GenerateTOTPKey(issuer, accountName string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
		Period:      30,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	qr, err := renderQRCode(key)
	if err != nil {
		return nil, err
	}

	return &TOTPKey{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRCodePNG: qr,
	}, nil
}

// ValidateTOTP reports whether code is currently valid for secret.
// An empty secret or code is invalid, not an error.
func ValidateTOTP(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}

func renderQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(qrSizePixels, qrSizePixels)
	if err != nil {
		return "", fmt.Errorf("render totp qr image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode totp qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
