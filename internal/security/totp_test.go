package security

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestGenerateTOTPKey(t *testing.T) {
	key, err := GenerateTOTPKey("EryAI Dashboard", "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, key.Secret)
	require.Contains(t, key.URL, "otpauth://totp/")
	require.Contains(t, key.URL, "EryAI")
	require.True(t, strings.HasPrefix(key.QRCodePNG, "data:image/png;base64,"))
}

func TestValidateTOTP(t *testing.T) {
	key, err := GenerateTOTPKey("EryAI Dashboard", "bob@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(key.Secret, time.Now())
	require.NoError(t, err)

	require.True(t, ValidateTOTP(key.Secret, code))
	require.False(t, ValidateTOTP(key.Secret, "000000"))
	require.False(t, ValidateTOTP(key.Secret, ""))
}

func TestValidateTOTP_StaleCode(t *testing.T) {
	key, err := GenerateTOTPKey("EryAI Dashboard", "carol@example.com")
	require.NoError(t, err)

	// A code from ten minutes ago is far outside the validation skew.
	stale, err := totp.GenerateCode(key.Secret, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.False(t, ValidateTOTP(key.Secret, stale))
}
