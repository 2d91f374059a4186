package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSHA256Hex(t *testing.T) {
	// Known vector for "abc".
	require.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		HashSHA256Hex("abc"))
}

func TestHashHMACSHA256Hex_KeyChangesDigest(t *testing.T) {
	a := HashHMACSHA256Hex("123456", []byte("key-one-key-one-key-one-key-one!"))
	b := HashHMACSHA256Hex("123456", []byte("key-two-key-two-key-two-key-two!"))
	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
}

func TestHashCredentialHex_FallsBackWithoutKey(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	require.Equal(t, HashSHA256Hex("123456"), HashCredentialHex("123456"))
}

func TestHashCredentialHex_UsesHMACWhenKeySet(t *testing.T) {
	key := strings.Repeat("k", 32)
	t.Setenv(HMACEnvKey, key)
	require.Equal(t, HashHMACSHA256Hex("123456", []byte(key)), HashCredentialHex("123456"))
	require.NotEqual(t, HashSHA256Hex("123456"), HashCredentialHex("123456"))
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	_, err := HMACKeyFromEnv(32)
	require.ErrorIs(t, err, ErrHMACKeyMissing)
	require.False(t, HMACEnabled())

	t.Setenv(HMACEnvKey, "too-short")
	_, err = HMACKeyFromEnv(32)
	require.ErrorIs(t, err, ErrHMACKeyTooShort)
	require.True(t, HMACEnabled())

	t.Setenv(HMACEnvKey, "  "+strings.Repeat("k", 32)+"  ")
	key, err := HMACKeyFromEnv(32)
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestHashCredentialHexRequireHMAC(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	_, err := HashCredentialHexRequireHMAC("123456", 32)
	require.ErrorIs(t, err, ErrHMACKeyMissing)

	key := strings.Repeat("k", 32)
	t.Setenv(HMACEnvKey, key)
	got, err := HashCredentialHexRequireHMAC("123456", 32)
	require.NoError(t, err)
	require.Equal(t, HashHMACSHA256Hex("123456", []byte(key)), got)
}
