package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Private key from the go-ethereum documentation examples; never funded.
const testKeyHex = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func TestSignQueryAtDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "api-key", Secret: "api-secret"}

	signed, headers := auth.SignQueryAt("symbol=WETHUSDC&side=BUY", 1700000000000)
	again, _ := auth.SignQueryAt("symbol=WETHUSDC&side=BUY", 1700000000000)
	assert.Equal(t, signed, again)

	assert.Contains(t, signed, "symbol=WETHUSDC&side=BUY&timestamp=1700000000000&signature=")
	assert.Equal(t, "api-key", headers["X-API-KEY"])

	// The signature covers the timestamp, so a different timestamp signs
	// differently.
	other, _ := auth.SignQueryAt("symbol=WETHUSDC&side=BUY", 1700000000001)
	assert.NotEqual(t, signed, other)
}

func TestSignQueryAtEmptyQuery(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}
	signed, _ := auth.SignQueryAt("", 1700000000000)
	assert.True(t, strings.HasPrefix(signed, "timestamp=1700000000000&signature="))
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "secret-value"}
	s := auth.String()
	assert.NotContains(t, s, "abcdef123456")
	assert.NotContains(t, s, "secret-value")
	assert.Contains(t, s, "abcd****")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyUniqueSalts(t *testing.T) {
	a, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	b, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLoadKeyRaw(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "not-hex"})
	assert.Error(t, err)
}

func TestLoadKeyFromFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestLoadKeyNoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestLoadECDSAKey(t *testing.T) {
	key, err := LoadECDSAKey(KeyConfig{RawPrivateKey: testKeyHex})
	require.NoError(t, err)
	assert.NotNil(t, key)
}
