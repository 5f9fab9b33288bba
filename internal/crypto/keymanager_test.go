package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptKeyRoundTrips(t *testing.T) {
	blob, err := EncryptKey(testPrivateKeyHex, "correct horse battery staple")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, testPrivateKeyHex, got)
}

func TestDecryptKeyRejectsWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testPrivateKeyHex, "correct password")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong password")
	require.Error(t, err)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testPrivateKeyHex, "")
	require.Error(t, err)

	_, err = EncryptKey("not-hex", "password")
	require.Error(t, err)

	_, err = EncryptKey("00", "password")
	require.Error(t, err)
}

func TestLoadKeyPrefersRawPrivateKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testPrivateKeyHex})
	require.NoError(t, err)
	require.Equal(t, testPrivateKeyHex, got)
}

func TestLoadKeyReadsEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testPrivateKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "relayer.key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, testPrivateKeyHex, got)
}

func TestLoadKeyRequiresASource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	require.Error(t, err)
}
