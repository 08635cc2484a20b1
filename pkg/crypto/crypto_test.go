package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignVerify(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Len(t, keys.Public, 64)
	assert.Len(t, keys.Secret, 64)

	data := []byte("transfer 1 token")
	signed, err := Sign(keys, data)
	require.NoError(t, err)

	sig, err := hex.DecodeString(signed.Signature)
	require.NoError(t, err)
	assert.True(t, Verify(keys.Public, data, sig))
	assert.False(t, Verify(keys.Public, []byte("tampered"), sig))

	attached, err := base64.StdEncoding.DecodeString(signed.Signed)
	require.NoError(t, err)
	assert.Equal(t, append(sig, data...), attached)
}

func TestKeyPairValidation(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = KeyPair{Secret: "zz"}.PublicKey()
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyPair{Public: other.Public, Secret: keys.Secret}.PublicKey()
	require.ErrorIs(t, err, ErrInvalidKey)

	pub, err := KeyPair{Secret: keys.Secret}.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, keys.Public, hex.EncodeToString(pub))
}

func TestLoadKeyPair(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)
	content, err := json.Marshal(keys)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	loaded, err := LoadKeyPair(path)
	require.NoError(t, err)
	assert.Equal(t, keys, loaded)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"public":"","secret":"00"}`), 0o600))
	_, err = LoadKeyPair(bad)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSHA256(t *testing.T) {
	got, err := SHA256(base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = SHA256("%%%")
	require.Error(t, err)
}

func TestScrypt(t *testing.T) {
	got, err := Scrypt(ScryptParams{LogN: 4, R: 1, P: 1, DKLen: 64})
	require.NoError(t, err)
	assert.Equal(t, "77d6576238657b203b19ca42c18a0497f16b4844e3074ae8dfdffa3fede21442"+
		"fcd0069ded0948f8326a753a0fc81f17e8d3e0fb2e0d3628cf35e20c38d18906", got)

	_, err = Scrypt(ScryptParams{LogN: 0, R: 8, P: 1, DKLen: 32})
	require.Error(t, err)

	_, err = Scrypt(ScryptParams{Password: "%%%", LogN: 4, R: 1, P: 1, DKLen: 32})
	require.Error(t, err)
}

func TestChaCha20RoundTrip(t *testing.T) {
	key := "0101010101010101010101010101010101010101010101010101010101010101"
	nonce := "ffffffffffffffffffffffff"
	plain := base64.StdEncoding.EncodeToString([]byte("Message"))

	encrypted, err := ChaCha20(ChaCha20Params{Data: plain, Key: key, Nonce: nonce})
	require.NoError(t, err)
	assert.NotEqual(t, plain, encrypted)

	decrypted, err := ChaCha20(ChaCha20Params{Data: encrypted, Key: key, Nonce: nonce})
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)

	_, err = ChaCha20(ChaCha20Params{Data: plain, Key: "01", Nonce: nonce})
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = ChaCha20(ChaCha20Params{Data: plain, Key: key, Nonce: "ff"})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestRandomBytes(t *testing.T) {
	got, err := RandomBytes(32)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
