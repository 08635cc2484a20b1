// Package crypto provides the key and hashing helpers exposed to embedders:
// ed25519 key pairs and detached signatures, sha256, scrypt key derivation,
// chacha20 encryption and random bytes. Binary inputs and outputs use the
// same encodings as the ledger SDK: hex for keys and hashes, base64 for data.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/scrypt"
)

var ErrInvalidKey = errors.New("invalid key")

// KeyPair is an ed25519 key pair. Secret holds the 32-byte seed.
type KeyPair struct {
	Public string `json:"public"`
	Secret string `json:"secret"`
}

// GenerateKeyPair returns a fresh random key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}

	return KeyPair{
		Public: hex.EncodeToString(pub),
		Secret: hex.EncodeToString(priv.Seed()),
	}, nil
}

// LoadKeyPair reads a key pair JSON file.
func LoadKeyPair(path string) (KeyPair, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return KeyPair{}, fmt.Errorf("read keys: %w", err)
	}

	var keys KeyPair
	if err := json.Unmarshal(content, &keys); err != nil {
		return KeyPair{}, fmt.Errorf("parse keys: %w", err)
	}
	if _, err := keys.privateKey(); err != nil {
		return KeyPair{}, err
	}

	return keys, nil
}

func (k KeyPair) privateKey() (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(k.Secret)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: secret must be %d hex bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	if k.Public != "" {
		pub, err := hex.DecodeString(k.Public)
		if err != nil || !ed25519.PublicKey(pub).Equal(priv.Public()) {
			return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidKey)
		}
	}

	return priv, nil
}

// PublicKey returns the raw public key bytes.
func (k KeyPair) PublicKey() ([]byte, error) {
	priv, err := k.privateKey()
	if err != nil {
		return nil, err
	}
	return priv.Public().(ed25519.PublicKey), nil
}

// Signed is the result of Sign.
type Signed struct {
	// Signed is base64 of signature followed by the data.
	Signed string `json:"signed"`
	// Signature is the detached signature in hex.
	Signature string `json:"signature"`
}

// SignDetached returns the raw signature of data.
func (k KeyPair) SignDetached(data []byte) ([]byte, error) {
	priv, err := k.privateKey()
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, data), nil
}

// Sign signs data and returns both the attached and detached forms.
func Sign(keys KeyPair, data []byte) (Signed, error) {
	sig, err := keys.SignDetached(data)
	if err != nil {
		return Signed{}, err
	}

	attached := make([]byte, 0, len(sig)+len(data))
	attached = append(attached, sig...)
	attached = append(attached, data...)

	return Signed{
		Signed:    base64.StdEncoding.EncodeToString(attached),
		Signature: hex.EncodeToString(sig),
	}, nil
}

// Verify checks a detached signature against a hex public key.
func Verify(public string, data, sig []byte) bool {
	pub, err := hex.DecodeString(public)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// SHA256 hashes base64 data and returns the hex digest.
func SHA256(data string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode data: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// ScryptParams are the inputs of Scrypt. Password and salt are base64.
type ScryptParams struct {
	Password string `json:"password"`
	Salt     string `json:"salt"`
	LogN     uint8  `json:"log_n"`
	R        int    `json:"r"`
	P        int    `json:"p"`
	DKLen    int    `json:"dk_len"`
}

// Scrypt derives a key and returns it in hex.
func Scrypt(params ScryptParams) (string, error) {
	password, err := base64.StdEncoding.DecodeString(params.Password)
	if err != nil {
		return "", fmt.Errorf("decode password: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(params.Salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	if params.LogN == 0 || params.LogN > 30 {
		return "", fmt.Errorf("scrypt log_n must be in 1..30, got %d", params.LogN)
	}

	key, err := scrypt.Key(password, salt, 1<<params.LogN, params.R, params.P, params.DKLen)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ChaCha20Params are the inputs of ChaCha20. Data is base64, key and nonce
// are hex (32 and 12 bytes).
type ChaCha20Params struct {
	Data  string `json:"data"`
	Key   string `json:"key"`
	Nonce string `json:"nonce"`
}

// ChaCha20 encrypts or decrypts data and returns base64.
func ChaCha20(params ChaCha20Params) (string, error) {
	data, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		return "", fmt.Errorf("decode data: %w", err)
	}
	key, err := hex.DecodeString(params.Key)
	if err != nil || len(key) != chacha20.KeySize {
		return "", fmt.Errorf("%w: chacha20 key must be %d hex bytes", ErrInvalidKey, chacha20.KeySize)
	}
	nonce, err := hex.DecodeString(params.Nonce)
	if err != nil || len(nonce) != chacha20.NonceSize {
		return "", fmt.Errorf("%w: chacha20 nonce must be %d hex bytes", ErrInvalidKey, chacha20.NonceSize)
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return "", fmt.Errorf("chacha20: %w", err)
	}
	out := make([]byte, len(data))
	cipher.XORKeyStream(out, data)

	return base64.StdEncoding.EncodeToString(out), nil
}

// RandomBytes returns length random bytes in base64.
func RandomBytes(length uint32) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random bytes: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
