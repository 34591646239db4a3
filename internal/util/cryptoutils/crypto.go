package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope carries one sealed secret. The hex encoding and field names
// match what the rest of the system stores in the user record.
type Envelope struct {
	IV            string `json:"iv"`
	EncryptedData string `json:"encryptedData"`
}

var ErrBadKey = errors.New("encryption key must be 32 hex-encoded bytes")

// SealSecret encrypts plaintext with AES-256-GCM under the hex-encoded key
// and returns the serialized envelope for storage.
func SealSecret(plaintext, hexKey string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	env := Envelope{
		IV:            hex.EncodeToString(nonce),
		EncryptedData: hex.EncodeToString(sealed),
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// OpenSecret reverses SealSecret.
func OpenSecret(envelope, hexKey string) (string, error) {
	gcm, err := newGCM(hexKey)
	if err != nil {
		return "", err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(envelope), &env); err != nil {
		return "", fmt.Errorf("malformed secret envelope: %w", err)
	}

	nonce, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", fmt.Errorf("malformed secret envelope: %w", err)
	}
	sealed, err := hex.DecodeString(env.EncryptedData)
	if err != nil {
		return "", fmt.Errorf("malformed secret envelope: %w", err)
	}

	// gcm.Open panics on a wrong-sized nonce, so reject it here.
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("malformed secret envelope: wrong nonce length")
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(hexKey string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != 32 {
		return nil, ErrBadKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateRandomString generates a random hex string of the given byte length
func GenerateRandomString(length int) (string, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", randomBytes), nil
}
