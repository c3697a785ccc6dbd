package state

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// EncryptionKeyEnvVar is the environment variable for the state encryption key.
	EncryptionKeyEnvVar = "LAMBDASYNC_STATE_ENCRYPTION_KEY"

	encryptedHeader = "# LAMBDASYNC_ENCRYPTED_STATE\n"
)

// ErrMissingKey is returned when encrypted state is read without a key.
var ErrMissingKey = errors.New("state file is encrypted but " + EncryptionKeyEnvVar + " is not set")

// EncryptState seals state content with AES-256-GCM using the key from the
// environment. Content is returned unchanged when no key is configured.
func EncryptState(content []byte) ([]byte, error) {
	gcm, err := stateCipher()
	if err != nil || gcm == nil {
		return content, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, content, nil)
	out := make([]byte, 0, len(encryptedHeader)+base64.StdEncoding.EncodedLen(len(sealed))+1)
	out = append(out, encryptedHeader...)
	out = base64.StdEncoding.AppendEncode(out, sealed)
	return append(out, '\n'), nil
}

// DecryptState opens encrypted state content. Plain content is returned as is.
func DecryptState(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	gcm, err := stateCipher()
	if err != nil {
		return nil, err
	}
	if gcm == nil {
		return nil, ErrMissingKey
	}

	encoded := bytes.TrimSpace(content[len(encryptedHeader):])
	sealed, err := base64.StdEncoding.AppendDecode(nil, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted state: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state (wrong key?): %w", err)
	}
	return plaintext, nil
}

// IsEncrypted checks if state content is encrypted.
func IsEncrypted(content []byte) bool {
	return bytes.HasPrefix(content, []byte(encryptedHeader))
}

// stateCipher returns the AEAD for the configured key, or nil if no key is set.
// The passphrase is stretched to 32 bytes with SHA-256.
func stateCipher() (cipher.AEAD, error) {
	passphrase := os.Getenv(EncryptionKeyEnvVar)
	if passphrase == "" {
		return nil, nil
	}
	key := sha256.Sum256([]byte(passphrase))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
