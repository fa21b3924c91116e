package persistence

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

// Encrypted snapshots carry this prefix so load can tell the formats
// apart without a passphrase
var encMagic = []byte("GDBENC1")

const saltSize = 16

// deriveKey stretches a passphrase into an AES-256 key
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// encrypt seals data under a passphrase-derived key. Layout:
// magic || salt || nonce || ciphertext.
func encrypt(data []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(encMagic)+saltSize+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, encMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// decrypt opens a sealed snapshot
func decrypt(data []byte, passphrase string) ([]byte, error) {
	data = data[len(encMagic):]
	if len(data) < saltSize {
		return nil, errors.New("ciphertext too short")
	}
	salt, data := data[:saltSize], data[saltSize:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func isEncrypted(data []byte) bool {
	if len(data) < len(encMagic) {
		return false
	}
	for i, b := range encMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}
