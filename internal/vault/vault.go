// Package vault encrypts provider tokens before they are persisted.
//
// The on-disk format is hex(iv) || hex(ciphertext) with AES-256-CBC and a
// random 16-byte IV per record.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize = 32
	ivSize  = aes.BlockSize
)

// pbkdf2 parameters for passphrase-derived keys. The salt is a fixed
// application constant so derivation is stable across restarts.
const (
	deriveIterations = 210_000
	deriveSalt       = "soundshift.vault.v1"
)

// Keyring holds the ordered set of encryption keys, newest first. Records
// are encrypted with the current key; decryption tries the current key then
// falls back to previous keys, which allows rotation without re-encrypting
// every record up front.
type Keyring struct {
	keys [][]byte
}

// New builds a Keyring from hex-encoded 32-byte keys, newest first.
func New(hexKeys []string) (*Keyring, error) {
	if len(hexKeys) == 0 {
		return nil, fmt.Errorf("no encryption keys configured")
	}

	keys := make([][]byte, 0, len(hexKeys))
	for i, hk := range hexKeys {
		key, err := hex.DecodeString(hk)
		if err != nil {
			return nil, fmt.Errorf("key %d is not valid hex: %w", i, err)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("key %d has %d bytes, want %d", i, len(key), keySize)
		}
		keys = append(keys, key)
	}

	return &Keyring{keys: keys}, nil
}

// NewFromPassphrase derives a single key from a passphrase with PBKDF2.
func NewFromPassphrase(passphrase string) (*Keyring, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("empty passphrase")
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(deriveSalt), deriveIterations, keySize, sha256.New)
	return &Keyring{keys: [][]byte{key}}, nil
}

// CurrentKeyID returns the index of the encryption key, always 0 for the
// newest key. Stored beside each record for observability.
func (k *Keyring) CurrentKeyID() int { return 0 }

// Encrypt encrypts plaintext with the current key and returns
// hex(iv) || hex(ciphertext).
func (k *Keyring) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(k.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + hex.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a hex(iv) || hex(ciphertext) record, trying the current
// key first and falling back to previous keys.
func (k *Keyring) Decrypt(encoded string) (string, error) {
	if len(encoded) < ivSize*2 {
		return "", fmt.Errorf("ciphertext too short")
	}

	iv, err := hex.DecodeString(encoded[:ivSize*2])
	if err != nil {
		return "", fmt.Errorf("invalid IV encoding: %w", err)
	}
	ciphertext, err := hex.DecodeString(encoded[ivSize*2:])
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext is not block-aligned")
	}

	var lastErr error
	for _, key := range k.keys {
		block, err := aes.NewCipher(key)
		if err != nil {
			return "", fmt.Errorf("failed to init cipher: %w", err)
		}

		plain := make([]byte, len(ciphertext))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

		unpadded, err := unpad(plain)
		if err != nil {
			// Wrong key almost always shows up as invalid padding.
			lastErr = err
			continue
		}
		return string(unpadded), nil
	}

	return "", fmt.Errorf("no key could decrypt record: %w", lastErr)
}

// pad applies PKCS#7 padding.
func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

// unpad strips and validates PKCS#7 padding.
func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
