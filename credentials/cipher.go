package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Cipher encrypts tokens at rest with NaCl secretbox. A nil *Cipher stores plaintext.
type Cipher struct {
	key [32]byte
}

// NewCipher derives a secretbox key from secret. An empty secret returns nil.
func NewCipher(secret string) *Cipher {
	if secret == "" {
		return nil
	}
	return &Cipher{key: sha256.Sum256([]byte(secret))}
}

func (c *Cipher) Seal(plaintext string) (string, error) {
	if c == nil {
		return plaintext, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &c.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Open(ciphertext string) (string, error) {
	if c == nil {
		return ciphertext, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding sealed token: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.New("sealed token too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", errors.New("sealed token failed authentication")
	}
	return string(plain), nil
}
