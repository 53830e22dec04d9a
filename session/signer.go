package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs session tokens with HMAC-SHA256. The first key signs; every key
// verifies, so keys can be rotated by prepending a new one.
type Signer struct {
	keys [][]byte
}

func NewSigner(keys []string) (*Signer, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one session key is required")
	}
	s := &Signer{}
	for _, k := range keys {
		if k == "" {
			return nil, errors.New("session keys cannot be empty")
		}
		s.keys = append(s.keys, []byte(k))
	}
	return s, nil
}

func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies raw against each key in turn and fills claims on success.
func (s *Signer) Parse(raw string, claims jwt.Claims, options ...jwt.ParserOption) error {
	options = append(options, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parser := jwt.NewParser(options...)
	var lastErr error
	for _, key := range s.keys {
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	return lastErr
}
