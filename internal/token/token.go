package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrEmptySecret = errors.New("completion token secret is empty")

// Signer derives and checks cart completion tokens: hex HMAC-SHA256 of the
// cart id under a shared secret. Tokens are recomputed, never stored.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

func (s *Signer) Sign(cartID string) string {
	return hex.EncodeToString(s.mac(cartID))
}

// Verify reports whether token was issued for cartID. The comparison is
// constant time.
func (s *Signer) Verify(cartID, token string) bool {
	got, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(cartID))
}

func (s *Signer) mac(cartID string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(cartID))
	return h.Sum(nil)
}
