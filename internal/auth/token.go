// Package auth issues and validates the per-process connect token: an
// HMAC-SHA256 MAC over a player id, checked by the connection handler
// during handshake (spec §4.6 step 2).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/udisondev/w3ctl/internal/model"
)

// ErrInvalidToken is returned by Verify for a malformed or forged token.
var ErrInvalidToken = errors.New("auth: invalid token")

// tokenLen is 4 bytes of player id plus a 32-byte HMAC-SHA256 tag.
const tokenLen = 4 + sha256.Size

// Signer issues and verifies connect tokens against a single HMAC key, held
// only for the lifetime of the process (spec §6 "per-process secret").
type Signer struct {
	key []byte
}

// NewSigner builds a Signer from a raw key. The key is typically decoded
// from the HMAC_SECRET_BASE64 environment variable at startup.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// NewSignerFromBase64 decodes key (standard base64) and builds a Signer.
func NewSignerFromBase64(encoded string) (*Signer, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("auth: decoding HMAC_SECRET_BASE64: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("auth: HMAC_SECRET_BASE64 decodes to an empty key")
	}
	return NewSigner(key), nil
}

// Issue mints a connect token for playerID. Tokens do not expire; a reissue
// simply happens on each login request from whatever component owns player
// accounts (out of this core's scope, per spec §1).
func (s *Signer) Issue(playerID model.PlayerID) []byte {
	tok := make([]byte, tokenLen)
	binary.BigEndian.PutUint32(tok[:4], uint32(playerID))
	mac := s.sign(tok[:4])
	copy(tok[4:], mac)
	return tok
}

// Verify checks token's MAC and returns the player id it was issued for.
func (s *Signer) Verify(token []byte) (model.PlayerID, error) {
	if len(token) != tokenLen {
		return 0, ErrInvalidToken
	}
	want := s.sign(token[:4])
	if !hmac.Equal(want, token[4:]) {
		return 0, ErrInvalidToken
	}
	return model.PlayerID(binary.BigEndian.Uint32(token[:4])), nil
}

func (s *Signer) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return mac.Sum(nil)
}
