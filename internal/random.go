package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SessionID identifies one login session on the API servers.
type SessionID [16]byte

const (
	refreshTokenRawSize = 48
	refreshSecretSize   = 32
)

// RefreshSecret is the random half of a refresh token. Servers keep only its hash.
type RefreshSecret [refreshSecretSize]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

func NewRefreshSecret() (RefreshSecret, error) {
	var secret RefreshSecret
	_, err := rand.Read(secret[:])
	return secret, err
}

func (s RefreshSecret) Hash() [32]byte {
	return sha256.Sum256(s[:])
}

// EncodeRefreshToken packs session id and secret into one opaque token.
func EncodeRefreshToken(sid SessionID, secret RefreshSecret) string {
	var raw [refreshTokenRawSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeRefreshToken splits a token produced by EncodeRefreshToken.
func DecodeRefreshToken(token string) (SessionID, RefreshSecret, error) {
	var (
		sid    SessionID
		secret RefreshSecret
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return sid, secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return sid, secret, errors.New("invalid refresh token size")
	}

	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])
	return sid, secret, nil
}

// NewOpaqueToken returns prefix followed by 24 random bytes, base64url encoded.
func NewOpaqueToken(prefix string) (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b[:]), nil
}
