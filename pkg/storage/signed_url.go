package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidLink covers malformed or tampered download tokens.
	ErrInvalidLink = errors.New("invalid download link")
	// ErrLinkExpired is returned for well-formed tokens past their expiry.
	ErrLinkExpired = errors.New("download link expired")
)

// Grant is what a verified download token authorises.
type Grant struct {
	OwnerID   string
	Name      string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-signed download tokens for stored files.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner builds a signer; ttl defaults to a day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (s *SignedURLSigner) TTL() time.Duration { return s.ttl }

// Sign issues a token for ownerID to fetch the stored file name.
// Token layout: owner.expiry.base64(name).hexmac
func (s *SignedURLSigner) Sign(ownerID, name string) (string, time.Time, error) {
	if ownerID == "" || name == "" {
		return "", time.Time{}, fmt.Errorf("owner and file name required")
	}
	if strings.Contains(ownerID, ".") {
		return "", time.Time{}, fmt.Errorf("owner id %q must not contain '.'", ownerID)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(name))
	return strings.Join([]string{ownerID, ts, encoded, s.mac(ownerID, ts, encoded)}, "."), expiresAt, nil
}

// Verify checks a token's signature and, unless allowExpired, its expiry.
func (s *SignedURLSigner) Verify(token string, allowExpired bool) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, ErrInvalidLink
	}
	ownerID, ts, encoded, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.mac(ownerID, ts, encoded)), []byte(signature)) {
		return Grant{}, ErrInvalidLink
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Grant{}, ErrInvalidLink
	}
	name, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Grant{}, ErrInvalidLink
	}

	grant := Grant{OwnerID: ownerID, Name: string(name), ExpiresAt: time.Unix(unix, 0)}
	if !allowExpired && s.now().After(grant.ExpiresAt) {
		return grant, ErrLinkExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) mac(ownerID, ts, encoded string) string {
	m := hmac.New(sha256.New, s.secret)
	_, _ = m.Write([]byte(ownerID + "|" + ts + "|" + encoded))
	return hex.EncodeToString(m.Sum(nil))
}
