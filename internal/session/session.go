// Package session seals and opens the auth-session cookie: an opaque
// byte string carrying a CBOR-encoded claim set, encrypted with
// AES-256-GCM under a key derived from a configured secret.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/oxidizebot/oxidizebot-go/internal/scopes"
)

const (
	keyLen      = 32 // AES-256
	pbkdf2Iters = 100
	nonceLen    = 12 // AES-GCM standard nonce size
)

// Session is the claim set carried inside the sealed cookie.
type Session struct {
	ID        string        `cbor:"id"`
	User      string        `cbor:"user"`
	Roles     []scopes.Role `cbor:"roles"`
	IssuedAt  time.Time     `cbor:"issuedAt"`
	ExpiresAt time.Time     `cbor:"expiresAt"`
}

// New builds a Session for user with the given roles, valid for ttl.
func New(user string, roles []scopes.Role, ttl time.Duration) Session {
	now := time.Now()
	return Session{
		ID:        uuid.NewString(),
		User:      user,
		Roles:     roles,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether s has passed its expiry.
func (s Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Sealer encrypts and decrypts sealed sessions under a single derived
// key. Build one per configured secret and reuse it.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives an AES-256 key from secret via PBKDF2-HMAC-SHA256
// (100 iterations, empty salt, matching the wire format every client
// must agree on) and builds the AEAD.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("session: secret must not be empty")
	}
	key := pbkdf2.Key([]byte(secret), nil, pbkdf2Iters, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("session: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("session: new gcm: %w", err)
	}
	if gcm.NonceSize() != nonceLen {
		return nil, fmt.Errorf("session: unexpected nonce size %d", gcm.NonceSize())
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encodes s as CBOR, encrypts it, and returns
// base64(nonce||ciphertext||tag), ready to use as a cookie value.
func (s *Sealer) Seal(sess Session) (string, error) {
	plaintext, err := cbor.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("session: marshal: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session: nonce: %w", err)
	}

	sealed := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. It returns an error for malformed input, a
// truncated payload, or any tampered byte (the AEAD tag fails to
// verify).
func (s *Sealer) Open(cookie string) (Session, error) {
	raw, err := base64.StdEncoding.DecodeString(cookie)
	if err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	if len(raw) < nonceLen {
		return Session{}, fmt.Errorf("session: payload too short")
	}

	nonce, ciphertext := raw[:nonceLen], raw[nonceLen:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Session{}, fmt.Errorf("session: open: %w", err)
	}

	var sess Session
	if err := cbor.Unmarshal(plaintext, &sess); err != nil {
		return Session{}, fmt.Errorf("session: unmarshal: %w", err)
	}
	return sess, nil
}
