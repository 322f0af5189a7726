package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// Verification failure reasons. Handlers must not distinguish these to
// clients; they exist for logging only.
var (
	ErrMalformed = errors.New("token: malformed envelope")
	ErrExpired   = errors.New("token: expired")
	ErrTampered  = errors.New("token: signature mismatch")
)

// Identity is the verified subject carried by a valid token.
type Identity struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}

type payload struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"`
}

type envelope struct {
	Payload   payload `json:"payload"`
	Signature string  `json:"signature"`
}

// Authenticator issues and verifies stateless bearer tokens. The token
// is a base64 JSON envelope whose signature is a deterministic digest
// of the serialized payload concatenated with the secret. Same payload
// and secret always produce the same token; replay within the validity
// window is possible by construction.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator builds an Authenticator with the given signing
// secret and token lifetime.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Issue creates a signed token for the given identity.
func (a *Authenticator) Issue(userID int64, email string) (string, error) {
	p := payload{
		UserID: userID,
		Email:  email,
		Exp:    a.now().Add(a.ttl).Unix(),
	}

	serialized, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	env := envelope{
		Payload:   p,
		Signature: a.sign(serialized),
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Verify decodes and validates a token, returning the embedded
// identity. Expiry is checked before the signature so a leaked expired
// token reveals nothing about signature validity.
func (a *Authenticator) Verify(token string) (Identity, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Identity{}, ErrMalformed
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Identity{}, ErrMalformed
	}
	if env.Signature == "" || env.Payload.Email == "" {
		return Identity{}, ErrMalformed
	}

	if env.Payload.Exp < a.now().Unix() {
		return Identity{}, ErrExpired
	}

	serialized, err := json.Marshal(env.Payload)
	if err != nil {
		return Identity{}, ErrMalformed
	}
	expected := a.sign(serialized)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(env.Signature)) != 1 {
		return Identity{}, ErrTampered
	}

	return Identity{UserID: env.Payload.UserID, Email: env.Payload.Email}, nil
}

func (a *Authenticator) sign(serializedPayload []byte) string {
	digest := sha256.Sum256(append(serializedPayload, a.secret...))
	return hex.EncodeToString(digest[:])
}
