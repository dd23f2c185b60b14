// Package auth implements the default token collaborator: opaque bearer
// tokens of the form base64url(claims-json) + "." + base64url(hmac-sha256).
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/domain"
)

const maxTokenLen = 8 * 1024

type claims struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	Country string `json:"country,omitempty"`
	CC      string `json:"cc,omitempty"`
	Anon    bool   `json:"anon,omitempty"`
	Exp     int64  `json:"exp"`
}

type TokenValidator struct {
	secret []byte
	clock  clock.Clock
}

func NewTokenValidator(secret string, clk clock.Clock) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), clock: clk}
}

// Validate checks the signature and expiry and returns the embedded
// identity. Re-validating a refreshed token for the same subject is the
// supported refresh path.
func (v *TokenValidator) Validate(_ context.Context, token string) (domain.Identity, error) {
	if token == "" || len(token) > maxTokenLen {
		return domain.Identity{}, core.ErrInvalidToken
	}
	payloadB64, sigB64, ok := strings.Cut(token, ".")
	if !ok {
		return domain.Identity{}, core.ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return domain.Identity{}, core.ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return domain.Identity{}, core.ErrInvalidToken
	}
	if !hmac.Equal(sig, v.sign(payload)) {
		return domain.Identity{}, core.ErrInvalidToken
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return domain.Identity{}, core.ErrInvalidToken
	}
	if c.Sub == "" || len(c.Sub) > domain.MaxUserIDLen {
		return domain.Identity{}, core.ErrInvalidToken
	}
	if c.Exp <= v.clock.Now().Unix() {
		return domain.Identity{}, core.ErrTokenExpired
	}

	ident := domain.Identity{
		ID:          domain.UserID(c.Sub),
		Username:    c.Name,
		Avatar:      c.Avatar,
		Country:     c.Country,
		CountryCode: c.CC,
		Anonymous:   c.Anon,
	}
	if err := ident.Validate(); err != nil {
		return domain.Identity{}, core.ErrInvalidToken
	}
	return ident, nil
}

// Mint issues a token for the identity, used by the dev token endpoint
// and tests. Production tokens come from the external CRUD API signed
// with the same shared secret.
func (v *TokenValidator) Mint(ident domain.Identity, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(claims{
		Sub:     string(ident.ID),
		Name:    ident.Username,
		Avatar:  ident.Avatar,
		Country: ident.Country,
		CC:      ident.CountryCode,
		Anon:    ident.Anonymous,
		Exp:     v.clock.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(v.sign(payload)), nil
}

func (v *TokenValidator) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
