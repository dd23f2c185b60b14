// Package domain contains entities without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// Identity is the stable user identity extracted from a validated token.
// Immutable for the lifetime of a connection; replaced wholesale on token
// refresh.
type Identity struct {
	ID          UserID `json:"id"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Anonymous   bool   `json:"anonymous"`
}

func (id Identity) Validate() error {
	if len(id.Username) == 0 {
		return ErrUsernameEmpty
	}
	if len(id.Username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
