package model

import (
	"strings"
	"time"
)

// AccountKind tells how a user can sign in.
type AccountKind string

const (
	// AccountKindLocal users hold a password and no linked provider.
	AccountKindLocal AccountKind = "local"
	// AccountKindFederated users sign in through a provider only.
	AccountKindFederated AccountKind = "federated"
	// AccountKindHybrid users hold a password and at least one provider.
	AccountKindHybrid AccountKind = "hybrid"
)

// Credential is a salted password hash. Hash and salt are always set together.
type Credential struct {
	Hash string
	Salt string
}

type User struct {
	ID            string
	Email         string
	Nickname      string
	Credential    *Credential // nil for OAuth-only accounts
	ActivationKey *string
	// When ActivationKey was issued. Set and cleared together with the key.
	ActivationIssuedAt *time.Time
	ActivatedAt        *time.Time
	CreatedAt          time.Time

	// Provider-keyed view of linked identities. Only filled by reads that ask for it.
	OAuths map[string]*OAuth
}

func (u *User) IsActivated() bool {
	return u.ActivatedAt != nil
}

func (u *User) CanSendVerification() bool {
	return !u.IsActivated() && u.ActivationKey != nil
}

func (u *User) HasCredential() bool {
	return u.Credential != nil && u.Credential.Hash != ""
}

func (u *User) Kind() AccountKind {
	switch {
	case u.HasCredential() && len(u.OAuths) > 0:
		return AccountKindHybrid
	case u.HasCredential():
		return AccountKindLocal
	default:
		return AccountKindFederated
	}
}

// OAuth returns the identity linked for provider, or nil.
func (u *User) OAuth(provider string) *OAuth {
	if u.OAuths == nil {
		return nil
	}
	return u.OAuths[provider]
}

// DefaultNickname is the local part of an email address.
func DefaultNickname(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return email
	}
	return local
}

// UserSignins is a user with sign-in figures derived from its sessions.
type UserSignins struct {
	User
	SigninCount  int
	LastSigninAt time.Time
}
