package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is an operator allowed to log in.
type Account struct {
	ID           string
	Username     string
	Name         string
	Role         string
	PasswordHash string
}

// Accounts is a fixed set of accounts loaded from configuration.
// Terminal operators usually receive tokens minted by accessctl instead.
type Accounts struct {
	byUsername map[string]Account
	byID       map[string]Account
}

// dummyHash keeps unknown-user logins as slow as wrong-password ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("event-access"), bcrypt.MinCost)

func NewAccounts(accounts ...Account) *Accounts {
	a := &Accounts{byUsername: map[string]Account{}, byID: map[string]Account{}}
	for _, acc := range accounts {
		if acc.Username == "" || acc.PasswordHash == "" {
			continue
		}
		if acc.ID == "" {
			acc.ID = acc.Username
		}
		a.byUsername[strings.ToLower(acc.Username)] = acc
		a.byID[acc.ID] = acc
	}
	return a
}

// Authenticate checks a username/password pair against the bcrypt hash.
func (a *Accounts) Authenticate(username, password string) (Account, error) {
	acc, ok := a.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

func (a *Accounts) Lookup(id string) (Account, bool) {
	acc, ok := a.byID[id]
	return acc, ok
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
