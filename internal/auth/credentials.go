package auth

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Account is a staff login read from configuration.
type Account struct {
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	Role         Role   `mapstructure:"role"`
	PasswordHash string `mapstructure:"password_hash"`
}

type Authenticator struct {
	accounts map[string]*Account
	dummy    []byte
}

func NewAuthenticator(accounts []Account) (*Authenticator, error) {
	a := &Authenticator{accounts: make(map[string]*Account, len(accounts))}
	dummyCost := 0

	for i := range accounts {
		acc := accounts[i]
		if _, err := ParseRole(string(acc.Role)); err != nil {
			return nil, errors.Wrapf(err, "account %s", acc.Email)
		}
		cost, err := bcrypt.Cost([]byte(acc.PasswordHash))
		if err != nil {
			return nil, errors.Wrapf(err, "account %s: bad password hash", acc.Email)
		}
		dummyCost = max(dummyCost, cost)
		key := normalizeEmail(acc.Email)
		if _, ok := a.accounts[key]; ok {
			return nil, errors.Errorf("duplicate account %s", acc.Email)
		}
		a.accounts[key] = &acc
	}

	// The dummy hash costs as much as the most expensive real one.
	if dummyCost == 0 {
		dummyCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("people-drive"), dummyCost)
	if err != nil {
		return nil, errors.Wrap(err, "prepare dummy hash")
	}
	a.dummy = dummy

	return a, nil
}

// Authenticate checks password against the stored hash for email. Unknown
// emails still pay for one bcrypt comparison.
func (a *Authenticator) Authenticate(email, password string) (*Account, error) {
	acc, ok := a.accounts[normalizeEmail(email)]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	out := *acc
	out.PasswordHash = ""
	return &out, nil
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
