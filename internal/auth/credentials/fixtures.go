package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownAccount     = errors.New("unknown account")
)

// Fixtures is an in-memory set of development accounts keyed by identifier.
type Fixtures struct {
	accounts map[string]Account
}

type fixtureJSON struct {
	Identifier   string `json:"identifier"`
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
}

// DefaultFixtures returns the single well-known test account
// 13800138000 / test.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(`[{"identifier":"13800138000","password":"test","id":"1","username":"test","role":"admin"}]`)
}

// ParseFixtures reads a JSON array of accounts. Each entry carries either a
// plaintext password (hashed on load) or a bcrypt password_hash.
func ParseFixtures(raw string) (*Fixtures, error) {
	var entries []fixtureJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parse fixture accounts: %w", err)
	}

	f := &Fixtures{accounts: make(map[string]Account, len(entries))}
	for i, e := range entries {
		if e.Identifier == "" {
			return nil, fmt.Errorf("fixture account %d: identifier is required", i)
		}
		hash, version := e.PasswordHash, HashVersionBcrypt
		if hash == "" {
			if e.Password == "" {
				return nil, fmt.Errorf("fixture account %s: password or password_hash is required", e.Identifier)
			}
			var err error
			if hash, version, err = HashPassword(e.Password); err != nil {
				return nil, fmt.Errorf("fixture account %s: %w", e.Identifier, err)
			}
		}
		f.accounts[e.Identifier] = Account{
			Identifier:   e.Identifier,
			PasswordHash: hash,
			HashVersion:  version,
			UserID:       e.ID,
			Username:     e.Username,
			Role:         e.Role,
		}
	}
	return f, nil
}

// Authenticate returns the fixture account for identifier when the password
// matches. ErrUnknownAccount means the identifier is not a fixture at all.
func (f *Fixtures) Authenticate(identifier, password string) (Account, error) {
	acct, ok := f.accounts[identifier]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	if err := VerifyPassword(acct.PasswordHash, password); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}
