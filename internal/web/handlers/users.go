package handlers

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// UserStore authenticates dashboard users. Passwords are only kept as bcrypt hashes.
type UserStore struct {
	users map[string]storedUser
	dummy []byte // compared against for unknown usernames
}

type storedUser struct {
	username string
	name     string
	role     string
	hash     []byte
}

// NewUserStore hashes the configured passwords.
func NewUserStore(users []config.User) (*UserStore, error) {
	s := &UserStore{users: make(map[string]storedUser, len(users))}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password of %s: %w", u.Username, err)
		}
		s.users[u.Username] = storedUser{username: u.Username, name: u.Name, role: u.Role, hash: hash}
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("face-attendance"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing dummy password: %w", err)
	}
	s.dummy = dummy
	return s, nil
}

// Authenticate returns the user when the password matches.
func (s *UserStore) Authenticate(username, password string) (name, role string, ok bool) {
	u, found := s.users[username]
	hash := u.hash
	if !found {
		hash = s.dummy
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !found {
		return "", "", false
	}
	return u.name, u.role, true
}
