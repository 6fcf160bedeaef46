package auth

import (
	"github.com/atinyakov/sockcs/internal/client/storage"
)

// TokensKey is the local storage key holding the token pair.
const TokensKey = "auth.tokens"

// Tokens is the access/refresh credential pair issued by the backend.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty reports whether neither token is present.
func (t Tokens) Empty() bool { return t.Access == "" && t.Refresh == "" }

// TokenStore persists at most one token pair in local storage.
type TokenStore struct {
	ls *storage.LocalStorage
}

// NewTokenStore binds the store to ls. ls should already be loaded.
func NewTokenStore(ls *storage.LocalStorage) *TokenStore {
	return &TokenStore{ls: ls}
}

// Get returns the stored pair; the zero value when none is stored.
func (s *TokenStore) Get() Tokens {
	var t Tokens
	if !s.ls.GetInto(TokensKey, &t) {
		return Tokens{}
	}
	return t
}

// Set replaces the stored pair and flushes it to disk.
func (s *TokenStore) Set(t Tokens) error {
	if t.Empty() {
		return s.Clear()
	}
	if err := s.ls.Set(TokensKey, t); err != nil {
		return err
	}
	return s.ls.Save()
}

// Clear deletes the pair and flushes the removal to disk.
func (s *TokenStore) Clear() error {
	s.ls.Remove(TokensKey)
	return s.ls.Save()
}
