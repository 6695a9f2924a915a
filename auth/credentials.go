package auth

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// Credentials is the credential and token collaborator. Implementations
// must answer promptly: when no token can be produced without a network
// refresh, ValidAccessToken reports false rather than blocking.
type Credentials interface {
	HasClientCredentials(ctx context.Context, id ServiceID) bool
	ValidAccessToken(ctx context.Context, id ServiceID, scopes []string) (token string, ok bool)
	RemoveCredentials(ctx context.Context, id ServiceID) error
}

// MemoryCredentials is an in-memory Credentials store. Tokens are kept as
// oauth2.Token values and expire according to Token.Valid.
type MemoryCredentials struct {
	mu      sync.RWMutex
	clients map[ServiceID]*oauth2.Config
	tokens  map[ServiceID]*oauth2.Token
}

var _ Credentials = (*MemoryCredentials)(nil)

// NewMemoryCredentials returns an empty store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{
		clients: make(map[ServiceID]*oauth2.Config),
		tokens:  make(map[ServiceID]*oauth2.Token),
	}
}

// SetClient stores the OAuth client configuration for a service.
func (m *MemoryCredentials) SetClient(id ServiceID, cfg *oauth2.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[id] = cfg
}

// SetToken stores the token for a service, replacing any previous one.
func (m *MemoryCredentials) SetToken(id ServiceID, tok *oauth2.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = tok
}

// Client returns the stored OAuth client configuration.
func (m *MemoryCredentials) Client(id ServiceID) (*oauth2.Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.clients[id]
	return cfg, ok
}

// HasClientCredentials reports whether a client id is stored for id.
func (m *MemoryCredentials) HasClientCredentials(_ context.Context, id ServiceID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.clients[id]
	return ok && cfg != nil && cfg.ClientID != ""
}

// ValidAccessToken returns the stored token when it is unexpired. Scopes
// are checked against the token's granted scope when the token records
// one.
func (m *MemoryCredentials) ValidAccessToken(_ context.Context, id ServiceID, scopes []string) (string, bool) {
	m.mu.RLock()
	tok := m.tokens[id]
	m.mu.RUnlock()

	if !tok.Valid() {
		return "", false
	}
	if !grantsScopes(tok, scopes) {
		return "", false
	}
	return tok.AccessToken, true
}

// RemoveCredentials forgets the client and token of id.
func (m *MemoryCredentials) RemoveCredentials(_ context.Context, id ServiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, id)
	delete(m.tokens, id)
	return nil
}

// grantsScopes checks the space-separated "scope" extra that OAuth token
// responses carry. Tokens without it are assumed to cover the request.
func grantsScopes(tok *oauth2.Token, want []string) bool {
	if len(want) == 0 {
		return true
	}
	granted, _ := tok.Extra("scope").(string)
	if granted == "" {
		return true
	}
	have := make(map[string]bool)
	for _, s := range splitScopes(granted) {
		have[s] = true
	}
	for _, s := range want {
		if !have[s] {
			return false
		}
	}
	return true
}

func splitScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
}

// CredentialsFromEnv seeds a store from pre-issued tokens in the
// environment, one per OAuth service under its TokenVariable. lookup is
// usually os.LookupEnv. Such tokens carry no expiry.
func CredentialsFromEnv(services []Service, lookup func(string) (string, bool)) *MemoryCredentials {
	m := NewMemoryCredentials()
	for _, svc := range services {
		if !svc.OAuth {
			continue
		}
		tok, ok := lookup(svc.TokenVariable())
		if !ok || strings.TrimSpace(tok) == "" {
			continue
		}
		m.SetClient(svc.ID, &oauth2.Config{ClientID: "env:" + svc.TokenVariable(), Scopes: svc.Scopes})
		m.SetToken(svc.ID, &oauth2.Token{AccessToken: strings.TrimSpace(tok)})
	}
	return m
}
