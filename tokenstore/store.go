// Package tokenstore persists the access/refresh token pair used by the API client.
//
// Every implementation is safe for concurrent use. An empty field in Credentials means the
// token is absent; Load never reports a missing entry as an error.
package tokenstore

import (
	"context"
	"sync"
)

// Credentials is the token pair owned by a Store.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether neither token is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store is the persistence contract the client depends on.
type Store interface {
	// Load returns the current pair. A store with nothing saved returns zero Credentials.
	Load(ctx context.Context) (Credentials, error)
	// Save replaces both tokens atomically.
	Save(ctx context.Context, creds Credentials) error
	// Clear removes both tokens.
	Clear(ctx context.Context) error
}

// Memory keeps tokens in process memory. The zero value is ready to use.
type Memory struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewMemory returns a Memory store seeded with creds.
func NewMemory(creds Credentials) *Memory {
	return &Memory{creds: creds}
}

func (m *Memory) Load(_ context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, nil
}

func (m *Memory) Save(_ context.Context, creds Credentials) error {
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.creds = Credentials{}
	m.mu.Unlock()
	return nil
}
