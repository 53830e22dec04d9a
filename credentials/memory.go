package credentials

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/jrsteele09/twill/internal/errors"
)

// MemoryStore is a thread-safe in-process Store keyed by LMS user id.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		creds: make(map[string]*Credential),
	}
}

func (s *MemoryStore) KeyedBy() Keying {
	return KeyedByUser
}

// Load returns a copy of the stored credential
func (s *MemoryStore) Load(_ context.Context, identity string) (*Credential, error) {
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, exists := s.creds[identity]
	if !exists {
		return nil, apperrors.ErrCredentialNotFound
	}
	return clone(cred), nil
}

// Save stores a copy of cred, replacing any previous credential
func (s *MemoryStore) Save(_ context.Context, identity string, cred *Credential) error {
	if identity == "" {
		return errors.New("identity cannot be empty")
	}
	if cred == nil {
		return errors.New("credential cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds[identity] = clone(cred)
	return nil
}
