// Package imagestore holds materialized images produced by generation tasks.
// A task only counts as successful once its image has been written here and
// an addressable Ref exists; exports read the bytes back through the same
// interface.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrImageNotFound is returned when no image exists under the requested key.
var ErrImageNotFound = errors.New("image not found")

// Ref addresses a stored image.
type Ref struct {
	Key      string `json:"key"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Store persists image bytes under caller-chosen keys.
type Store interface {
	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte, mimeType string) (Ref, error)

	// Get returns the bytes stored under key, or ErrImageNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// DeletePrefix removes every image whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Durable reports whether images outlive the process.
	Durable() bool
}

// Key returns the storage key for a session's prompt result.
func Key(sessionID uuid.UUID, promptIndex int) string {
	return fmt.Sprintf("%s/%05d", sessionID, promptIndex)
}

// SessionPrefix returns the key prefix shared by all images of a session.
func SessionPrefix(sessionID uuid.UUID) string {
	return sessionID.String() + "/"
}

type memoryImage struct {
	data     []byte
	mimeType string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	images map[string]memoryImage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]memoryImage)}
}

// Put implements Store
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, mimeType string) (Ref, error) {
	if key == "" {
		return Ref{}, errors.New("image key cannot be empty")
	}
	if len(data) == 0 {
		return Ref{}, errors.New("image data cannot be empty")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.images[key] = memoryImage{data: buf, mimeType: mimeType}
	s.mu.Unlock()

	return Ref{Key: key, MIMEType: mimeType, Size: int64(len(buf))}, nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	img, ok := s.images[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, key)
	}
	return img.data, nil
}

// DeletePrefix implements Store
func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.images {
		if strings.HasPrefix(key, prefix) {
			delete(s.images, key)
		}
	}
	return nil
}

// Durable implements Store
func (s *MemoryStore) Durable() bool {
	return false
}

// Len returns the number of stored images.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}
