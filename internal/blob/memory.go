package blob

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

// MemoryStore keeps documents in process. Used by tests and local runs
// without a bucket.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object), now: time.Now}
}

func (m *MemoryStore) Store(_ context.Context, obj Object) (string, error) {
	key := objectKey("mem", obj)
	obj.Data = append([]byte(nil), obj.Data...)
	m.mu.Lock()
	m.objects[key] = obj
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryStore) Fetch(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	obj, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, common.NewAppError("NOT_FOUND", "document "+ref, common.ErrNotFound)
	}
	return append([]byte(nil), obj.Data...), nil
}

func (m *MemoryStore) URLFor(_ context.Context, ref string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[ref]
	m.mu.RUnlock()
	if !ok {
		return "", common.NewAppError("NOT_FOUND", "document "+ref, common.ErrNotFound)
	}
	exp := m.now().Add(ttl).Unix()
	return fmt.Sprintf("memory:///%s?expires=%d", url.PathEscape(ref), exp), nil
}

func (m *MemoryStore) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	delete(m.objects, ref)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
