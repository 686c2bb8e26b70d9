package database

import (
	"context"
	"sync"

	"ronpa-server/shared/interfaces"
	"ronpa-server/shared/models"
)

var _ interfaces.KVStore = (*MemoryKVStore)(nil)

// MemoryKVStore хранит значения в памяти процесса. Используется в тестах и
// как бэкенд "memory" (без сохранения между запусками).
type MemoryKVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{data: make(map[string][]byte)}
}

func (s *MemoryKVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryKVStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}
