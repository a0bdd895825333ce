package hostfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 << 10 // 64KB
	DefaultKVMaxEntries   = 10000
)

type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   DefaultKVMaxKeySize,
		MaxValueSize: DefaultKVMaxValueSize,
		MaxEntries:   DefaultKVMaxEntries,
	}
}

// KVBackend persists encoded KV entries.
type KVBackend interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// KV is a key-value store shared by every environment of an executor.
// Values are stored JSON-encoded.
type KV struct {
	cfg     KVConfig
	backend KVBackend
	mu      sync.Mutex
}

// NewKV creates an in-memory store.
func NewKV(cfg KVConfig) *KV {
	return NewKVWithBackend(cfg, newMemoryBackend())
}

// NewKVWithBackend creates a store on top of backend.
func NewKVWithBackend(cfg KVConfig, backend KVBackend) *KV {
	return &KV{cfg: cfg, backend: backend}
}

func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, errors.New("key required")
	}

	raw, exists, err := s.backend.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return args["default"], nil
	}

	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, errors.New("key required")
	}
	val, ok := args["value"]
	if !ok {
		return nil, errors.New("value required")
	}

	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return nil, fmt.Errorf("key exceeds max size of %d bytes", s.cfg.MaxKeySize)
	}

	raw, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	if s.cfg.MaxValueSize > 0 && len(raw) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size of %d bytes", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxEntries > 0 {
		_, exists, err := s.backend.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			keys, err := s.backend.Keys(ctx)
			if err != nil {
				return nil, err
			}
			if len(keys) >= s.cfg.MaxEntries {
				return nil, fmt.Errorf("store full: max %d entries", s.cfg.MaxEntries)
			}
		}
	}

	if err := s.backend.Store(ctx, key, raw); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, ok := args["key"].(string)
	if !ok {
		return nil, errors.New("key required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Remove(ctx, key); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Register adds kv_get, kv_set, kv_delete and kv_keys to r.
func (s *KV) Register(r *Registry) {
	r.Register("kv_get", s.Get, "key", "default")
	r.Register("kv_set", s.Set, "key", "value")
	r.Register("kv_delete", s.Delete, "key")
	r.Register("kv_keys", s.Keys)
}

type memoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string][]byte)}
}

func (m *memoryBackend) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryBackend) Store(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryBackend) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}
