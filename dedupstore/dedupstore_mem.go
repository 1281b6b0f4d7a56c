package dedupstore

import (
	"context"
	"encoding/json"
	"iter"
	"sync"

	"github.com/e-dreyer/discussbot/post"
)

// MemStore keeps serialized records in a map. Values are stored as JSON so
// that callers can not mutate stored records through returned pointers.
type MemStore struct {
	lk   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
	}
}

func (s *MemStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := checkNamespace(ns); err != nil {
		return false, err
	}
	s.lk.RLock()
	defer s.lk.RUnlock()
	_, ok := s.data[backendKey(ns, key)]
	return ok, nil
}

func (s *MemStore) Get(ctx context.Context, ns Namespace, key string) (*post.Post, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	s.lk.RLock()
	b, ok := s.data[backendKey(ns, key)]
	s.lk.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var p post.Post
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MemStore) Set(ctx context.Context, ns Namespace, key string, p *post.Post) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[backendKey(ns, key)] = b
	return nil
}

func (s *MemStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.data, backendKey(ns, key))
	return nil
}

// Scan iterates over a snapshot of the keys taken when iteration starts.
func (s *MemStore) Scan(ctx context.Context, ns Namespace) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := checkNamespace(ns); err != nil {
			yield("", err)
			return
		}
		s.lk.RLock()
		keys := []string{}
		for raw := range s.data {
			kns, key, err := parseBackendKey(raw)
			if err == nil && kns == ns {
				keys = append(keys, key)
			}
		}
		s.lk.RUnlock()
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (s *MemStore) Close() error {
	return nil
}

func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}
