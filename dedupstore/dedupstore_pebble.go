package dedupstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/e-dreyer/discussbot/post"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps records in a local pebble database directory. Suitable for
// single-process deployments without a redis server.
type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	if path == "" {
		return nil, fmt.Errorf("pebble store requires a directory path")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := checkNamespace(ns); err != nil {
		return false, err
	}
	_, closer, err := s.db.Get([]byte(backendKey(ns, key)))
	if closer != nil {
		defer closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) Get(ctx context.Context, ns Namespace, key string) (*post.Post, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}
	val, closer, err := s.db.Get([]byte(backendKey(ns, key)))
	if closer != nil {
		defer closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// val is only valid until closer is closed; Unmarshal copies what it needs
	var p post.Post
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", backendKey(ns, key), err)
	}
	return &p, nil
}

func (s *PebbleStore) Set(ctx context.Context, ns Namespace, key string, p *post.Post) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(backendKey(ns, key)), b, pebble.Sync)
}

func (s *PebbleStore) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := checkNamespace(ns); err != nil {
		return err
	}
	return s.db.Delete([]byte(backendKey(ns, key)), pebble.Sync)
}

// Scan iterates the "<namespace>:" key range. The iterator reads a consistent
// view, so deleting keys while scanning is safe.
func (s *PebbleStore) Scan(ctx context.Context, ns Namespace) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := checkNamespace(ns); err != nil {
			yield("", err)
			return
		}
		// ';' sorts immediately after ':'
		lower := []byte(string(ns) + ":")
		upper := []byte(string(ns) + ";")
		it, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
			LowerBound: lower,
			UpperBound: upper,
		})
		if err != nil {
			yield("", fmt.Errorf("pebble iter start: %w", err))
			return
		}
		defer it.Close()
		for it.First(); it.Valid(); it.Next() {
			_, key, err := parseBackendKey(string(it.Key()))
			if err != nil {
				continue
			}
			if !yield(key, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield("", err)
		}
	}
}

func (s *PebbleStore) Ping(ctx context.Context) error {
	_, closer, err := s.db.Get([]byte("ping"))
	if closer != nil {
		closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
