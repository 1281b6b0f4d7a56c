// Two-namespace persistent store of discovered posts, keyed by content key.
//
// A post is first written to the Pending namespace when discovered, and moved
// to Confirmed once it has been published. Every operation touches a single
// key; implementations are thin clients over a durable key-value backend
// (redis or pebble), with an in-process implementation for tests and dry runs.
//
// Backend keys are "<namespace>:<contentKey>" and values are JSON encoded
// post.Post records.
package dedupstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/e-dreyer/discussbot/post"
)

type Namespace string

const (
	Pending   Namespace = "pending-python-discuss-post"
	Confirmed Namespace = "python-discuss-post"
)

var ErrNotFound = errors.New("dedupstore: record not found")

type Store interface {
	Exists(ctx context.Context, ns Namespace, key string) (bool, error)
	// returns ErrNotFound (possibly wrapped) for missing keys
	Get(ctx context.Context, ns Namespace, key string) (*post.Post, error)
	Set(ctx context.Context, ns Namespace, key string, p *post.Post) error
	// does not error if the key is missing
	Delete(ctx context.Context, ns Namespace, key string) error
	// Scan yields every key in the namespace. Each call starts a new pass;
	// there is no ordering guarantee. Iteration stops at the first error.
	Scan(ctx context.Context, ns Namespace) iter.Seq2[string, error]
	Close() error
}

func (ns Namespace) Valid() bool {
	return ns == Pending || ns == Confirmed
}

func backendKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

// splits a backend key back into namespace and content key
func parseBackendKey(raw string) (Namespace, string, error) {
	ns, key, ok := strings.Cut(raw, ":")
	if !ok || key == "" {
		return "", "", fmt.Errorf("malformed dedupstore key: %q", raw)
	}
	return Namespace(ns), key, nil
}

func checkNamespace(ns Namespace) error {
	if !ns.Valid() {
		return fmt.Errorf("unknown dedupstore namespace: %q", ns)
	}
	return nil
}

// Open returns a Store for the given URL:
//
//	redis://host:port/db, rediss://... -> RedisStore
//	pebble:///path/to/dir              -> PebbleStore
//	mem://                             -> MemStore (not durable)
func Open(storeURL string) (Store, error) {
	switch {
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		return NewRedisStore(storeURL)
	case strings.HasPrefix(storeURL, "pebble://"):
		return NewPebbleStore(strings.TrimPrefix(storeURL, "pebble://"))
	case storeURL == "mem://" || storeURL == "mem:":
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unsupported dedupstore URL: %q", storeURL)
	}
}

// Keys collects every key in a namespace. Convenience for small namespaces and
// tests; loops should range over Scan directly.
func Keys(ctx context.Context, s Store, ns Namespace) ([]string, error) {
	out := []string{}
	for k, err := range s.Scan(ctx, ns) {
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// Pinger is implemented by stores which can check backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
