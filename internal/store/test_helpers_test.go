package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// backend opens one KV implementation for the shared contract tests.
type backend struct {
	name string
	open func(t *testing.T) KV
}

// backends returns every backend available in this environment. Redis and
// Postgres join only when their connection env vars are set.
func backends() []backend {
	list := []backend{
		{"memory", func(t *testing.T) KV { return NewMemoryKV() }},
		{"sqlite", func(t *testing.T) KV {
			kv, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			return kv
		}},
		{"leveldb", func(t *testing.T) KV {
			kv, err := OpenLevelDB(filepath.Join(t.TempDir(), "ldb"))
			require.NoError(t, err)
			return kv
		}},
	}
	if addr := os.Getenv("VOXELROOM_TEST_REDIS_ADDR"); addr != "" {
		list = append(list, backend{"redis", func(t *testing.T) KV {
			kv, err := OpenRedis(context.Background(), addr)
			require.NoError(t, err)
			return &prefixedKV{KV: kv, prefix: testPrefix(t)}
		}})
	}
	if dsn := os.Getenv("VOXELROOM_TEST_POSTGRES_DSN"); dsn != "" {
		list = append(list, backend{"postgres", func(t *testing.T) KV {
			kv, err := OpenPostgres(context.Background(), dsn)
			require.NoError(t, err)
			return &prefixedKV{KV: kv, prefix: testPrefix(t)}
		}})
	}
	return list
}

// testPrefix is unique per test and per run; keys on shared servers are
// never cleaned up.
func testPrefix(t *testing.T) string {
	return fmt.Sprintf("test/%d/%s/", time.Now().UnixNano(), t.Name())
}

// prefixedKV isolates tests that share an external server.
type prefixedKV struct {
	KV
	prefix string
}

func (p *prefixedKV) Get(ctx context.Context, key string) ([]byte, error) {
	return p.KV.Get(ctx, p.prefix+key)
}

func (p *prefixedKV) PutBatch(ctx context.Context, entries map[string][]byte) error {
	prefixed := make(map[string][]byte, len(entries))
	for k, v := range entries {
		prefixed[p.prefix+k] = v
	}
	return p.KV.PutBatch(ctx, prefixed)
}

func (p *prefixedKV) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	return p.KV.PutIfAbsent(ctx, p.prefix+key, value)
}

// forEachBackend runs fn against a fresh instance of every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, kv KV)) {
	t.Helper()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			kv := b.open(t)
			t.Cleanup(func() { kv.Close() })
			fn(t, kv)
		})
	}
}
