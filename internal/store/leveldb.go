package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ds "github.com/ipfs/go-datastore"
	dslvl "github.com/ipfs/go-ds-leveldb"
)

// LevelDBKV stores keys in a LevelDB directory through go-datastore.
// LevelDB locks its directory, so one process owns it and the mutex is
// enough to make PutIfAbsent atomic.
type LevelDBKV struct {
	mu sync.Mutex
	db *dslvl.Datastore
}

// OpenLevelDB creates or opens a LevelDB datastore at dir.
func OpenLevelDB(dir string) (*LevelDBKV, error) {
	db, err := dslvl.NewDatastore(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &LevelDBKV{db: db}, nil
}

func (l *LevelDBKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := l.db.Get(ctx, ds.NewKey(key))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (l *LevelDBKV) PutBatch(ctx context.Context, entries map[string][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	for k, v := range entries {
		if err := b.Put(ctx, ds.NewKey(k), v); err != nil {
			return fmt.Errorf("put %s: %w", k, err)
		}
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *LevelDBKV) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := ds.NewKey(key)
	exists, err := l.db.Has(ctx, k)
	if err != nil {
		return false, fmt.Errorf("has %s: %w", key, err)
	}
	if exists {
		return false, nil
	}
	if err := l.db.Put(ctx, k, value); err != nil {
		return false, fmt.Errorf("put %s: %w", key, err)
	}
	return true, nil
}

func (l *LevelDBKV) Close() error {
	return l.db.Close()
}
