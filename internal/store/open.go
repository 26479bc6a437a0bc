package store

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverLevelDB  = "leveldb"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Drivers lists every supported driver name.
var Drivers = []string{DriverMemory, DriverSQLite, DriverLevelDB, DriverRedis, DriverPostgres}

// Open connects the named backend. dsn is a file path for sqlite, a
// directory for leveldb, an address or URL for redis and a connection
// string for postgres. The memory driver ignores it.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		kv  KV
		err error
	)
	switch driver {
	case DriverMemory, "":
		driver = DriverMemory
		kv = NewMemoryKV()
	case DriverSQLite:
		kv, err = OpenSQLite(dsn)
	case DriverLevelDB:
		kv, err = OpenLevelDB(dsn)
	case DriverRedis:
		kv, err = OpenRedis(ctx, dsn)
	case DriverPostgres:
		kv, err = OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return New(kv, driver), nil
}
