package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// cue.Context is not safe for concurrent use.
var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("config schema: #Config not defined")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// schemaView is the shape checked by schema.cue. Durations are whole
// milliseconds so the schema can bound them as integers.
type schemaView struct {
	Listen string `json:"listen"`
	Store  struct {
		Driver string `json:"driver"`
		DSN    string `json:"dsn"`
	} `json:"store"`
	Room struct {
		MaxBatch         int   `json:"maxBatch"`
		BucketCapacity   int   `json:"bucketCapacity"`
		RefillIntervalMs int64 `json:"refillIntervalMs"`
		FlushDelayMs     int64 `json:"flushDelayMs"`
		IdleTimeoutMs    int64 `json:"idleTimeoutMs"`
		PersistTimeoutMs int64 `json:"persistTimeoutMs"`
	} `json:"room"`
	Server struct {
		OutboxSize     int   `json:"outboxSize"`
		WriteTimeoutMs int64 `json:"writeTimeoutMs"`
		PingIntervalMs int64 `json:"pingIntervalMs"`
		ReadLimit      int64 `json:"readLimit"`
	} `json:"server"`
	Log LogConfig `json:"log"`
}

func viewOf(c Config) schemaView {
	var v schemaView
	v.Listen = c.Listen
	v.Store.Driver = c.Store.Driver
	v.Store.DSN = c.Store.DSN
	v.Room.MaxBatch = c.Room.MaxBatch
	v.Room.BucketCapacity = c.Room.BucketCapacity
	v.Room.RefillIntervalMs = c.Room.RefillInterval.Milliseconds()
	v.Room.FlushDelayMs = c.Room.FlushDelay.Milliseconds()
	v.Room.IdleTimeoutMs = c.Room.IdleTimeout.Milliseconds()
	v.Room.PersistTimeoutMs = c.Room.PersistTimeout.Milliseconds()
	v.Server.OutboxSize = c.Server.OutboxSize
	v.Server.WriteTimeoutMs = c.Server.WriteTimeout.Milliseconds()
	v.Server.PingIntervalMs = c.Server.PingInterval.Milliseconds()
	v.Server.ReadLimit = c.Server.ReadLimit
	v.Log = c.Log
	return v
}

func validateSchema(c Config) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(viewOf(c))
	if err != nil {
		return err
	}
	v := ctx.CompileBytes(data, cue.Filename("config"))
	if err := v.Err(); err != nil {
		return err
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}
	return nil
}
