package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
)

// VectorConfig mirrors the `vector_config` block of the JSON config
// file (spec.md §6) and the teacher's HNSWConfig
// (pkg/search/hnsw_index.go), generalized with the spec's defaults.
type VectorConfig struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorConfig returns the defaults named in spec.md §4.3.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{M: 16, EfConstruction: 128, EfSearch: 768}
}

// Options configures a freshly opened Engine.
type Options struct {
	// DataDir is the on-disk directory (spec.md §6: "A single directory
	// containing KV files per logical table").
	DataDir string

	// InMemory runs BadgerDB without persistence, for tests.
	InMemory bool

	// SyncWrites forces fsync after every commit.
	SyncWrites bool

	// DBMaxSizeGB is the `db_max_size_gb` setting of the config file
	// (default 10). It is reported in the "storage opened" log line; it
	// is not passed to BadgerDB and no size ceiling is enforced.
	DBMaxSizeGB int

	// SecondaryIndices lists the property names maintained as named
	// secondary index tables (`graph_config.secondary_indices`).
	SecondaryIndices []string

	// Vector holds the HNSW defaults new vector indices are opened with.
	Vector VectorConfig

	// Log receives storage lifecycle and badger-internal log lines. A
	// discard logger is used when unset.
	Log logr.Logger
}

// Engine owns the BadgerDB handle shared by every read/write
// transaction opened against it (spec.md §4.1, "KV substrate").
//
// Engine generalizes the teacher's BadgerEngine (pkg/storage/badger.go):
// same single-process, memory-mapped, ACID-transactional handle, but
// Engine itself exposes only transaction constructors — all CRUD lives
// on ReadTxn/WriteTxn so a handler can hold one transaction across an
// entire traversal pipeline, per the design note on transaction
// lifetimes ("model the transaction as a value owned by the handler
// scope").
type Engine struct {
	db  *badger.DB
	log logr.Logger

	secondaryIndices map[string]struct{}
	vectorConfig     VectorConfig
	dbMaxSizeGB      int

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if necessary) the storage directory at
// opts.DataDir and returns a ready Engine.
func Open(opts Options) (*Engine, error) {
	if opts.DBMaxSizeGB == 0 {
		opts.DBMaxSizeGB = 10
	}
	if opts.Vector == (VectorConfig{}) {
		opts.Vector = DefaultVectorConfig()
	}
	log := opts.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	if !opts.InMemory {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	bopts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		// BadgerDB refuses a directory in disk-less mode.
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.
		WithSyncWrites(opts.SyncWrites).
		WithLogger(&badgerLogAdapter{log: log.WithName("badger")}).
		WithCompression(options.ZSTD)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	idx := make(map[string]struct{}, len(opts.SecondaryIndices))
	for _, name := range opts.SecondaryIndices {
		idx[name] = struct{}{}
	}

	lsm, vlog := db.Size()
	log.Info("storage opened",
		"dataDir", opts.DataDir,
		"inMemory", opts.InMemory,
		"size", humanize.Bytes(uint64(lsm+vlog)),
		"maxSize", humanize.Bytes(uint64(opts.DBMaxSizeGB)<<30),
	)

	return &Engine{
		db:               db,
		log:              log,
		secondaryIndices: idx,
		vectorConfig:     opts.Vector,
		dbMaxSizeGB:      opts.DBMaxSizeGB,
	}, nil
}

// OpenInMemory is a convenience constructor for tests.
func OpenInMemory() (*Engine, error) {
	return Open(Options{InMemory: true, DataDir: "helixdb-inmemory"})
}

func (e *Engine) HasSecondaryIndex(name string) bool {
	_, ok := e.secondaryIndices[name]
	return ok
}

func (e *Engine) VectorConfig() VectorConfig { return e.vectorConfig }

// Close flushes and releases the BadgerDB handle. Calling it again is a
// no-op. Close must only be called once no transactions are in flight.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// badgerLogAdapter implements badger.Logger on top of logr, the
// ambient-logging generalization of the teacher's
// `BadgerOptions.Logger badger.Logger` field.
type badgerLogAdapter struct{ log logr.Logger }

func (a *badgerLogAdapter) Errorf(f string, args ...interface{})   { a.log.Error(fmt.Errorf(f, args...), "badger") }
func (a *badgerLogAdapter) Warningf(f string, args ...interface{}) { a.log.Info(fmt.Sprintf(f, args...), "level", "warn") }
func (a *badgerLogAdapter) Infof(f string, args ...interface{})    { a.log.V(1).Info(fmt.Sprintf(f, args...)) }
func (a *badgerLogAdapter) Debugf(f string, args ...interface{})   { a.log.V(2).Info(fmt.Sprintf(f, args...)) }
