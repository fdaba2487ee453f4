// Package vaultdb wires the storage and concurrency kernel described in
// SPEC_FULL.md: a Buffer Pool Manager over a Disk Manager, a Lock
// Manager with background deadlock detection, a Transaction Manager
// bound to the Lock Manager, and named B+Tree indexes opened against
// the shared buffer pool. Grounded on the teacher's own top-level
// main.go wiring order (disk -> cache -> tree) and on
// alexhholmes-fredb/option.go's functional-options pattern for Options.
package vaultdb

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"vaultdb/catalog"
	"vaultdb/index/bplustree"
	"vaultdb/lock"
	"vaultdb/logging"
	"vaultdb/storage/bufferpool"
	"vaultdb/storage/disk"
	"vaultdb/txn"
)

// Options configures a Kernel. Zero value is not usable; build one with
// DefaultOptions and the With* functions.
type Options struct {
	poolSize         int
	deadlockInterval time.Duration
	dataFile         string // empty means in-memory (disk.MemManager)
	logger           logging.Logger
	indexComparator  bplustree.Comparator
	leafMaxSize      int
	internalMaxSize  int
}

// Option configures Options using the functional options pattern
// (alexhholmes-fredb/option.go's DBOption shape).
type Option func(*Options)

// DefaultOptions returns a Kernel configuration backed by an in-memory
// disk manager, a 64-frame buffer pool, byte-lexicographic key
// ordering, and a 50ms deadlock detection interval.
//
//goland:noinspection GoUnusedExportedFunction
func DefaultOptions() Options {
	return Options{
		poolSize:         64,
		deadlockInterval: 50 * time.Millisecond,
		logger:           logging.Discard{},
		indexComparator:  bytes.Compare,
		leafMaxSize:      0, // bplustree.Open substitutes its own default
		internalMaxSize:  0,
	}
}

// WithPoolSize sets the buffer pool's frame count.
//
//goland:noinspection GoUnusedExportedFunction
func WithPoolSize(n int) Option {
	return func(o *Options) { o.poolSize = n }
}

// WithDataFile backs the kernel with a real file instead of the default
// in-memory Disk Manager.
//
//goland:noinspection GoUnusedExportedFunction
func WithDataFile(path string) Option {
	return func(o *Options) { o.dataFile = path }
}

// WithDeadlockInterval overrides how often the Lock Manager's background
// detector sweeps the wait-for graph.
//
//goland:noinspection GoUnusedExportedFunction
func WithDeadlockInterval(d time.Duration) Option {
	return func(o *Options) { o.deadlockInterval = d }
}

// WithLogger sets the logger every subsystem logs through.
//
//goland:noinspection GoUnusedExportedFunction
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// WithIndexComparator overrides the byte-comparison order new indexes
// are opened with.
//
//goland:noinspection GoUnusedExportedFunction
func WithIndexComparator(cmp bplustree.Comparator) Option {
	return func(o *Options) { o.indexComparator = cmp }
}

// WithIndexNodeSizes overrides the leaf/internal fanout new indexes are
// opened with. Mainly useful for tests that want to force splits within
// a handful of keys.
//
//goland:noinspection GoUnusedExportedFunction
func WithIndexNodeSizes(leafMax, internalMax int) Option {
	return func(o *Options) { o.leafMaxSize, o.internalMaxSize = leafMax, internalMax }
}

// Kernel is the wired-up storage and concurrency stack: one Disk
// Manager, one Buffer Pool, one Lock Manager, one Transaction Manager,
// a Catalog, and however many named B+Tree indexes are opened against
// them.
type Kernel struct {
	opts Options

	disk    disk.Manager
	bpm     *bufferpool.BufferPool
	txns    *txn.Manager
	locks   *lock.Manager
	catalog *catalog.InMemoryCatalog

	mu      sync.Mutex
	indexes map[string]*bplustree.BPlusTree
}

// Open builds a Kernel from opts, starting the Lock Manager's background
// deadlock detector. Call Close to stop it and release disk resources.
func Open(opts ...Option) (*Kernel, error) {
	o := DefaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	if o.poolSize <= 0 {
		return nil, fmt.Errorf("vaultdb: pool size must be positive, got %d", o.poolSize)
	}

	var dm disk.Manager
	if o.dataFile == "" {
		dm = disk.NewMemManager()
	} else {
		fm, err := disk.OpenFileManager(o.dataFile)
		if err != nil {
			return nil, fmt.Errorf("vaultdb: open %s: %w", o.dataFile, err)
		}
		dm = fm
	}

	bpm := bufferpool.New(o.poolSize, dm, o.logger)

	// txn.Manager and lock.Manager each need the other: the Lock Manager
	// resolves txn ids back to *Transaction for its deadlock detector,
	// and the Transaction Manager releases locks through the Lock
	// Manager on Commit/Abort. Build the Manager first with no releaser,
	// then wire it in once the Lock Manager exists (txn.LockReleaser is
	// satisfied structurally by *lock.Manager, see DESIGN.md, so neither
	// package imports the other).
	txns := txn.NewManager(nil, o.logger)
	locks := lock.NewManager(lock.Options{
		TransactionByID:   txns.Get,
		DetectionInterval: o.deadlockInterval,
		Logger:            o.logger,
	})
	txns.SetLockReleaser(locks)

	cat, err := catalog.NewInMemoryCatalog()
	if err != nil {
		locks.Close()
		return nil, err
	}

	return &Kernel{
		opts:    o,
		disk:    dm,
		bpm:     bpm,
		txns:    txns,
		locks:   locks,
		catalog: cat,
		indexes: make(map[string]*bplustree.BPlusTree),
	}, nil
}

// Close stops the deadlock detector and releases the Disk Manager's
// resources.
func (k *Kernel) Close() error {
	k.locks.Close()
	return k.disk.Close()
}

// BufferPool exposes the kernel's Buffer Pool Manager.
func (k *Kernel) BufferPool() *bufferpool.BufferPool { return k.bpm }

// Transactions exposes the kernel's Transaction Manager.
func (k *Kernel) Transactions() *txn.Manager { return k.txns }

// Locks exposes the kernel's Lock Manager.
func (k *Kernel) Locks() *lock.Manager { return k.locks }

// Catalog exposes the kernel's table/index metadata lookup.
func (k *Kernel) Catalog() *catalog.InMemoryCatalog { return k.catalog }

// Index opens (or returns the already-open) named B+Tree index, sharing
// this kernel's buffer pool and disk manager.
func (k *Kernel) Index(name string) (*bplustree.BPlusTree, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if idx, ok := k.indexes[name]; ok {
		return idx, nil
	}

	idx, err := bplustree.Open(name, k.bpm, k.disk, bplustree.Options{
		Comparator:      k.opts.indexComparator,
		LeafMaxSize:     k.opts.leafMaxSize,
		InternalMaxSize: k.opts.internalMaxSize,
		Logger:          k.opts.logger,
	})
	if err != nil {
		return nil, err
	}
	k.indexes[name] = idx
	return idx, nil
}
