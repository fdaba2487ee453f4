package txn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"vaultdb/logging"
)

// LockReleaser is the slice of lock.Manager that Commit/Abort need.
// Declared here rather than imported so txn stays independent of lock —
// lock.Manager imports txn for *Transaction, and satisfies this
// interface structurally.
type LockReleaser interface {
	ReleaseAll(t *Transaction)
}

// Manager tracks every active transaction, grounded on
// storage_engine/transaction_manager/main.go's atomic id counter and
// mutex-guarded active-set shape.
type Manager struct {
	nextID atomic.Uint64
	mu     sync.RWMutex
	active map[uint64]*Transaction
	locks  LockReleaser
	logger logging.Logger
}

// NewManager builds a Manager whose Commit/Abort release locks through
// locks. locks may be nil during tests that never take locks.
func NewManager(locks LockReleaser, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard{}
	}
	return &Manager{
		active: make(map[uint64]*Transaction),
		locks:  locks,
		logger: logger,
	}
}

// SetLockReleaser wires locks in after construction, for callers that
// need a *Manager to exist before they can build the lock.Manager that
// resolves txn ids back to *Transaction (vaultdb.Open's construction
// order). Not safe to call concurrently with Commit/Abort.
func (m *Manager) SetLockReleaser(locks LockReleaser) {
	m.locks = locks
}

// Begin starts and registers a new transaction.
func (m *Manager) Begin(level IsolationLevel) *Transaction {
	id := m.nextID.Add(1)
	t := newTransaction(id, level)

	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()

	m.logger.Debug("txn: begin", "txn", id, "isolation", int(level))
	return t
}

// Get returns the active transaction with the given id, or nil.
func (m *Manager) Get(id uint64) *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// Commit releases every lock t holds, marks it COMMITTED, and
// deregisters it. Committing an already-committed transaction is a
// no-op; committing an aborted one returns ErrAlreadyAborted.
func (m *Manager) Commit(t *Transaction) error {
	if t.State() == Aborted {
		return fmt.Errorf("%w: transaction %d", ErrAlreadyAborted, t.id)
	}
	if t.State() == Committed {
		return nil
	}
	if m.locks != nil {
		m.locks.ReleaseAll(t)
	}
	t.SetState(Committed)

	m.mu.Lock()
	delete(m.active, t.id)
	m.mu.Unlock()

	m.logger.Debug("txn: commit", "txn", t.id)
	return nil
}

// Abort releases every lock t holds, marks it ABORTED, and deregisters
// it. Idempotent.
func (m *Manager) Abort(t *Transaction) error {
	if t.State() == Committed {
		return fmt.Errorf("%w: transaction %d", ErrAlreadyCommitted, t.id)
	}
	if t.State() == Aborted {
		return nil
	}
	if m.locks != nil {
		m.locks.ReleaseAll(t)
	}
	t.SetState(Aborted)

	m.mu.Lock()
	delete(m.active, t.id)
	m.mu.Unlock()

	m.logger.Debug("txn: abort", "txn", t.id)
	return nil
}
