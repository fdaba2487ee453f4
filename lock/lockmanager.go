// Package lock implements the row-granularity S/X lock table and
// deadlock detector of spec §4.4, grounded primarily on
// _examples/original_source/src/concurrency/lock_manager.cpp: a
// LockRequestQueue per RID, a std::condition_variable per queue that
// LockShared/LockExclusive wait on, and a background thread that
// rebuilds a wait-for graph and aborts the youngest transaction caught
// in a cycle. The C++ condition variable becomes a sync.Cond gated on
// the manager's own mutex; everything else follows the original
// closely.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vaultdb/logging"
	"vaultdb/rid"
	"vaultdb/txn"
)

// Mode is the lock granted on a row.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

// request is one entry in a RID's wait/grant queue.
type request struct {
	txnID uint64
	mode  Mode
}

// ridState is the per-RID lock state: at most one writer, any number of
// concurrent readers, and the ordered queue of requests still waiting,
// grounded on lock_manager.cpp's RIDLockState + LockRequestQueue pair.
type ridState struct {
	writer    uint64 // txn.Transaction id, 0 means none (txn ids start at 1)
	readers   map[uint64]struct{}
	queue     []request
	cond      *sync.Cond
	upgrading uint64 // txn id currently upgrading S->X on this row, 0 means none
}

func newRIDState(mu *sync.Mutex) *ridState {
	return &ridState{readers: make(map[uint64]struct{}), cond: sync.NewCond(mu)}
}

// Manager is the row lock table plus the deadlock detector that runs
// over it.
type Manager struct {
	mu    sync.Mutex
	table map[rid.RID]*ridState
	edges map[edge]struct{}
	txns  func(id uint64) *txn.Transaction

	logger            logging.Logger
	detectionInterval time.Duration
	stopDetection     context.CancelFunc
	detectionDone     chan struct{}
}

type edge struct{ from, to uint64 }

// Options configures a Manager.
type Options struct {
	// TransactionByID resolves a txn id back to its Transaction, needed
	// so the deadlock detector can call SetState(Aborted) on the victim.
	TransactionByID func(id uint64) *txn.Transaction
	// DetectionInterval is how often the background cycle detector
	// sweeps the wait-for graph. Defaults to 50ms.
	DetectionInterval time.Duration
	Logger            logging.Logger
}

// NewManager builds a Manager and starts its background deadlock
// detector goroutine. Call Close to stop it.
func NewManager(opts Options) *Manager {
	if opts.DetectionInterval <= 0 {
		opts.DetectionInterval = 50 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		table:             make(map[rid.RID]*ridState),
		edges:             make(map[edge]struct{}),
		txns:              opts.TransactionByID,
		logger:            logger,
		detectionInterval: opts.DetectionInterval,
		stopDetection:     cancel,
		detectionDone:     make(chan struct{}),
	}
	go m.runCycleDetection(ctx)
	return m
}

// Close stops the background deadlock detector. Safe to call once.
func (m *Manager) Close() {
	m.stopDetection()
	<-m.detectionDone
}

func (m *Manager) stateFor(r rid.RID) *ridState {
	st, ok := m.table[r]
	if !ok {
		st = newRIDState(&m.mu)
		m.table[r] = st
	}
	return st
}

func (m *Manager) addEdge(from, to uint64) { m.edges[edge{from, to}] = struct{}{} }
func (m *Manager) removeEdge(from, to uint64) { delete(m.edges, edge{from, to}) }

// LockShared acquires an S lock on r for t, blocking until granted or t
// is aborted (by the deadlock detector or a caller elsewhere). Mirrors
// LockManager::LockShared: SHRINKING-phase acquisition under
// REPEATABLE_READ aborts the transaction outright (strict 2PL), an
// already-X-locking transaction is trivially granted S, and the caller
// waits on the RID's condition variable while any writer holds it.
// Per spec §7's isolation policy table, READ_UNCOMMITTED never takes an
// S lock at all (dirty reads are allowed by construction) and
// READ_COMMITTED takes one just long enough to cross the write-conflict
// check, releasing it before returning rather than holding it to
// commit; only REPEATABLE_READ holds S under strict 2PL.
func (m *Manager) LockShared(t *txn.Transaction, r rid.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.State() == txn.Shrinking && t.IsolationLevel() == txn.RepeatableRead {
		t.SetState(txn.Aborted)
	}
	if t.State() == txn.Aborted {
		return fmt.Errorf("%w: transaction %d", ErrTxnAborted, t.ID())
	}
	if t.IsolationLevel() == txn.ReadUncommitted {
		return nil
	}
	if t.IsExclusiveLocked(r) || t.IsSharedLocked(r) {
		return nil
	}

	st := m.stateFor(r)
	t.SetState(txn.Growing)

	if st.writer != 0 {
		holder := st.writer
		m.addEdge(t.ID(), holder)
		st.queue = append(st.queue, request{txnID: t.ID(), mode: Shared})
		for st.writer != 0 {
			if t.State() == txn.Aborted {
				m.removeEdge(t.ID(), holder)
				m.dequeue(st, t.ID())
				return &DeadlockError{VictimTxnID: t.ID()}
			}
			st.cond.Wait()
		}
		m.removeEdge(t.ID(), holder)
		m.dequeue(st, t.ID())
	}

	st.readers[t.ID()] = struct{}{}
	t.AddSharedLock(r)

	if t.IsolationLevel() == txn.ReadCommitted {
		m.unlockLocked(t, r)
	}
	return nil
}

// LockExclusive acquires an X lock on r for t, waiting out the current
// writer (if any) and every current reader, per LockExclusive's two
// wait loops.
func (m *Manager) LockExclusive(t *txn.Transaction, r rid.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.State() == txn.Shrinking && t.IsolationLevel() == txn.RepeatableRead {
		t.SetState(txn.Aborted)
	}
	if t.State() == txn.Aborted {
		return fmt.Errorf("%w: transaction %d", ErrTxnAborted, t.ID())
	}
	if t.IsExclusiveLocked(r) {
		return nil
	}

	st := m.stateFor(r)
	waited := m.addWaitEdges(t.ID(), st)
	st.queue = append(st.queue, request{txnID: t.ID(), mode: Exclusive})

	for st.writer != 0 {
		if t.State() == txn.Aborted {
			m.removeEdges(t.ID(), waited)
			m.dequeue(st, t.ID())
			return &DeadlockError{VictimTxnID: t.ID()}
		}
		st.cond.Wait()
	}
	st.writer = t.ID()

	for len(st.readers) > 0 {
		if t.State() == txn.Aborted {
			m.removeEdges(t.ID(), waited)
			m.dequeue(st, t.ID())
			st.writer = 0
			return &DeadlockError{VictimTxnID: t.ID()}
		}
		st.cond.Wait()
	}

	m.dequeue(st, t.ID())
	m.removeEdges(t.ID(), waited)
	t.AddExclusiveLock(r)
	return nil
}

// Upgrade releases t's S lock on r and reacquires it as X, atomically
// with respect to the manager's mutex so no other request can slip in
// between (LockManager::LockUpgrade). t must already hold the S lock;
// at most one upgrade may be in flight per row at a time.
func (m *Manager) Upgrade(t *txn.Transaction, r rid.RID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.State() == txn.Shrinking && t.IsolationLevel() == txn.RepeatableRead {
		t.SetState(txn.Aborted)
	}
	if t.State() == txn.Aborted {
		return fmt.Errorf("%w: transaction %d", ErrTxnAborted, t.ID())
	}
	if t.IsExclusiveLocked(r) {
		return nil
	}
	if !t.IsSharedLocked(r) {
		return fmt.Errorf("%w: transaction %d on row %s", ErrLockNotHeld, t.ID(), r)
	}

	st := m.stateFor(r)
	if st.upgrading != 0 && st.upgrading != t.ID() {
		return fmt.Errorf("%w: row %s", ErrUpgradeConflict, r)
	}
	st.upgrading = t.ID()

	delete(st.readers, t.ID())
	t.RemoveSharedLock(r)

	waited := m.addWaitEdges(t.ID(), st)
	st.queue = append(st.queue, request{txnID: t.ID(), mode: Exclusive})
	abort := func() {
		m.removeEdges(t.ID(), waited)
		m.dequeue(st, t.ID())
		st.upgrading = 0
	}

	for st.writer != 0 {
		if t.State() == txn.Aborted {
			abort()
			return &DeadlockError{VictimTxnID: t.ID()}
		}
		st.cond.Wait()
	}
	st.writer = t.ID()

	for len(st.readers) > 0 {
		if t.State() == txn.Aborted {
			abort()
			st.writer = 0
			return &DeadlockError{VictimTxnID: t.ID()}
		}
		st.cond.Wait()
	}

	m.dequeue(st, t.ID())
	m.removeEdges(t.ID(), waited)
	st.upgrading = 0
	t.AddExclusiveLock(r)
	return nil
}

// Unlock releases whichever lock t holds on r, transitioning t to
// SHRINKING under REPEATABLE_READ (strict-2PL boundary), and wakes
// waiters (LockManager::Unlock). Reports whether t actually held a
// lock on r; unlocking a row t does not hold is a no-op that returns
// false rather than an error (spec §7.5).
func (m *Manager) Unlock(t *txn.Transaction, r rid.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlockLocked(t, r)
}

func (m *Manager) unlockLocked(t *txn.Transaction, r rid.RID) bool {
	t.RemoveSharedLock(r)
	t.RemoveExclusiveLock(r)

	st, ok := m.table[r]
	if !ok {
		return false
	}
	if t.State() == txn.Growing && t.IsolationLevel() == txn.RepeatableRead {
		t.SetState(txn.Shrinking)
	}

	released := false
	if st.writer == t.ID() {
		st.writer = 0
		st.cond.Broadcast()
		released = true
	} else if _, held := st.readers[t.ID()]; held {
		delete(st.readers, t.ID())
		released = true
		if len(st.readers) == 0 {
			st.cond.Signal()
		}
	}

	// Garbage-collect the row's state once nothing references it: no
	// writer, no readers, nothing queued waiting on it, and no upgrade
	// in flight. A long-running table otherwise keeps a ridState per
	// row ever touched, even after every lock on it is gone.
	if released && st.writer == 0 && len(st.readers) == 0 && len(st.queue) == 0 && st.upgrading == 0 {
		delete(m.table, r)
	}
	return released
}

// ReleaseAll unlocks every RID t holds a lock on. Satisfies
// txn.LockReleaser, called from txn.Manager.Commit/Abort.
func (m *Manager) ReleaseAll(t *txn.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range t.SharedLockSet() {
		m.unlockLocked(t, r)
	}
	for _, r := range t.ExclusiveLockSet() {
		m.unlockLocked(t, r)
	}
}

// addWaitEdges adds a wait-for edge from t to the current writer (if
// any) and to every current reader, returning the set of txn ids it
// added edges to so the caller can remove exactly those on abort.
func (m *Manager) addWaitEdges(t uint64, st *ridState) []uint64 {
	var waited []uint64
	if st.writer != 0 {
		m.addEdge(t, st.writer)
		waited = append(waited, st.writer)
	}
	for reader := range st.readers {
		m.addEdge(t, reader)
		waited = append(waited, reader)
	}
	return waited
}

func (m *Manager) removeEdges(from uint64, to []uint64) {
	for _, id := range to {
		m.removeEdge(from, id)
	}
}

func (m *Manager) dequeue(st *ridState, txnID uint64) {
	for i, req := range st.queue {
		if req.txnID == txnID {
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return
		}
	}
}
