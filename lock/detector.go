package lock

import (
	"context"
	"time"

	"vaultdb/txn"
)

// runCycleDetection wakes every detectionInterval, rebuilds the wait-for
// graph, and aborts the youngest transaction in the first cycle it
// finds, per lock_manager.cpp's RunCycleDetection. The aborted
// transaction's own blocked LockShared/LockExclusive/Upgrade call
// notices TransactionState::ABORTED on its next wakeup and unwinds.
func (m *Manager) runCycleDetection(ctx context.Context) {
	defer close(m.detectionDone)
	ticker := time.NewTicker(m.detectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

func (m *Manager) detectOnce() {
	m.mu.Lock()
	victim, found := m.hasCycle()
	m.mu.Unlock()
	if !found || m.txns == nil {
		return
	}

	victimTxn := m.txns(victim)
	if victimTxn == nil {
		return
	}
	victimTxn.SetState(txn.Aborted)
	m.logger.Warn("lock: deadlock detected, aborting transaction", "txn", victim)

	// Wake every waiter so the aborted transaction's blocked call
	// notices the state change and unwinds immediately rather than
	// waiting out the rest of the detection interval.
	m.mu.Lock()
	for _, st := range m.table {
		st.cond.Broadcast()
	}
	m.mu.Unlock()
}
