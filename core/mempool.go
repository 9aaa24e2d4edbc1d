package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxPerSender   = 64
	maxTxAge       = time.Hour
	maxTxSkew      = 5 * time.Minute
)

var (
	ErrMempoolFull   = errors.New("mempool full")
	ErrDuplicateTx   = errors.New("tx already in pool")
	ErrSenderLimit   = errors.New("too many pending txs from sender")
	ErrChainMismatch = errors.New("chain ID mismatch")
	ErrTxExpired     = errors.New("transaction expired")
	ErrTxFromFuture  = errors.New("transaction timestamp too far in the future")
)

// Mempool queues signed transactions until a block executes them. The queue
// is first-come first-served: the order transactions are admitted is the
// order protocol calls are serialized in.
type Mempool struct {
	chainID string
	now     func() time.Time

	mu       sync.RWMutex
	byID     map[string]*Transaction
	queue    []string
	bySender map[string]int
}

// NewMempool creates an empty mempool that only admits transactions for chainID.
func NewMempool(chainID string) *Mempool {
	return &Mempool{
		chainID:  chainID,
		now:      time.Now,
		byID:     make(map[string]*Transaction),
		bySender: make(map[string]int),
	}
}

// Add checks tx and appends it to the queue.
func (m *Mempool) Add(tx *Transaction) error {
	if tx.ChainID != m.chainID {
		return fmt.Errorf("%w: got %q want %q", ErrChainMismatch, tx.ChainID, m.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	if err := m.checkTimestamp(tx.Timestamp); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case len(m.byID) >= maxMempoolSize:
		return ErrMempoolFull
	case m.byID[tx.ID] != nil:
		return ErrDuplicateTx
	case m.bySender[tx.From] >= maxPerSender:
		return fmt.Errorf("%w: %s", ErrSenderLimit, tx.From)
	}
	m.byID[tx.ID] = tx
	m.queue = append(m.queue, tx.ID)
	m.bySender[tx.From]++
	return nil
}

func (m *Mempool) checkTimestamp(ts int64) error {
	now := m.now()
	sent := time.Unix(0, ts)
	if now.Sub(sent) > maxTxAge {
		return ErrTxExpired
	}
	if sent.Sub(now) > maxTxSkew {
		return ErrTxFromFuture
	}
	return nil
}

// Get returns a queued transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byID[id]
	return tx, ok
}

// Pending returns up to n transactions from the head of the queue.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.queue) {
		n = len(m.queue)
	}
	out := make([]*Transaction, 0, n)
	for _, id := range m.queue[:n] {
		out = append(out, m.byID[id])
	}
	return out
}

// Remove drops the given transactions from the queue.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	m.removeLocked(func(tx *Transaction) bool {
		_, ok := drop[tx.ID]
		return ok
	})
}

// Prune drops transactions that aged out while queued and returns how many
// were dropped.
func (m *Mempool) Prune() int {
	cutoff := m.now().Add(-maxTxAge).UnixNano()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(func(tx *Transaction) bool { return tx.Timestamp < cutoff })
}

func (m *Mempool) removeLocked(drop func(*Transaction) bool) int {
	kept := m.queue[:0]
	removed := 0
	for _, id := range m.queue {
		tx := m.byID[id]
		if !drop(tx) {
			kept = append(kept, id)
			continue
		}
		delete(m.byID, id)
		if m.bySender[tx.From]--; m.bySender[tx.From] <= 0 {
			delete(m.bySender, tx.From)
		}
		removed++
	}
	m.queue = kept
	return removed
}

// Size returns the number of queued transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue)
}
