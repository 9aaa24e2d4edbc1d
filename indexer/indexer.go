// Package indexer maintains secondary indexes over executed transactions so
// clients can look up receipts, badges and temptation history without
// scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/storage"
)

const (
	prefixReceipt     = "idx:receipt:"
	prefixOwnerTokens = "idx:owner:token:"
	prefixUserTempt   = "idx:user:tempt:"

	cacheSize = 1024
)

// TemptationRecord is one temptation a principal gave in to.
type TemptationRecord struct {
	WindowID    int64  `json:"window_id"`
	Name        string `json:"name"`
	Bonus       uint64 `json:"bonus"`
	BlockHeight int64  `json:"block_height"`
	TxID        string `json:"tx_id"`
}

// Indexer subscribes to chain events and updates secondary lookup tables.
// Reads go through an LRU cache that writes invalidate.
type Indexer struct {
	db    storage.DB
	cache *lru.Cache
	log   *zap.Logger

	mu sync.Mutex // serialises read-modify-write of list keys
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log *zap.Logger) (*Indexer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("indexer cache: %w", err)
	}
	idx := &Indexer{db: db, cache: cache, log: log.Named("indexer")}
	emitter.Subscribe(events.EventTxExecuted, idx.onReceipt)
	emitter.Subscribe(events.EventTxFailed, idx.onReceipt)
	emitter.Subscribe(events.EventBadgeMinted, idx.onBadgeMinted)
	emitter.Subscribe(events.EventTemptationClaimed, idx.onTemptationClaimed)
	return idx, nil
}

// GetReceipt returns the receipt of txID, or core.ErrNotFound.
func (idx *Indexer) GetReceipt(txID string) (*core.Receipt, error) {
	var r core.Receipt
	if err := idx.load(prefixReceipt+txID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetTokensByOwner returns the badge token ids minted to owner, oldest first.
func (idx *Indexer) GetTokensByOwner(owner string) ([]uint64, error) {
	var ids []uint64
	if err := idx.load(prefixOwnerTokens+owner, &ids); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []uint64{}, nil
		}
		return nil, err
	}
	return ids, nil
}

// GetTemptationClaims returns the temptations principal claimed, oldest first.
func (idx *Indexer) GetTemptationClaims(principal string) ([]TemptationRecord, error) {
	var recs []TemptationRecord
	if err := idx.load(prefixUserTempt+principal, &recs); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return []TemptationRecord{}, nil
		}
		return nil, err
	}
	return recs, nil
}

// ---- event handlers ----

func (idx *Indexer) onReceipt(ev events.Event) {
	r, _ := ev.Data["receipt"].(*core.Receipt)
	if r == nil || r.TxID == "" {
		return
	}
	if err := idx.store(prefixReceipt+r.TxID, r); err != nil {
		idx.log.Warn("index receipt", zap.String("tx", r.TxID), zap.Error(err))
	}
}

func (idx *Indexer) onBadgeMinted(ev events.Event) {
	owner, _ := ev.Data["owner"].(string)
	tokenID, _ := ev.Data["token_id"].(uint64)
	if owner == "" || tokenID == 0 {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids, err := idx.GetTokensByOwner(owner)
	if err == nil {
		err = idx.store(prefixOwnerTokens+owner, append(ids, tokenID))
	}
	if err != nil {
		idx.log.Warn("index badge", zap.String("owner", owner), zap.Uint64("token", tokenID), zap.Error(err))
	}
}

func (idx *Indexer) onTemptationClaimed(ev events.Event) {
	user, _ := ev.Data["user"].(string)
	if user == "" {
		return
	}
	rec := TemptationRecord{BlockHeight: ev.BlockHeight, TxID: ev.TxID}
	rec.WindowID, _ = ev.Data["window_id"].(int64)
	rec.Name, _ = ev.Data["name"].(string)
	rec.Bonus, _ = ev.Data["bonus"].(uint64)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	recs, err := idx.GetTemptationClaims(user)
	if err == nil {
		err = idx.store(prefixUserTempt+user, append(recs, rec))
	}
	if err != nil {
		idx.log.Warn("index temptation", zap.String("user", user), zap.Error(err))
	}
}

// ---- storage helpers ----

func (idx *Indexer) load(key string, v any) error {
	data, ok := idx.cached(key)
	if !ok {
		var err error
		data, err = idx.db.Get([]byte(key))
		if err != nil {
			return err
		}
		idx.cache.Add(key, data)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("indexer unmarshal %s: %w", key, err)
	}
	return nil
}

func (idx *Indexer) cached(key string) ([]byte, bool) {
	v, ok := idx.cache.Get(key)
	if !ok {
		return nil, false
	}
	data, ok := v.([]byte)
	return data, ok
}

func (idx *Indexer) store(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := idx.db.Set([]byte(key), data); err != nil {
		idx.cache.Remove(key)
		return err
	}
	idx.cache.Add(key, data)
	return nil
}
