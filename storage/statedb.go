package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/crypto"
)

// Every state key lives under one of these prefixes. ComputeRoot scans
// exactly this list, so a new kind of state must be added here.
const (
	prefixAccount    = "acct:"
	prefixPosition   = "vault:"
	prefixStreak     = "streak:"
	prefixPool       = "pool:"
	prefixTemptation = "tempt:"
	prefixBoard      = "board:"
	prefixToken      = "nft:tok:"
	prefixBadgeOwner = "nft:own:"
	prefixNFTMeta    = "nft:meta:"
)

var statePrefixes = []string{
	prefixAccount,
	prefixPosition,
	prefixStreak,
	prefixPool,
	prefixTemptation,
	prefixBoard,
	prefixToken,
	prefixBadgeOwner,
	prefixNFTMeta,
}

var (
	keyPool        = prefixPool + "state"
	keyLeaderboard = prefixBoard + "entries"
	keyLastTokenID = prefixNFTMeta + "last_token_id"
)

// undoEntry restores one buffered key to what it held before a write.
type undoEntry struct {
	key     string
	prev    []byte
	hadPrev bool
}

// StateDB implements core.State on top of a DB. Writes are buffered until
// Commit. Snapshots are positions in an undo journal, so reverting a
// transaction only touches the keys it wrote. mu lets RPC readers run beside
// the block producer.
type StateDB struct {
	db       DB
	readOnly bool

	mu      sync.RWMutex
	dirty   map[string][]byte
	journal []undoEntry
	marks   []int
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{db: db, dirty: make(map[string][]byte)}
}

// ErrReadOnly is returned by writes on a committed view.
var ErrReadOnly = errors.New("state view is read-only")

// Committed returns a read-only view of the state as of the last Commit.
// It shares the DB but not the write buffer, so readers never observe a
// block that is still being executed.
func (s *StateDB) Committed() *StateDB {
	return &StateDB{db: s.db, readOnly: true, dirty: make(map[string][]byte)}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.dirty[key]
	s.journal = append(s.journal, undoEntry{key: key, prev: prev, hadPrev: had})
	s.dirty[key] = val
	return nil
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.set(key, data)
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Vault ----

func (s *StateDB) GetPosition(owner string) (*core.StakePosition, error) {
	var p core.StakePosition
	err := s.getJSON(prefixPosition+owner, &p)
	if errors.Is(err, core.ErrNotFound) {
		return &core.StakePosition{Owner: owner}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPosition(p *core.StakePosition) error {
	return s.setJSON(prefixPosition+p.Owner, p)
}

// ---- Streak ----

func (s *StateDB) GetStreak(owner string) (*core.StreakState, error) {
	var st core.StreakState
	if err := s.getJSON(prefixStreak+owner, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StateDB) SetStreak(st *core.StreakState) error {
	return s.setJSON(prefixStreak+st.Owner, st)
}

// ---- Pool ----

func (s *StateDB) GetPool() (*core.PoolState, error) {
	var p core.PoolState
	err := s.getJSON(keyPool, &p)
	if errors.Is(err, core.ErrNotFound) {
		return &core.PoolState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPool(p *core.PoolState) error {
	return s.setJSON(keyPool, p)
}

// ---- Temptation ----

func temptationKey(owner string, windowID int64) string {
	return prefixTemptation + owner + ":" + strconv.FormatInt(windowID, 10)
}

func (s *StateDB) HasTemptationClaim(owner string, windowID int64) (bool, error) {
	_, err := s.get(temptationKey(owner, windowID))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) SetTemptationClaim(c *core.TemptationClaim) error {
	return s.setJSON(temptationKey(c.Owner, c.WindowID), c)
}

// ---- Leaderboard ----

func (s *StateDB) GetLeaderboard() ([]core.LeaderboardEntry, error) {
	var entries []core.LeaderboardEntry
	err := s.getJSON(keyLeaderboard, &entries)
	if errors.Is(err, core.ErrNotFound) {
		return []core.LeaderboardEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *StateDB) SetLeaderboard(entries []core.LeaderboardEntry) error {
	return s.setJSON(keyLeaderboard, entries)
}

// ---- Achievement tokens ----

func tokenKey(id uint64) string {
	return prefixToken + strconv.FormatUint(id, 10)
}

func badgeOwnerKey(owner string, badgeID uint64) string {
	return prefixBadgeOwner + owner + ":" + strconv.FormatUint(badgeID, 10)
}

func (s *StateDB) GetToken(id uint64) (*core.OwnedToken, error) {
	var t core.OwnedToken
	if err := s.getJSON(tokenKey(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetToken(t *core.OwnedToken) error {
	if err := s.setJSON(tokenKey(t.TokenID), t); err != nil {
		return err
	}
	return s.set(badgeOwnerKey(t.Owner, t.BadgeID), []byte(strconv.FormatUint(t.TokenID, 10)))
}

func (s *StateDB) GetBadgeToken(owner string, badgeID uint64) (uint64, error) {
	data, err := s.get(badgeOwnerKey(owner, badgeID))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) GetLastTokenID() (uint64, error) {
	data, err := s.get(keyLastTokenID)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(data), 10, 64)
}

func (s *StateDB) SetLastTokenID(id uint64) error {
	return s.set(keyLastTokenID, []byte(strconv.FormatUint(id, 10)))
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot marks the current point in the undo journal.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = append(s.marks, len(s.journal))
	return len(s.marks) - 1, nil
}

// RevertToSnapshot undoes every write made since snapshot id was taken.
// Snapshots taken after id are discarded with it.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.marks) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	mark := s.marks[id]
	for i := len(s.journal) - 1; i >= mark; i-- {
		u := s.journal[i]
		if u.hadPrev {
			s.dirty[u.key] = u.prev
		} else {
			delete(s.dirty, u.key)
		}
	}
	s.journal = s.journal[:mark]
	s.marks = s.marks[:id]
	return nil
}

// ComputeRoot hashes the complete world state: persisted entries under the
// state prefixes overlaid with the write buffer, as sorted length-prefixed
// key-value pairs. It does not flush, so it can run before the block is
// signed.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}

	s.mu.RLock()
	for k, v := range s.dirty {
		merged[k] = v
	}
	s.mu.RUnlock()

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		writeLenPrefixed(&buf, []byte(k))
		writeLenPrefixed(&buf, merged[k])
	}
	return crypto.DomainHash("state", buf.Bytes())
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

// Commit flushes the write buffer to the DB in one batch and clears it,
// along with all snapshots. Call it only after the block is stored.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.journal = nil
	s.marks = nil
	return nil
}
