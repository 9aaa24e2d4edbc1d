package core

// TicksPerDay is the number of ledger ticks (blocks) that make up one streak day.
const TicksPerDay = 144

// Account holds a participant's token balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key, or a module address.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// StakePosition is a principal's locked balance held in vault custody.
// RewardsPaid is the bonus already paid out for the streak that started at
// RewardEpoch; a streak restart makes it stale.
type StakePosition struct {
	Owner        string `json:"owner"`
	LockedAmount uint64 `json:"locked_amount"`
	Active       bool   `json:"active"`
	RewardsPaid  uint64 `json:"rewards_paid"`
	RewardEpoch  int64  `json:"reward_epoch"`
}

// StreakState records when a principal's current streak began.
type StreakState struct {
	Owner      string `json:"owner"`
	StartTick  int64  `json:"start_tick"`
	ResetCount uint64 `json:"reset_count"`
}

// TemptationClaim marks that Owner claimed the temptation of WindowID.
type TemptationClaim struct {
	Owner    string `json:"owner"`
	WindowID int64  `json:"window_id"`
	Tick     int64  `json:"tick"`
	Bonus    uint64 `json:"bonus"`
}

// PoolState is the penalty pool reservoir. Funds backing Balance are held by
// the pool module account.
type PoolState struct {
	Balance uint64 `json:"balance"`
}

// LeaderboardEntry is one row of the leaderboard sequence.
type LeaderboardEntry struct {
	User   string `json:"user"`
	Blocks int64  `json:"blocks"`
}

// OwnedToken is a minted achievement badge. Tokens are non-transferable.
type OwnedToken struct {
	TokenID  uint64 `json:"token_id"`
	Owner    string `json:"owner"` // pubkey hex
	BadgeID  uint64 `json:"badge_id"`
	MintedAt int64  `json:"minted_at"` // tick
}

// State is the full blockchain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Vault positions; a missing position reads as an inactive zero value.
	GetPosition(owner string) (*StakePosition, error)
	SetPosition(p *StakePosition) error

	// Streaks; ErrNotFound if the principal never started one.
	GetStreak(owner string) (*StreakState, error)
	SetStreak(s *StreakState) error

	// Penalty pool
	GetPool() (*PoolState, error)
	SetPool(p *PoolState) error

	// Temptation claims
	HasTemptationClaim(owner string, windowID int64) (bool, error)
	SetTemptationClaim(c *TemptationClaim) error

	// Leaderboard
	GetLeaderboard() ([]LeaderboardEntry, error)
	SetLeaderboard(entries []LeaderboardEntry) error

	// Achievement tokens
	GetToken(id uint64) (*OwnedToken, error)
	// SetToken stores the token and indexes it by (owner, badge).
	SetToken(t *OwnedToken) error
	// GetBadgeToken returns the token id owner holds for badgeID, or ErrNotFound.
	GetBadgeToken(owner string, badgeID uint64) (uint64, error)
	GetLastTokenID() (uint64, error)
	SetLastTokenID(id uint64) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
