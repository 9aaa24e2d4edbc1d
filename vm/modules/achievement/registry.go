// Package achievement issues non-transferable badge tokens to principals
// whose streak is long enough.
package achievement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/events"
	"github.com/tolelom/procrastichain/vm"
	"github.com/tolelom/procrastichain/vm/modules/streak"
)

// DefaultBaseURI prefixes every badge metadata URI unless configured.
const DefaultBaseURI = "https://procrastination.com/badges"

// Badge is an entry of the static catalog.
type Badge struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	RequiredDays int64  `json:"required_days"`
}

var catalog = []Badge{
	{ID: 1, Name: "Lazy Beginner", RequiredDays: 1},
	{ID: 2, Name: "Expert Procrastinator", RequiredDays: 7},
	{ID: 3, Name: "Professional Slacker", RequiredDays: 14},
	{ID: 4, Name: "Master of Inaction", RequiredDays: 30},
	{ID: 5, Name: "Legendary Statue", RequiredDays: 100},
}

// Lookup returns the catalog entry for id.
func Lookup(id uint64) (Badge, bool) {
	for _, b := range catalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// Registry mints badges and answers ownership queries.
type Registry struct {
	tracker *streak.Tracker
	baseURI string
}

// New returns a Registry checking eligibility with tracker. An empty baseURI
// selects DefaultBaseURI.
func New(tracker *streak.Tracker, baseURI string) *Registry {
	if baseURI == "" {
		baseURI = DefaultBaseURI
	}
	return &Registry{tracker: tracker, baseURI: strings.TrimRight(baseURI, "/")}
}

// Register wires the claim transaction into r.
func (a *Registry) Register(r *vm.Registry) {
	r.Register(core.TxClaimBadge, a.handleClaim)
}

// Badges returns a copy of the catalog.
func (a *Registry) Badges() []Badge {
	out := make([]Badge, len(catalog))
	copy(out, catalog)
	return out
}

// ClaimBadge mints badgeID for the caller and returns the new token id.
func (a *Registry) ClaimBadge(ctx *vm.Context, badgeID uint64) (uint64, error) {
	caller, tick := ctx.Caller(), ctx.Tick()

	badge, ok := Lookup(badgeID)
	if !ok {
		return 0, fmt.Errorf("badge %d: %w", badgeID, core.ErrUnknownBadge)
	}
	days, err := a.tracker.GetDays(ctx.State, caller, tick)
	if err != nil {
		return 0, err
	}
	if days < badge.RequiredDays {
		return 0, fmt.Errorf("badge %d needs %d days, have %d: %w", badgeID, badge.RequiredDays, days, core.ErrNotEligible)
	}
	owned, err := a.HasBadge(ctx.State, caller, badgeID)
	if err != nil {
		return 0, err
	}
	if owned {
		return 0, fmt.Errorf("badge %d: %w", badgeID, core.ErrBadgeAlreadyOwned)
	}

	last, err := ctx.State.GetLastTokenID()
	if err != nil {
		return 0, err
	}
	tokenID := last + 1
	if err := ctx.State.SetToken(&core.OwnedToken{
		TokenID:  tokenID,
		Owner:    caller,
		BadgeID:  badgeID,
		MintedAt: tick,
	}); err != nil {
		return 0, err
	}
	if err := ctx.State.SetLastTokenID(tokenID); err != nil {
		return 0, err
	}
	ctx.Emit(events.EventBadgeMinted, map[string]any{
		"owner":    caller,
		"token_id": tokenID,
		"badge_id": badgeID,
	})
	return tokenID, nil
}

// GetOwner returns the owner of tokenID, if minted.
func (a *Registry) GetOwner(st core.State, tokenID uint64) (string, bool, error) {
	tok, err := a.token(st, tokenID)
	if err != nil || tok == nil {
		return "", false, err
	}
	return tok.Owner, true, nil
}

// GetTokenURI returns the metadata URI of tokenID. The URI depends only on
// the badge type.
func (a *Registry) GetTokenURI(st core.State, tokenID uint64) (string, bool, error) {
	tok, err := a.token(st, tokenID)
	if err != nil || tok == nil {
		return "", false, err
	}
	return a.BadgeURI(tok.BadgeID), true, nil
}

// BadgeURI returns the metadata URI of a badge type.
func (a *Registry) BadgeURI(badgeID uint64) string {
	return a.baseURI + "/" + strconv.FormatUint(badgeID, 10)
}

// HasBadge reports whether principal owns a token of badgeID.
func (a *Registry) HasBadge(st core.State, principal string, badgeID uint64) (bool, error) {
	_, err := st.GetBadgeToken(principal, badgeID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetLastTokenID returns the most recently minted token id, 0 if none.
func (a *Registry) GetLastTokenID(st core.State) (uint64, error) {
	return st.GetLastTokenID()
}

// GetToken returns the token record, or core.ErrNotFound.
func (a *Registry) GetToken(st core.State, tokenID uint64) (*core.OwnedToken, error) {
	return st.GetToken(tokenID)
}

func (a *Registry) token(st core.State, tokenID uint64) (*core.OwnedToken, error) {
	tok, err := st.GetToken(tokenID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return tok, err
}

func (a *Registry) handleClaim(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimBadgePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_badge payload: %w", err)
	}
	tokenID, err := a.ClaimBadge(ctx, p.BadgeID)
	if err != nil {
		return err
	}
	ctx.SetResult(map[string]any{"token_id": tokenID, "badge_id": p.BadgeID})
	return nil
}
