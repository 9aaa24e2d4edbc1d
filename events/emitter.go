package events

import (
	"sync"

	"go.uber.org/zap"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit       EventType = "block_commit"
	EventTxExecuted        EventType = "tx_executed"
	EventTxFailed          EventType = "tx_failed"
	EventTokenTransfer     EventType = "token_transfer"
	EventStakeStarted      EventType = "stake_started"
	EventStakeQuit         EventType = "stake_quit"
	EventRewardClaimed     EventType = "reward_claimed"
	EventStreakReset       EventType = "streak_reset"
	EventPoolDeposit       EventType = "pool_deposit"
	EventPoolWithdraw      EventType = "pool_withdraw"
	EventTemptationClaimed EventType = "temptation_claimed"
	EventLeaderboardUpdate EventType = "leaderboard_update"
	EventBadgeMinted       EventType = "badge_minted"
)

// ProtocolEvents lists every event emitted by protocol modules.
var ProtocolEvents = []EventType{
	EventTokenTransfer,
	EventStakeStarted,
	EventStakeQuit,
	EventRewardClaimed,
	EventStreakReset,
	EventPoolDeposit,
	EventPoolWithdraw,
	EventTemptationClaimed,
	EventLeaderboardUpdate,
	EventBadgeMinted,
}

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers. A nil logger discards
// handler panics silently.
func NewEmitter(log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{log: log, handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("event handler panicked",
						zap.String("event", string(ev.Type)),
						zap.Any("panic", r))
				}
			}()
			h(ev)
		}()
	}
}

// Publisher is anything events can be emitted to. *Emitter and *Buffer both
// satisfy it.
type Publisher interface {
	Emit(Event)
}

// Buffer collects events in emission order until Flush hands them to a
// Publisher. The block producer uses it so subscribers only ever see events
// from blocks that were stored and committed. A Buffer is not safe for
// concurrent use.
type Buffer struct {
	events []Event
}

// Emit appends ev to the buffer.
func (b *Buffer) Emit(ev Event) {
	b.events = append(b.events, ev)
}

// Len reports how many events are waiting.
func (b *Buffer) Len() int { return len(b.events) }

// Flush publishes the buffered events to pub in order and empties the buffer.
func (b *Buffer) Flush(pub Publisher) {
	pending := b.events
	b.events = nil
	for _, ev := range pending {
		pub.Emit(ev)
	}
}

// Reset drops every buffered event.
func (b *Buffer) Reset() {
	b.events = nil
}
