// Package journal keeps an append-only SQL record of protocol events for
// offline analysis.
package journal

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/procrastichain/events"
)

// Entry is one journaled protocol event.
type Entry struct {
	ID          int64          `json:"id"`
	Type        string         `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// Recorder persists protocol events.
type Recorder interface {
	Record(ev events.Event) error
	// Recent returns up to limit entries, newest first.
	Recent(limit int) ([]Entry, error)
	Close() error
}

// Attach subscribes rec to every protocol event published by emitter.
// Recording failures are logged, never propagated into block production.
func Attach(emitter *events.Emitter, rec Recorder, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, typ := range events.ProtocolEvents {
		emitter.Subscribe(typ, func(ev events.Event) {
			if err := rec.Record(ev); err != nil {
				log.Warn("journal record",
					zap.String("event", string(ev.Type)),
					zap.String("tx", ev.TxID),
					zap.Error(err))
			}
		})
	}
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
