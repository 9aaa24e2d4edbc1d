package journal

import "github.com/tolelom/procrastichain/events"

// NoopRecorder is used when no journal path is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Record(_ events.Event) error   { return nil }
func (n *NoopRecorder) Recent(_ int) ([]Entry, error) { return nil, nil }
func (n *NoopRecorder) Close() error                  { return nil }
