package eventindex

import (
	"context"
	"log/slog"
	"time"

	"epkfarm/core/events"
)

// HeightSource reports the current block height.
type HeightSource interface {
	BlockNumber() uint64
}

// Indexer is an events.Emitter that writes every renderable event to a
// Store. Write failures are logged and do not reach the emitting caller.
type Indexer struct {
	store   *Store
	heights HeightSource
	log     *slog.Logger
	timeout time.Duration
}

func NewIndexer(store *Store, heights HeightSource, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{store: store, heights: heights, log: log.With("component", "eventindex"), timeout: 5 * time.Second}
}

// Emit implements events.Emitter for events delivered without a commit
// height; the current clock height is recorded instead.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil {
		return
	}
	var height uint64
	if i.heights != nil {
		height = i.heights.BlockNumber()
	}
	i.EmitAt(height, evt)
}

// EmitAt implements events.HeightEmitter.
func (i *Indexer) EmitAt(height uint64, evt events.Event) {
	if i == nil || i.store == nil || evt == nil {
		return
	}
	renderable, ok := evt.(events.Renderable)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	if err := i.store.Record(ctx, height, renderable.Event()); err != nil {
		i.log.Error("index event", "type", evt.EventType(), "height", height, "error", err)
	}
}
