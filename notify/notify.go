// Package notify broadcasts an invalidation signal between execution
// contexts of the same user (two app windows, a customer and an operator
// process). The signal is a monotonically-changing marker in the shared
// durable store: the value itself is opaque, only its change matters.
// Subscribers re-sync when the marker moves.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultChannel is the marker channel used for order invalidation.
const DefaultChannel = "orders_bump"

// MarkerStore reads and writes the shared marker.
// Satisfied by *draft.Store.
type MarkerStore interface {
	SetMarker(ctx context.Context, channel, value string) error
	Marker(ctx context.Context, channel string) (string, error)
}

// Notifier publishes bumps and fans marker changes out to subscribers.
type Notifier struct {
	store    MarkerStore
	channel  string
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	subs     map[int]func()
	nextID   int
	lastSeen string
}

// New creates a notifier watching the given channel. interval bounds how
// stale another context's view can be before the bump is observed. A nil
// logger uses slog.Default().
func New(store MarkerStore, channel string, interval time.Duration, log *slog.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		store:    store,
		channel:  channel,
		interval: interval,
		log:      log,
		subs:     make(map[int]func()),
	}
}

// Bump writes a fresh marker value. Our own bumps are not echoed back to
// this context's subscribers: the mutation that caused the bump already
// updated the local view.
func (n *Notifier) Bump(ctx context.Context) error {
	value := uuid.NewString()
	if err := n.store.SetMarker(ctx, n.channel, value); err != nil {
		return err
	}
	n.mu.Lock()
	n.lastSeen = value
	n.mu.Unlock()
	return nil
}

// Subscribe registers fn to run whenever another context bumps the
// marker. The returned func cancels the subscription.
func (n *Notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Watch polls the marker until ctx ends, invoking subscribers on every
// observed change. Run it as a goroutine: go notifier.Watch(ctx).
func (n *Notifier) Watch(ctx context.Context) {
	// Baseline: changes before the watcher started are not replayed.
	if value, err := n.store.Marker(ctx, n.channel); err == nil {
		n.mu.Lock()
		if n.lastSeen == "" {
			n.lastSeen = value
		}
		n.mu.Unlock()
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value, err := n.store.Marker(ctx, n.channel)
			if err != nil {
				n.log.Warn("read marker failed", "channel", n.channel, "error", err)
				continue
			}
			n.mu.Lock()
			changed := value != "" && value != n.lastSeen
			if changed {
				n.lastSeen = value
			}
			fns := make([]func(), 0, len(n.subs))
			if changed {
				for _, fn := range n.subs {
					fns = append(fns, fn)
				}
			}
			n.mu.Unlock()
			for _, fn := range fns {
				fn()
			}
		}
	}
}
