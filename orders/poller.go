package orders

import (
	"context"
	"log/slog"
	"time"
)

// Invalidations delivers cross-context refresh signals.
// Satisfied by *notify.Notifier.
type Invalidations interface {
	Subscribe(fn func()) (cancel func())
}

// Poller re-runs the aggregator's List on a fixed interval and whenever
// another context broadcasts an invalidation, so status changes made
// elsewhere (an operator advancing an order, another tab cancelling)
// surface without a manual reload.
type Poller struct {
	agg      *Aggregator
	inv      Invalidations
	interval time.Duration
	onUpdate func([]Order)
	log      *slog.Logger
}

// NewPoller creates a poller. onUpdate receives every successful merged
// view, including the initial one. A nil logger uses slog.Default().
func NewPoller(agg *Aggregator, inv Invalidations, interval time.Duration, onUpdate func([]Order), log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{agg: agg, inv: inv, interval: interval, onUpdate: onUpdate, log: log}
}

// Run blocks until ctx ends. Fetch failures are logged and retried on the
// next tick; they never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	kick := make(chan struct{}, 1)
	if p.inv != nil {
		cancel := p.inv.Subscribe(func() {
			select {
			case kick <- struct{}{}:
			default:
			}
		})
		defer cancel()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		case <-kick:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	orders, err := p.agg.List(ctx)
	if err != nil {
		p.log.Warn("poll orders failed", "error", err)
		return
	}
	if p.onUpdate != nil {
		p.onUpdate(orders)
	}
}
