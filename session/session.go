// Package session wires the client together: one Session owns the
// credential, the gateway client, the cart mirror, the order aggregator,
// the operator client, the durable store and the cross-context notifier.
// Nothing here is global; a Session is created when a user signs in (or
// a persisted credential is resumed) and torn down at logout.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zaikapos/orderclient/admin"
	"github.com/zaikapos/orderclient/cart"
	"github.com/zaikapos/orderclient/config"
	"github.com/zaikapos/orderclient/draft"
	"github.com/zaikapos/orderclient/gateway"
	"github.com/zaikapos/orderclient/notify"
	"github.com/zaikapos/orderclient/orders"
)

// StoreFile is the session store filename inside the state dir.
const StoreFile = "orderclient.db"

// Session is the explicit owner of all client-side mutable state.
type Session struct {
	cfg *config.Config
	log *slog.Logger

	creds    *Credentials
	store    *draft.Store
	gw       *gateway.Client
	notifier *notify.Notifier
	cart     *cart.Reconciler
	orders   *orders.Aggregator
	admin    *admin.Client

	watchStop context.CancelFunc
}

// Open builds a session from configuration, resuming any persisted
// credential, and starts the cross-context watcher. A nil logger uses
// slog.Default().
func Open(cfg *config.Config, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	store, err := draft.Open(filepath.Join(cfg.StateDir, StoreFile))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	creds := NewCredentials(store)
	if err := creds.Resume(context.Background()); err != nil {
		log.Warn("resume credential failed", "error", err)
	}

	gw := gateway.New(cfg.BaseURL, http.DefaultClient, creds)
	notifier := notify.New(store, notify.DefaultChannel, cfg.WatchInterval, log)

	s := &Session{
		cfg:      cfg,
		log:      log,
		creds:    creds,
		store:    store,
		gw:       gw,
		notifier: notifier,
		cart:     cart.New(gw),
		orders:   orders.NewAggregator(gw, store, notifier, log),
		admin:    admin.New(gw, notifier, log),
	}

	watchCtx, stop := context.WithCancel(context.Background())
	s.watchStop = stop
	go notifier.Watch(watchCtx)

	return s, nil
}

// Login installs a credential for the identity and primes the cart
// mirror. Resumed sessions skip this.
func (s *Session) Login(ctx context.Context, identity, access, refresh string) error {
	if err := s.creds.Set(ctx, identity, access, refresh); err != nil {
		return err
	}
	if err := s.cart.Load(ctx); err != nil {
		// The mirror stays empty; the first cart view re-fetches.
		s.log.Warn("prime cart failed", "error", err)
	}
	return nil
}

// Logout clears the credential and all mirrored state. Drafts stay in
// the store, keyed by identity, for the next session of the same user.
func (s *Session) Logout() {
	s.creds.Invalidate()
	s.cart.Clear()
}

// Authenticated reports whether a credential is currently installed.
func (s *Session) Authenticated() bool { return s.creds.Present() }

// Identity returns the authenticated identity's stable key.
func (s *Session) Identity() string { return s.creds.Identity() }

// Cart returns the cart reconciler.
func (s *Session) Cart() *cart.Reconciler { return s.cart }

// Orders returns the order aggregator.
func (s *Session) Orders() *orders.Aggregator { return s.orders }

// Admin returns the operator-side client.
func (s *Session) Admin() *admin.Client { return s.admin }

// Notifier returns the cross-context notifier.
func (s *Session) Notifier() *notify.Notifier { return s.notifier }

// Poll runs the order poller until ctx ends, delivering every merged
// view to onUpdate. Intended as a goroutine owned by the UI.
func (s *Session) Poll(ctx context.Context, onUpdate func([]orders.Order)) {
	p := orders.NewPoller(s.orders, s.notifier, s.cfg.PollInterval, onUpdate, s.log)
	p.Run(ctx)
}

// Close stops the watcher and releases the store.
func (s *Session) Close() error {
	if s.watchStop != nil {
		s.watchStop()
	}
	return s.store.Close()
}
