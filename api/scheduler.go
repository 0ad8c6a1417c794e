/*
scheduler.go - Background registry refresh

PURPOSE:
  Several server instances may share one database. An upload through one
  instance reloads that instance only; the others pick the change up here.
  The scheduler periodically fingerprints the stored documents and reloads
  the registry when the fingerprint moves.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Fingerprint = ordered (id, revision, checksum) of every document
  - Unchanged fingerprint: nothing happens, no audit entry
  - A rejected reload keeps the previous tables (registry guarantee) and
    is retried on the next tick

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReloadScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Reload, TriggerReload (manual reload)
  - generic/registry.go: Atomic snapshot swap
*/
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/warp/notary-engine/store/sqlite"
)

// ReloadScheduler refreshes the registry when stored documents change.
type ReloadScheduler struct {
	Store         *sqlite.Store
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastFingerprint string
}

// NewReloadScheduler creates a new scheduler.
func NewReloadScheduler(store *sqlite.Store, handler *Handler) *ReloadScheduler {
	return &ReloadScheduler{
		Store:         store,
		Handler:       handler,
		CheckInterval: time.Minute,
		Enabled:       true,
	}
}

// Start begins the scheduler. The documents loaded at startup are taken
// as the baseline.
func (rs *ReloadScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	log := rs.Handler.Logger
	if !rs.Enabled || rs.Store == nil {
		log.Info("reload scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	fp, err := rs.fingerprint(context.Background())
	if err != nil {
		log.Warn("reload scheduler: initial fingerprint failed", "error", err)
	}
	rs.lastFingerprint = fp

	// A stopped scheduler has closed its channel; each run gets a fresh one.
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(rs.ticker.C, rs.stop)

	log.Info("reload scheduler started", "interval", rs.CheckInterval)
}

// Stop stops the scheduler.
func (rs *ReloadScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Handler.Logger.Info("reload scheduler stopped")
	}
}

func (rs *ReloadScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	for {
		select {
		case <-tick:
			rs.CheckOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// CheckOnce reloads the registry if the stored documents changed since the
// last successful check. It reports whether a reload was applied.
func (rs *ReloadScheduler) CheckOnce(ctx context.Context) bool {
	log := rs.Handler.Logger

	fp, err := rs.fingerprint(ctx)
	if err != nil {
		log.Warn("reload scheduler: fingerprint failed", "error", err)
		return false
	}
	if fp == rs.lastFingerprint {
		return false
	}

	if _, err := rs.Handler.Reload(ctx, "scheduler"); err != nil {
		// Keep the old fingerprint so the next tick retries.
		return false
	}
	rs.lastFingerprint = fp
	return true
}

func (rs *ReloadScheduler) fingerprint(ctx context.Context) (string, error) {
	docs, err := rs.Store.ListDocuments(ctx)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, d := range docs {
		fmt.Fprintf(h, "%s:%d:%s;", d.ID, d.Revision, d.Checksum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
