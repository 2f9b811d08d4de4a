package registry

import (
	"context"
	"fmt"
	"sync"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/robfig/cron/v3"
)

// DefaultRefreshSchedule refreshes the catalog every ten minutes.
const DefaultRefreshSchedule = "*/10 * * * *"

// Refresher runs a CatalogLoader on a cron schedule.
type Refresher struct {
	loader   *CatalogLoader
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewRefresher(loader *CatalogLoader, schedule string) *Refresher {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	return &Refresher{loader: loader, schedule: schedule}
}

// ValidateSchedule checks a standard five-field cron expression (descriptors such as @every are allowed).
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start performs one refresh immediately, then schedules the rest. It stops when ctx is done.
// A failed initial refresh is logged, not returned; the static catalog keeps serving.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if err := ValidateSchedule(r.schedule); err != nil {
		return err
	}

	if _, err := r.loader.Refresh(ctx); err != nil {
		log.Warnf("registry: initial catalog refresh failed: %v", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.run(ctx) }); err != nil {
		return fmt.Errorf("schedule catalog refresh: %w", err)
	}
	c.Start()
	r.cron = c
	r.running = true
	log.Infof("registry: catalog refresh scheduled (%s)", r.schedule)

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

func (r *Refresher) run(ctx context.Context) {
	catalog, err := r.loader.Refresh(ctx)
	if err != nil {
		return
	}
	log.Debugf("registry: scheduled refresh loaded %d models", catalog.Len())
}

// Stop halts the schedule and waits for a running refresh to return.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
}
