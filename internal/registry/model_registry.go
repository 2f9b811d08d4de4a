package registry

import (
	"sync"
	"sync/atomic"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
)

// ModelRegistry publishes catalog snapshots with copy-on-write.
// Reads load the atomic pointer and work with an immutable snapshot.
// Writes take writerMu, build a new snapshot, and store it atomically.
type ModelRegistry struct {
	state    atomic.Pointer[Catalog]
	static   atomic.Pointer[[]Model]
	writerMu sync.Mutex
}

// NewModelRegistry returns a registry whose initial snapshot holds only the static models.
func NewModelRegistry(static []Model) *ModelRegistry {
	r := &ModelRegistry{}
	r.setStatic(static)
	r.state.Store(NewCatalog(static))
	return r
}

// Snapshot returns the current catalog. The result is never nil.
func (r *ModelRegistry) Snapshot() *Catalog {
	if c := r.state.Load(); c != nil {
		return c
	}
	return NewCatalog(nil)
}

// Replace publishes fetched backend models, followed by any static models the backend did not report.
func (r *ModelRegistry) Replace(fetched []Model) *Catalog {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	next := NewCatalog(fetched).merge(r.staticModels())
	prev := r.state.Swap(next)
	metrics.CatalogModels.Set(float64(next.Len()))
	if prev == nil || prev.Len() != next.Len() {
		log.Infof("registry: catalog now has %d models", next.Len())
	}
	return next
}

// SetStaticModels swaps the configured static models and republishes the current snapshot.
func (r *ModelRegistry) SetStaticModels(static []Model) {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	r.setStatic(static)
	current := r.state.Load()
	var fetched []Model
	if current != nil {
		fetched = current.Models()
	}
	r.state.Store(NewCatalog(fetched).merge(static))
}

func (r *ModelRegistry) setStatic(static []Model) {
	cp := append([]Model(nil), static...)
	r.static.Store(&cp)
}

func (r *ModelRegistry) staticModels() []Model {
	if p := r.static.Load(); p != nil {
		return *p
	}
	return nil
}
