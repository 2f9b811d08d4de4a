package registry

import (
	"context"
	"fmt"
	"time"

	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"golang.org/x/sync/singleflight"
)

// Source lists the models the backend currently serves.
type Source interface {
	ListModels(ctx context.Context) ([]ir.ModelEntry, error)
}

// CatalogLoader refreshes a ModelRegistry from a Source. Concurrent refreshes share one fetch.
type CatalogLoader struct {
	source   Source
	registry *ModelRegistry
	timeout  time.Duration
	sf       singleflight.Group
}

func NewCatalogLoader(source Source, registry *ModelRegistry, timeout time.Duration) *CatalogLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CatalogLoader{source: source, registry: registry, timeout: timeout}
}

// Refresh fetches the backend model list and publishes it. On failure the previous snapshot stays.
func (l *CatalogLoader) Refresh(ctx context.Context) (*Catalog, error) {
	ch := l.sf.DoChan("refresh", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		entries, err := l.source.ListModels(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		models := make([]Model, 0, len(entries))
		for _, e := range entries {
			models = append(models, Model{
				ID:                 e.ID,
				OwnedBy:            e.OwnedBy,
				Name:               e.Name,
				SupportedEndpoints: e.SupportedEndpoints,
			})
		}
		return l.registry.Replace(models), nil
	})

	select {
	case <-ctx.Done():
		return l.registry.Snapshot(), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			log.Warnf("registry: catalog refresh failed, keeping %d cached models: %v", l.registry.Snapshot().Len(), res.Err)
			return l.registry.Snapshot(), res.Err
		}
		return res.Val.(*Catalog), nil
	}
}
