package registry

import (
	"strings"
	"time"
)

// Model is one backend-servable model.
type Model struct {
	ID                 string   `json:"id"`
	OwnedBy            string   `json:"owned_by,omitempty"`
	Name               string   `json:"name,omitempty"`
	SupportedEndpoints []string `json:"supported_endpoints,omitempty"`
}

// Catalog is an immutable snapshot of the backend model set, in first-seen order.
// Never modify a Catalog in place; build a new one with NewCatalog.
type Catalog struct {
	models    []Model
	index     map[string]int
	lower     map[string]int
	updatedAt time.Time
}

// NewCatalog builds a snapshot. Duplicate and empty IDs are dropped; the first occurrence wins.
func NewCatalog(models []Model) *Catalog {
	c := &Catalog{
		models:    make([]Model, 0, len(models)),
		index:     make(map[string]int, len(models)),
		lower:     make(map[string]int, len(models)),
		updatedAt: time.Now(),
	}
	for _, m := range models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			continue
		}
		if _, dup := c.index[m.ID]; dup {
			continue
		}
		m.SupportedEndpoints = append([]string(nil), m.SupportedEndpoints...)
		c.index[m.ID] = len(c.models)
		if _, dup := c.lower[strings.ToLower(m.ID)]; !dup {
			c.lower[strings.ToLower(m.ID)] = len(c.models)
		}
		c.models = append(c.models, m)
	}
	return c
}

// CatalogOf is shorthand for a catalog of bare IDs.
func CatalogOf(ids ...string) *Catalog {
	models := make([]Model, len(ids))
	for i, id := range ids {
		models[i] = Model{ID: id}
	}
	return NewCatalog(models)
}

// Len returns the number of models. A nil catalog is empty.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.models)
}

// Has reports whether id is an exact member.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[id]
	return ok
}

// lookup finds id exactly, then case-insensitively, and returns the catalog's spelling.
func (c *Catalog) lookup(id string) (string, bool) {
	if c == nil || id == "" {
		return "", false
	}
	if i, ok := c.index[id]; ok {
		return c.models[i].ID, true
	}
	if i, ok := c.lower[strings.ToLower(id)]; ok {
		return c.models[i].ID, true
	}
	return "", false
}

// Get returns the model entry for an exact ID.
func (c *Catalog) Get(id string) (Model, bool) {
	if c == nil {
		return Model{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Model{}, false
	}
	return c.models[i], true
}

// Models returns a copy of the models in catalog order.
func (c *Catalog) Models() []Model {
	if c == nil {
		return nil
	}
	return append([]Model(nil), c.models...)
}

// IDs returns the model IDs in catalog order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, len(c.models))
	for i, m := range c.models {
		ids[i] = m.ID
	}
	return ids
}

// Supports reports whether a model advertises endpoint. Models that advertise
// nothing are assumed to support every endpoint.
func (c *Catalog) Supports(id, endpoint string) bool {
	m, ok := c.Get(id)
	if !ok {
		return false
	}
	if len(m.SupportedEndpoints) == 0 {
		return true
	}
	for _, e := range m.SupportedEndpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}

// UpdatedAt is when the snapshot was built.
func (c *Catalog) UpdatedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.updatedAt
}

// longestPrefix returns the longest member that is a prefix of s ending on a
// component boundary, so gpt-4 never claims gpt-4o-mini.
// Ties keep the first-seen member.
func (c *Catalog) longestPrefix(s string) (string, bool) {
	if c == nil || s == "" {
		return "", false
	}
	best := -1
	ls := strings.ToLower(s)
	for i, m := range c.models {
		id := strings.ToLower(m.ID)
		if !strings.HasPrefix(ls, id) || !atComponentBoundary(ls, len(id)) {
			continue
		}
		if best < 0 || len(m.ID) > len(c.models[best].ID) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return c.models[best].ID, true
}

// merge returns a new catalog holding c's models followed by extra models not already present.
func (c *Catalog) merge(extra []Model) *Catalog {
	all := append(c.Models(), extra...)
	return NewCatalog(all)
}

// atComponentBoundary reports whether s ends at i or continues with '-' or '.'.
func atComponentBoundary(s string, i int) bool {
	return i == len(s) || s[i] == '-' || s[i] == '.'
}
