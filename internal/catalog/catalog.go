// Package catalog holds the static model catalog. The catalog is built once
// at startup and injected where needed; it is never mutated afterwards, so
// concurrent reads need no locking.
package catalog

import (
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

type Catalog struct {
	models []domain.Model
	byID   map[string]int
}

// New copies the given models. At least one model must be enabled; every
// strategy has to be able to resolve a model or fail explicitly.
func New(models []domain.Model) (*Catalog, error) {
	c := &Catalog{
		models: make([]domain.Model, len(models)),
		byID:   make(map[string]int, len(models)),
	}

	anyEnabled := false
	for i, m := range models {
		if m.Timeout == 0 {
			if m.TimeoutSec > 0 {
				m.Timeout = time.Duration(m.TimeoutSec) * time.Second
			} else {
				m.Timeout = 30 * time.Second
			}
		}
		m.TimeoutSec = int(m.Timeout / time.Second)
		c.models[i] = m
		c.byID[m.ID] = i
		if m.Enabled {
			anyEnabled = true
		}
	}

	if !anyEnabled {
		return nil, domain.ErrNoEnabledModels
	}

	return c, nil
}

// Default mirrors the production model set.
func Default() *Catalog {
	c, _ := New([]domain.Model{
		{ID: "gpt-4o-mini", Class: domain.ClassFast, CostPer1K: 0.15, Priority: 1, Enabled: true, TimeoutSec: 30},
		{ID: "gpt-4o", Class: domain.ClassAdvanced, CostPer1K: 1.0, Priority: 3, Enabled: true, TimeoutSec: 30},
		{ID: "gemini-lite", Class: domain.ClassFast, CostPer1K: 0.1, Priority: 1, Enabled: false, TimeoutSec: 30},
		{ID: "gemini", Class: domain.ClassBalanced, CostPer1K: 0.5, Priority: 2, Enabled: false, TimeoutSec: 30},
		{ID: "deepseek-chat", Class: domain.ClassBalanced, CostPer1K: 0.3, Priority: 2, Enabled: true, TimeoutSec: 60},
		{ID: "deepseek-r1", Class: domain.ClassReasoning, CostPer1K: 0.8, Priority: 3, Enabled: true, TimeoutSec: 60},
		{ID: "o3-mini", Class: domain.ClassFast, CostPer1K: 0.2, Priority: 1, Enabled: true, TimeoutSec: 30},
		{ID: "grok-2", Class: domain.ClassAdvanced, CostPer1K: 0.9, Priority: 3, Enabled: true, TimeoutSec: 30},
		{ID: "grok-3-mini-beta", Class: domain.ClassFast, CostPer1K: 0.25, Priority: 1, Enabled: true, TimeoutSec: 30},
	})
	return c
}

func (c *Catalog) Get(id string) (domain.Model, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Model{}, false
	}
	return c.models[i], true
}

// Enabled returns the enabled subset in catalog order.
func (c *Catalog) Enabled() []domain.Model {
	out := make([]domain.Model, 0, len(c.models))
	for _, m := range c.models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// CheapestEnabled returns the enabled model with the lowest cost. Ties keep
// the first model in catalog order, so selection is deterministic.
func (c *Catalog) CheapestEnabled() (domain.Model, error) {
	var best domain.Model
	found := false
	for _, m := range c.models {
		if !m.Enabled {
			continue
		}
		if !found || m.CostPer1K < best.CostPer1K {
			best = m
			found = true
		}
	}
	if !found {
		return domain.Model{}, domain.ErrNoEnabledModels
	}
	return best, nil
}

// FirstPreferred returns the first entry of preferred that is enabled and of
// the wanted class. When none match it falls back to the pinned default; a
// fallback that is missing from the catalog still resolves with sane timeout
// defaults so a misconfigured preference list cannot break dispatch.
func (c *Catalog) FirstPreferred(preferred []string, class domain.ModelClass, fallback string) domain.Model {
	for _, id := range preferred {
		if m, ok := c.Get(id); ok && m.Enabled && m.Class == class {
			return m
		}
	}
	if m, ok := c.Get(fallback); ok {
		return m
	}
	return domain.Model{ID: fallback, Class: class, Enabled: true, Timeout: 30 * time.Second, TimeoutSec: 30}
}

// TimeoutFor returns the per-call timeout for a model, defaulting to 30s for
// models outside the catalog.
func (c *Catalog) TimeoutFor(modelID string) time.Duration {
	if m, ok := c.Get(modelID); ok && m.Timeout > 0 {
		return m.Timeout
	}
	return 30 * time.Second
}
