package syncer

import (
	"cmp"
	"slices"
	"time"

	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
)

func (p *Pipeline) markStale(n indexclient.Notification, err error) {
	p.stale.Compute(n.EntityID, func(old StaleMarker, loaded bool) (StaleMarker, bool) {
		if !loaded {
			old = StaleMarker{Entity: n.EntityID, Since: time.Now()}
		}
		old.Components = slices.Clone(old.Components)
		for _, c := range n.Changed {
			if !slices.Contains(old.Components, c) {
				old.Components = append(old.Components, c)
			}
		}
		slices.Sort(old.Components)
		old.Err = err.Error()
		return old, false
	})
	p.metrics.stale.Set(float64(p.stale.Size()))
}

func (p *Pipeline) clearStale(entity ir.EntityID) {
	if _, ok := p.stale.LoadAndDelete(entity); ok {
		p.metrics.stale.Set(float64(p.stale.Size()))
		p.logger.Info("entity fresh again", "entity_id", entity)
	}
}

// IsStale reports whether the entity's last pull failed.
func (p *Pipeline) IsStale(entity ir.EntityID) bool {
	_, ok := p.stale.Load(entity)
	return ok
}

// Stale lists stale entities in id order.
func (p *Pipeline) Stale() []StaleMarker {
	out := make([]StaleMarker, 0, p.stale.Size())
	p.stale.Range(func(_ ir.EntityID, m StaleMarker) bool {
		m.Components = slices.Clone(m.Components)
		out = append(out, m)
		return true
	})
	slices.SortFunc(out, func(a, b StaleMarker) int {
		return cmp.Compare(a.Entity, b.Entity)
	})
	return out
}
