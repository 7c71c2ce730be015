package eligibility

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homereach/lead-exchange-backend/internal/domain/buyer"
)

// Snapshot bundles one buyer's full configuration: the buyer record,
// its per-service configs, and its zip coverage.
type Snapshot struct {
	Buyer   *buyer.Buyer
	Configs []*buyer.ServiceConfig
	Zones   []*buyer.ZipCoverage
}

func (s *Snapshot) configFor(serviceTypeID string) *buyer.ServiceConfig {
	for _, c := range s.Configs {
		if c.ServiceTypeID == serviceTypeID {
			return c
		}
	}
	return nil
}

// Registry is the in-memory fallback source of buyer configuration. The
// daemon seeds it at boot and refreshes it on an interval; the resolver
// reads it when live persistence reads fail, so an outage degrades the
// auction instead of stopping it.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]*Snapshot
	updatedAt time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		snapshots: make(map[uuid.UUID]*Snapshot),
	}
}

// Put stores or replaces one buyer's snapshot
func (r *Registry) Put(snap *Snapshot) {
	if snap == nil || snap.Buyer == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snap.Buyer.ID] = snap
	r.updatedAt = time.Now()
}

// Replace swaps the whole registry contents in one step
func (r *Registry) Replace(snaps []*Snapshot) {
	next := make(map[uuid.UUID]*Snapshot, len(snaps))
	for _, snap := range snaps {
		if snap == nil || snap.Buyer == nil {
			continue
		}
		next[snap.Buyer.ID] = snap
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = next
	r.updatedAt = time.Now()
}

// Remove drops one buyer's snapshot
func (r *Registry) Remove(buyerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, buyerID)
}

// Len returns the number of buyers in the registry
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots)
}

// UpdatedAt returns when the registry last changed
func (r *Registry) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// candidatesFor returns the buyers covering the service type and zip,
// ordered by zone priority then buyer ID so fallback resolution stays
// deterministic.
func (r *Registry) candidatesFor(serviceTypeID, zipCode string) []candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []candidate
	for _, snap := range r.snapshots {
		for _, z := range snap.Zones {
			if z.ServiceTypeID != serviceTypeID || z.ZipCode != zipCode || !z.Active {
				continue
			}
			out = append(out, candidate{
				buyer:  snap.Buyer,
				config: snap.configFor(serviceTypeID),
				zone:   z,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].zone.Priority != out[j].zone.Priority {
			return out[i].zone.Priority < out[j].zone.Priority
		}
		return out[i].buyer.ID.String() < out[j].buyer.ID.String()
	})

	return out
}
