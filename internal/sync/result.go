package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/centroplan/vysync/pkg/entities"
)

// Counters summarizes one pass.
type Counters struct {
	Created  int
	Updated  int
	NoOp     int
	Orphaned int
	Failed   int
}

// Failure records one entity that could not be processed.
type Failure struct {
	Kind     entities.Kind
	EntityID string
	Stage    string
	Reason   string
}

// Result is the summary of one engine run.
type Result struct {
	RunID    uuid.UUID
	DryRun   bool
	Started  time.Time
	Finished time.Time

	Sites     Counters
	Equipment Counters
	Tickets   Counters

	Conflicts int
	Failures  []Failure
}

// Totals aggregates the per-kind counters.
func (r *Result) Totals() Counters {
	return Counters{
		Created:  r.Sites.Created + r.Equipment.Created + r.Tickets.Created,
		Updated:  r.Sites.Updated + r.Equipment.Updated + r.Tickets.Updated,
		NoOp:     r.Sites.NoOp + r.Equipment.NoOp + r.Tickets.NoOp,
		Orphaned: r.Sites.Orphaned + r.Equipment.Orphaned + r.Tickets.Orphaned,
		Failed:   r.Sites.Failed + r.Equipment.Failed + r.Tickets.Failed,
	}
}

// counters returns the counter block for a kind.
func (r *Result) counters(kind entities.Kind) *Counters {
	switch kind {
	case entities.KindSite:
		return &r.Sites
	case entities.KindEquipment:
		return &r.Equipment
	default:
		return &r.Tickets
	}
}

// fail records a per-entity failure and bumps the counter.
func (r *Result) fail(kind entities.Kind, entityID, stage string, err error) {
	r.counters(kind).Failed++
	r.Failures = append(r.Failures, Failure{
		Kind:     kind,
		EntityID: entityID,
		Stage:    stage,
		Reason:   err.Error(),
	})
}
