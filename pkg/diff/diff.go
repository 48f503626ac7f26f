// Package diff computes the minimal set of changed fields between the
// canonical snapshots of both systems and classifies the action each
// entity requires. Diff is a pure function of its inputs: no I/O, no
// hidden state.
package diff

import (
	"github.com/centroplan/vysync/pkg/authority"
	"github.com/centroplan/vysync/pkg/entities"
)

// Record is the read surface the engine needs from a canonical entity.
// Site, Equipment and Ticket all satisfy it.
type Record interface {
	Kind() entities.Kind
	FieldValue(f entities.FieldName) string
}

// Stored is the correlation record view the engine diffs against: key
// presence, the ignore flag, and the last-synced attribute snapshot.
type Stored struct {
	HasVCOMKey  bool
	HasYumanKey bool
	Ignore      bool
	Snapshot    map[entities.FieldName]string
}

// Engine classifies entities. It is safe for concurrent use.
type Engine struct {
	authority authority.Authority

	// creatable marks the systems on which missing entities may be
	// created. VCOM's API surface is read-only for sites and equipment,
	// so records known only to Yuman become orphans there instead.
	creatable map[entities.SystemID]bool
}

// Option configures the engine.
type Option func(*Engine)

// WithAuthority overrides the default field authority configuration.
func WithAuthority(a authority.Authority) Option {
	return func(e *Engine) { e.authority = a }
}

// WithCreatable marks a system as accepting entity creation.
func WithCreatable(system entities.SystemID, ok bool) Option {
	return func(e *Engine) { e.creatable[system] = ok }
}

// New creates a diff engine with default authorities. By default only
// Yuman accepts creations.
func New(opts ...Option) *Engine {
	e := &Engine{
		authority: authority.New(),
		creatable: map[entities.SystemID]bool{
			entities.SystemYuman: true,
			entities.SystemVCOM:  false,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Diff computes the action required for one correlated entity. Either
// side may be nil when the entity was not observed there. The stored
// record reflects the correlation store's last-synced state.
func (e *Engine) Diff(kind entities.Kind, v, y Record, stored Stored, ignore entities.FieldSet) Action {
	// Ignored records are frozen: excluded from diffing and from orphan
	// detection, but still stored.
	if stored.Ignore {
		return Action{Type: ActionNoOp}
	}

	switch {
	case v != nil && y == nil:
		if stored.HasYumanKey {
			// Mapped but missing from the Yuman fetch: the counterpart
			// disappeared. Deletion is a human decision.
			return Action{Type: ActionFlagOrphan, OrphanSide: entities.SystemYuman}
		}
		if e.creatable[entities.SystemYuman] {
			return Action{Type: ActionCreateInYuman, Fields: fieldValues(kind, v)}
		}
		return Action{Type: ActionFlagOrphan, OrphanSide: entities.SystemYuman}

	case y != nil && v == nil:
		if stored.HasVCOMKey {
			return Action{Type: ActionFlagOrphan, OrphanSide: entities.SystemVCOM}
		}
		if e.creatable[entities.SystemVCOM] {
			return Action{Type: ActionCreateInVCOM, Fields: fieldValues(kind, y)}
		}
		return Action{Type: ActionFlagOrphan, OrphanSide: entities.SystemVCOM}

	case v == nil && y == nil:
		// Known to the store only. Whichever key is present has lost its
		// remote record; report the emptier side.
		side := entities.SystemVCOM
		if stored.HasVCOMKey && !stored.HasYumanKey {
			side = entities.SystemYuman
		}
		return Action{Type: ActionFlagOrphan, OrphanSide: side}
	}

	return e.compare(kind, v, y, stored, ignore)
}

// compare walks the statically enumerated field list for the kind and
// builds per-target changesets for every non-ignored inequality.
func (e *Engine) compare(kind entities.Kind, v, y Record, stored Stored, ignore entities.FieldSet) Action {
	var (
		changesForV []FieldChange
		changesForY []FieldChange
		conflicts   []Conflict
	)

	for _, f := range entities.Fields(kind) {
		if ignore.Contains(f) {
			continue
		}
		vVal := v.FieldValue(f)
		yVal := y.FieldValue(f)
		if entities.FieldEqual(vVal, yVal) {
			continue
		}

		// An empty value never overwrites a filled one: a system that
		// does not carry a field cannot win it.
		var winner entities.SystemID
		switch {
		case vVal == "":
			winner = entities.SystemYuman
		case yVal == "":
			winner = entities.SystemVCOM
		default:
			winner = e.winner(kind, f, vVal, yVal, stored, &conflicts)
		}

		if winner == entities.SystemVCOM {
			changesForY = append(changesForY, FieldChange{
				Field:    f,
				OldValue: yVal,
				NewValue: vVal,
				Source:   entities.SystemVCOM,
			})
		} else {
			changesForV = append(changesForV, FieldChange{
				Field:    f,
				OldValue: vVal,
				NewValue: yVal,
				Source:   entities.SystemYuman,
			})
		}
	}

	if len(changesForV) == 0 && len(changesForY) == 0 {
		return Action{Type: ActionNoOp, Conflicts: conflicts}
	}

	action := Action{Type: ActionUpdate, Conflicts: conflicts}
	if len(changesForY) > 0 {
		sortChanges(changesForY)
		action.Updates = append(action.Updates, Update{Target: entities.SystemYuman, Changes: changesForY})
	}
	if len(changesForV) > 0 {
		sortChanges(changesForV)
		action.Updates = append(action.Updates, Update{Target: entities.SystemVCOM, Changes: changesForV})
	}
	return action
}

// winner picks the side whose value is applied for a differing field.
// A side that still matches the stored snapshot has not changed since
// the last pass, so the other side's edit wins. When both diverged, the
// authority designation decides and the conflict is recorded.
func (e *Engine) winner(kind entities.Kind, f entities.FieldName, vVal, yVal string, stored Stored, conflicts *[]Conflict) entities.SystemID {
	snapVal, hasSnap := stored.Snapshot[f]
	if hasSnap {
		vChanged := !entities.FieldEqual(vVal, snapVal)
		yChanged := !entities.FieldEqual(yVal, snapVal)
		switch {
		case vChanged && !yChanged:
			return entities.SystemVCOM
		case yChanged && !vChanged:
			return entities.SystemYuman
		case vChanged && yChanged:
			w := e.authority.Owner(f, kind)
			*conflicts = append(*conflicts, Conflict{
				Field:       f,
				VCOMValue:   vVal,
				YumanValue:  yVal,
				StoredValue: snapVal,
				Winner:      w,
			})
			return w
		}
	}
	// No usable snapshot: authority (default VCOM) decides.
	return e.authority.Owner(f, kind)
}

// fieldValues captures the non-empty normalized values of a record,
// used as the payload of create actions.
func fieldValues(kind entities.Kind, r Record) map[entities.FieldName]string {
	out := make(map[entities.FieldName]string)
	for _, f := range entities.Fields(kind) {
		if v := r.FieldValue(f); v != "" {
			out[f] = v
		}
	}
	return out
}
