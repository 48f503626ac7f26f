package diff

import (
	"sort"

	"github.com/centroplan/vysync/pkg/entities"
)

// ActionType classifies what a reconciliation pass must do for one entity.
type ActionType string

// Action types.
const (
	// ActionCreateInYuman creates the entity on the Yuman side.
	ActionCreateInYuman ActionType = "create_in_yuman"
	// ActionCreateInVCOM creates the entity on the VCOM side.
	ActionCreateInVCOM ActionType = "create_in_vcom"
	// ActionUpdate pushes changed fields to the non-authoritative side.
	ActionUpdate ActionType = "update"
	// ActionNoOp means both sides already agree on all non-ignored fields.
	ActionNoOp ActionType = "noop"
	// ActionFlagOrphan reports an entity mapped on exactly one side.
	// Orphans are surfaced, never auto-resolved.
	ActionFlagOrphan ActionType = "flag_orphan"
)

// FieldChange is one field whose value must be written to a target system.
type FieldChange struct {
	Field    entities.FieldName
	OldValue string
	NewValue string
	Source   entities.SystemID // side that supplied NewValue
}

// Update groups the changes destined for one target system.
type Update struct {
	Target  entities.SystemID
	Changes []FieldChange
}

// Conflict records a field where both systems diverged from the stored
// snapshot since the previous pass. The winner is picked by authority;
// the orchestrator logs conflicts for operator visibility.
type Conflict struct {
	Field       entities.FieldName
	VCOMValue   string
	YumanValue  string
	StoredValue string
	Winner      entities.SystemID
}

// Action is the diff engine's verdict for one correlated entity.
type Action struct {
	Type ActionType

	// Fields holds the normalized source values for create actions.
	Fields map[entities.FieldName]string

	// Updates holds at most one entry per target system.
	Updates []Update

	// OrphanSide names the side missing its counterpart for flag_orphan.
	OrphanSide entities.SystemID

	// Conflicts lists authority-resolved double divergences.
	Conflicts []Conflict
}

// NoOp reports whether the action requires no work.
func (a Action) NoOp() bool { return a.Type == ActionNoOp }

// ChangesFor returns the changes destined for the given system.
func (a Action) ChangesFor(target entities.SystemID) []FieldChange {
	for _, u := range a.Updates {
		if u.Target == target {
			return u.Changes
		}
	}
	return nil
}

// sortChanges keeps changesets deterministic for logging and tests.
func sortChanges(changes []FieldChange) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Field < changes[j].Field
	})
}
