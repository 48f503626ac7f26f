// Package entities defines the canonical, system-agnostic representation
// of the records reconciled between the monitoring platform (VCOM) and
// the field-service platform (Yuman). Raw API payloads are converted into
// these values at the boundary; nothing downstream touches response
// shapes. Each kind enumerates its comparable fields explicitly together
// with a typed normalization rule, so the diff engine never introspects
// record shapes at runtime.
package entities

// Kind identifies an entity kind handled by the reconciliation engine.
type Kind string

// Entity kinds. The engine supports exactly this fixed set.
const (
	KindSite      Kind = "site"
	KindEquipment Kind = "equipment"
	KindTicket    Kind = "ticket"
)

// SystemID identifies one of the two external systems of record.
type SystemID string

// The two external systems.
const (
	SystemVCOM  SystemID = "vcom"
	SystemYuman SystemID = "yuman"
)

// FieldName names a comparable field of a canonical entity.
type FieldName string

// FieldSet is a set of field names, used for per-kind ignore rules.
type FieldSet map[FieldName]struct{}

// NewFieldSet builds a FieldSet from the given names.
func NewFieldSet(names ...FieldName) FieldSet {
	s := make(FieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Contains reports whether the set contains the given field name.
func (s FieldSet) Contains(name FieldName) bool {
	_, ok := s[name]
	return ok
}

// FieldEqual compares two normalized field values.
func FieldEqual(a, b string) bool {
	return a == b
}
