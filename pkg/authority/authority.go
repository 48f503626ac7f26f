// Package authority decides which external system wins when both sides
// of a correlation have diverged on the same field. Authority is explicit
// per field pattern per entity kind; absent a designation, the monitoring
// platform (VCOM) is the source of truth.
package authority

import (
	"path/filepath"

	"github.com/centroplan/vysync/pkg/entities"
)

// Authority determines which system is authoritative for each field.
type Authority interface {
	// Find returns the authority configuration for a specific field,
	// or nil when no designation exists.
	Find(field entities.FieldName, kind entities.Kind) *Field

	// Owner returns the authoritative system for a field, falling back
	// to VCOM when no designation exists.
	Owner(field entities.FieldName, kind entities.Kind) entities.SystemID

	// List returns all authorities for an entity kind.
	List(kind entities.Kind) []Field
}

// Field designates the authoritative system for a field pattern.
type Field struct {
	Pattern  string            // field name or pattern, e.g. "aldi_*"
	Source   entities.SystemID // which system is authoritative
	Priority int               // higher wins when patterns overlap
}

// authorities holds the per-kind designations.
type authorities struct {
	site      []Field
	equipment []Field
	ticket    []Field
}

// New creates the standard authority configuration. Yuman is designated
// authoritative for the fields only ever entered by field staff: the
// ALDI business identifiers on sites and the workorder status and
// priority on tickets. Everything else defaults to VCOM.
func New() Authority {
	return &authorities{
		site: []Field{
			{Pattern: "aldi_*", Source: entities.SystemYuman, Priority: 10},
		},
		ticket: []Field{
			{Pattern: string(entities.TicketFieldStatus), Source: entities.SystemYuman, Priority: 10},
			{Pattern: string(entities.TicketFieldPriority), Source: entities.SystemYuman, Priority: 10},
		},
	}
}

// NewWithOverrides creates an authority configuration with additional
// per-deployment designations layered over the defaults.
func NewWithOverrides(kind entities.Kind, overrides ...Field) Authority {
	a := New().(*authorities)
	switch kind {
	case entities.KindSite:
		a.site = append(a.site, overrides...)
	case entities.KindEquipment:
		a.equipment = append(a.equipment, overrides...)
	case entities.KindTicket:
		a.ticket = append(a.ticket, overrides...)
	}
	return a
}

// Find returns the authority configuration for a specific field.
func (a *authorities) Find(field entities.FieldName, kind entities.Kind) *Field {
	return ByField(field, a.List(kind))
}

// Owner returns the authoritative system for a field.
func (a *authorities) Owner(field entities.FieldName, kind entities.Kind) entities.SystemID {
	if f := a.Find(field, kind); f != nil {
		return f.Source
	}
	return entities.SystemVCOM
}

// List returns all authorities for an entity kind.
func (a *authorities) List(kind entities.Kind) []Field {
	switch kind {
	case entities.KindSite:
		return a.site
	case entities.KindEquipment:
		return a.equipment
	case entities.KindTicket:
		return a.ticket
	}
	return nil
}

// ByField returns the highest priority authority matching a field.
func ByField(field entities.FieldName, fields []Field) *Field {
	var bestMatch *Field
	var bestPriority int
	var bestMatchLength int

	for i, f := range fields {
		if MatchesPattern(string(field), f.Pattern) {
			// Prioritize by: 1) priority, 2) pattern specificity (length), 3) order
			patternLength := len(f.Pattern)
			if f.Priority > bestPriority ||
				(f.Priority == bestPriority && patternLength > bestMatchLength) {
				bestMatch = &fields[i]
				bestPriority = f.Priority
				bestMatchLength = patternLength
			}
		}
	}

	return bestMatch
}

// MatchesPattern checks if a field name matches a pattern (supports * wildcards).
func MatchesPattern(field, pattern string) bool {
	if field == pattern {
		return true
	}

	// Handle simple wildcard at the end
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(field) >= len(prefix) && field[:len(prefix)] == prefix
	}

	matched, err := filepath.Match(pattern, field)
	if err != nil {
		return false
	}
	return matched
}
