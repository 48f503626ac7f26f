package entities

// Ticket field names.
const (
	TicketFieldTitle    FieldName = "title"
	TicketFieldStatus   FieldName = "status"
	TicketFieldPriority FieldName = "priority"
)

// TicketFields enumerates the comparable fields of a ticket.
var TicketFields = []FieldName{
	TicketFieldTitle,
	TicketFieldStatus,
	TicketFieldPriority,
}

// Ticket is the canonical representation of a VCOM ticket / Yuman
// workorder pair.
type Ticket struct {
	VcomTicketID     string
	YumanWorkorderID int

	// VcomSystemKey ties the ticket to its site.
	VcomSystemKey string

	Title    string
	Status   string
	Priority string

	Ignore bool
}

// Kind returns KindTicket.
func (t Ticket) Kind() Kind { return KindTicket }

// FieldValue returns the normalized comparable value for the given field.
func (t Ticket) FieldValue(f FieldName) string {
	switch f {
	case TicketFieldTitle:
		return NormalizeString(t.Title)
	case TicketFieldStatus:
		return NormalizeString(t.Status)
	case TicketFieldPriority:
		return NormalizeString(t.Priority)
	}
	return ""
}

// Normalized returns a copy with every field in canonical form.
func (t Ticket) Normalized() Ticket {
	out := t
	out.Title = NormalizeString(t.Title)
	out.Status = NormalizeString(t.Status)
	out.Priority = NormalizeString(t.Priority)
	return out
}

// Fields returns the comparable field list for a kind.
func Fields(kind Kind) []FieldName {
	switch kind {
	case KindSite:
		return SiteFields
	case KindEquipment:
		return EquipmentFields
	case KindTicket:
		return TicketFields
	}
	return nil
}
