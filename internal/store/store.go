// Package store persists the correlation state between System V and
// System Y. The mapping tables are the source of truth: each row ties
// a V key to a Y id and keeps the last synced snapshot of the record,
// which the diff engine uses as the three-way base.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/centroplan/vysync/pkg/entities"
)

// SiteRecord is one row of the sites mapping.
type SiteRecord struct {
	ID int64
	entities.Site
	UpdatedAt time.Time
}

// EquipmentRecord is one row of the equipment mapping.
type EquipmentRecord struct {
	ID int64
	entities.Equipment
	UpdatedAt time.Time
}

// TicketRecord is one row of the tickets mapping.
type TicketRecord struct {
	ID int64
	entities.Ticket
	UpdatedAt time.Time
}

// Snapshot renders the stored site as the diff base.
func (r SiteRecord) Snapshot() map[entities.FieldName]string {
	return snapshot(r.Site)
}

// Snapshot renders the stored equipment as the diff base.
func (r EquipmentRecord) Snapshot() map[entities.FieldName]string {
	return snapshot(r.Equipment)
}

// Snapshot renders the stored ticket as the diff base.
func (r TicketRecord) Snapshot() map[entities.FieldName]string {
	return snapshot(r.Ticket)
}

type fieldValuer interface {
	Kind() entities.Kind
	FieldValue(entities.FieldName) string
}

func snapshot(v fieldValuer) map[entities.FieldName]string {
	fields := entities.Fields(v.Kind())
	out := make(map[entities.FieldName]string, len(fields))
	for _, f := range fields {
		out[f] = v.FieldValue(f)
	}
	return out
}

// SyncLog is one audit row written per applied change.
type SyncLog struct {
	RunID    uuid.UUID
	Kind     entities.Kind
	EntityID string
	Action   string
	Target   string
	Payload  string
	DryRun   bool
	At       time.Time
}

// ConflictLog records a field both sides changed, kept for operator
// review after the authority tie-break.
type ConflictLog struct {
	RunID       uuid.UUID
	Kind        entities.Kind
	EntityID    string
	Field       string
	VCOMValue   string
	YumanValue  string
	StoredValue string
	Winner      string
	At          time.Time
}

// Store is the correlation store. Lookups return ErrNotFound when no
// row matches. Upserts are idempotent on the V key; a clash on a
// unique Y key surfaces as a StoreConflictError so the caller can
// unify the rows through the matching Merge*Rows operation.
type Store interface {
	UpsertSite(ctx context.Context, site entities.Site) (SiteRecord, error)
	MergeSiteRows(ctx context.Context, site entities.Site) (SiteRecord, error)
	SiteByVKey(ctx context.Context, systemKey string) (SiteRecord, error)
	SiteByYID(ctx context.Context, yumanSiteID int) (SiteRecord, error)
	SiteByNormalizedName(ctx context.Context, name string) (SiteRecord, error)
	ListSites(ctx context.Context) ([]SiteRecord, error)

	UpsertEquipment(ctx context.Context, eq entities.Equipment) (EquipmentRecord, error)
	MergeEquipmentRows(ctx context.Context, eq entities.Equipment) (EquipmentRecord, error)
	EquipmentByVDeviceID(ctx context.Context, deviceID string) (EquipmentRecord, error)
	EquipmentByYID(ctx context.Context, yumanMaterialID int) (EquipmentRecord, error)
	ListEquipment(ctx context.Context) ([]EquipmentRecord, error)

	UpsertTicket(ctx context.Context, t entities.Ticket) (TicketRecord, error)
	MergeTicketRows(ctx context.Context, t entities.Ticket) (TicketRecord, error)
	TicketByVID(ctx context.Context, ticketID string) (TicketRecord, error)
	TicketByYID(ctx context.Context, workorderID int) (TicketRecord, error)
	ListTickets(ctx context.Context) ([]TicketRecord, error)

	LogSync(ctx context.Context, entry SyncLog) error
	LogConflict(ctx context.Context, entry ConflictLog) error

	Close() error
}

// MergeSites resolves a key clash between two stored rows: values
// present on a win, b fills the gaps. Keys are merged the same way.
func MergeSites(a, b entities.Site) entities.Site {
	out := a
	if out.VcomSystemKey == "" {
		out.VcomSystemKey = b.VcomSystemKey
	}
	if out.YumanSiteID == 0 {
		out.YumanSiteID = b.YumanSiteID
	}
	if out.Name == "" {
		out.Name = b.Name
	}
	if out.Address == "" {
		out.Address = b.Address
	}
	if out.Latitude == nil {
		out.Latitude = b.Latitude
	}
	if out.Longitude == nil {
		out.Longitude = b.Longitude
	}
	if out.NominalPower == nil {
		out.NominalPower = b.NominalPower
	}
	if out.CommissionDate == "" {
		out.CommissionDate = b.CommissionDate
	}
	if out.ProjectNumberCP == "" {
		out.ProjectNumberCP = b.ProjectNumberCP
	}
	if out.AldiID == "" {
		out.AldiID = b.AldiID
	}
	if out.AldiStoreID == "" {
		out.AldiStoreID = b.AldiStoreID
	}
	out.Ignore = a.Ignore || b.Ignore
	return out
}

// MergeEquipment resolves a key clash for equipment the same way.
func MergeEquipment(a, b entities.Equipment) entities.Equipment {
	out := a
	if out.VcomDeviceID == "" {
		out.VcomDeviceID = b.VcomDeviceID
	}
	if out.YumanMaterialID == 0 {
		out.YumanMaterialID = b.YumanMaterialID
	}
	if out.VcomSystemKey == "" {
		out.VcomSystemKey = b.VcomSystemKey
	}
	if out.Category == "" {
		out.Category = b.Category
	}
	if out.Name == "" {
		out.Name = b.Name
	}
	if out.Brand == "" {
		out.Brand = b.Brand
	}
	if out.Model == "" {
		out.Model = b.Model
	}
	if out.SerialNumber == "" {
		out.SerialNumber = b.SerialNumber
	}
	if out.Count == nil {
		out.Count = b.Count
	}
	if out.MPPTIndex == "" {
		out.MPPTIndex = b.MPPTIndex
	}
	if out.ParentDeviceID == "" {
		out.ParentDeviceID = b.ParentDeviceID
	}
	out.Ignore = a.Ignore || b.Ignore
	return out
}

// MergeTickets resolves a key clash for tickets the same way.
func MergeTickets(a, b entities.Ticket) entities.Ticket {
	out := a
	if out.VcomTicketID == "" {
		out.VcomTicketID = b.VcomTicketID
	}
	if out.YumanWorkorderID == 0 {
		out.YumanWorkorderID = b.YumanWorkorderID
	}
	if out.VcomSystemKey == "" {
		out.VcomSystemKey = b.VcomSystemKey
	}
	if out.Title == "" {
		out.Title = b.Title
	}
	if out.Status == "" {
		out.Status = b.Status
	}
	if out.Priority == "" {
		out.Priority = b.Priority
	}
	out.Ignore = a.Ignore || b.Ignore
	return out
}
