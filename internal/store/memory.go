package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
)

// Memory is an in-process Store with the same key semantics as the
// Postgres implementation. It backs tests and dry runs without a
// database.
type Memory struct {
	mu sync.Mutex

	nextID    int64
	sites     map[int64]SiteRecord
	equipment map[int64]EquipmentRecord
	tickets   map[int64]TicketRecord

	SyncLogs     []SyncLog
	ConflictLogs []ConflictLog
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextID:    1,
		sites:     make(map[int64]SiteRecord),
		equipment: make(map[int64]EquipmentRecord),
		tickets:   make(map[int64]TicketRecord),
	}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// UpsertSite mirrors the Postgres upsert: match on the V key first,
// then on the Y id; a clash on the other unique key is a conflict.
func (m *Memory) UpsertSite(ctx context.Context, site entities.Site) (SiteRecord, error) {
	site = site.Normalized()
	if site.VcomSystemKey == "" && site.YumanSiteID == 0 {
		return SiteRecord{}, errors.NewValidationError("site", site.Name, "no correlation key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var match *SiteRecord
	for id := range m.sites {
		rec := m.sites[id]
		byV := site.VcomSystemKey != "" && rec.VcomSystemKey == site.VcomSystemKey
		byY := site.YumanSiteID != 0 && rec.YumanSiteID == site.YumanSiteID
		if byV || byY {
			if match != nil && match.ID != rec.ID {
				return SiteRecord{}, errors.NewStoreConflictError(
					"sites_mapping", "yuman_site_id", site.Name, nil)
			}
			r := rec
			match = &r
		}
	}

	rec := SiteRecord{Site: site, UpdatedAt: time.Now().UTC()}
	if match != nil {
		// Stored keys win, mirroring the COALESCE in the SQL upsert.
		rec.ID = match.ID
		if match.VcomSystemKey != "" {
			rec.VcomSystemKey = match.VcomSystemKey
		}
		if match.YumanSiteID != 0 {
			rec.YumanSiteID = match.YumanSiteID
		}
		rec.Ignore = match.Ignore || rec.Ignore
	} else {
		rec.ID = m.id()
	}
	m.sites[rec.ID] = rec
	return rec, nil
}

// MergeSiteRows unifies two half-mapped rows under the mutex, mirroring
// the transactional merge of the Postgres store: the V-keyed row
// survives, the Y-only duplicate is removed.
func (m *Memory) MergeSiteRows(ctx context.Context, site entities.Site) (SiteRecord, error) {
	site = site.Normalized()
	if site.VcomSystemKey == "" || site.YumanSiteID == 0 {
		return SiteRecord{}, errors.NewValidationError("site", site.Name, "merge requires both keys")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var vRow, yRow *SiteRecord
	for id := range m.sites {
		rec := m.sites[id]
		if rec.VcomSystemKey == site.VcomSystemKey {
			r := rec
			vRow = &r
		}
		if rec.YumanSiteID == site.YumanSiteID {
			r := rec
			yRow = &r
		}
	}

	if vRow != nil && vRow.YumanSiteID != 0 && vRow.YumanSiteID != site.YumanSiteID {
		return SiteRecord{}, errors.NewStoreConflictError("sites_mapping", "yuman_site_id", site.Name, nil)
	}
	if yRow != nil && yRow.VcomSystemKey != "" && yRow.VcomSystemKey != site.VcomSystemKey {
		return SiteRecord{}, errors.NewStoreConflictError("sites_mapping", "vcom_system_key", site.Name, nil)
	}

	merged := site
	if yRow != nil {
		merged = MergeSites(merged, yRow.Site)
	}
	if vRow != nil {
		merged = MergeSites(merged, vRow.Site)
	}

	rec := SiteRecord{Site: merged, UpdatedAt: time.Now().UTC()}
	switch {
	case vRow != nil:
		rec.ID = vRow.ID
	case yRow != nil:
		rec.ID = yRow.ID
	default:
		rec.ID = m.id()
	}
	if yRow != nil && yRow.ID != rec.ID {
		delete(m.sites, yRow.ID)
	}
	m.sites[rec.ID] = rec
	return rec, nil
}

// SiteByVKey looks a site up by its V system key.
func (m *Memory) SiteByVKey(ctx context.Context, systemKey string) (SiteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.sites {
		if systemKey != "" && rec.VcomSystemKey == systemKey {
			return rec, nil
		}
	}
	return SiteRecord{}, errors.ErrNotFound
}

// SiteByYID looks a site up by its Y site id.
func (m *Memory) SiteByYID(ctx context.Context, yumanSiteID int) (SiteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.sites {
		if yumanSiteID != 0 && rec.YumanSiteID == yumanSiteID {
			return rec, nil
		}
	}
	return SiteRecord{}, errors.ErrNotFound
}

// SiteByNormalizedName looks a site up by its cleaned name.
func (m *Memory) SiteByNormalizedName(ctx context.Context, name string) (SiteRecord, error) {
	want := entities.NormalizeName(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.sites {
		if want != "" && entities.NormalizeName(rec.Name) == want {
			return rec, nil
		}
	}
	return SiteRecord{}, errors.ErrNotFound
}

// ListSites returns all rows ordered by id.
func (m *Memory) ListSites(ctx context.Context) ([]SiteRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SiteRecord, 0, len(m.sites))
	for _, rec := range m.sites {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertEquipment mirrors the Postgres upsert for equipment.
func (m *Memory) UpsertEquipment(ctx context.Context, eq entities.Equipment) (EquipmentRecord, error) {
	eq = eq.Normalized()
	if eq.VcomDeviceID == "" && eq.YumanMaterialID == 0 {
		return EquipmentRecord{}, errors.NewValidationError("equipment", eq.Name, "no correlation key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var match *EquipmentRecord
	for id := range m.equipment {
		rec := m.equipment[id]
		byV := eq.VcomDeviceID != "" && rec.VcomDeviceID == eq.VcomDeviceID
		byY := eq.YumanMaterialID != 0 && rec.YumanMaterialID == eq.YumanMaterialID
		if byV || byY {
			if match != nil && match.ID != rec.ID {
				return EquipmentRecord{}, errors.NewStoreConflictError(
					"equipments_mapping", "yuman_material_id", eq.VcomDeviceID, nil)
			}
			r := rec
			match = &r
		}
	}

	rec := EquipmentRecord{Equipment: eq, UpdatedAt: time.Now().UTC()}
	if match != nil {
		rec.ID = match.ID
		if match.VcomDeviceID != "" {
			rec.VcomDeviceID = match.VcomDeviceID
		}
		if match.YumanMaterialID != 0 {
			rec.YumanMaterialID = match.YumanMaterialID
		}
		rec.Ignore = match.Ignore || rec.Ignore
	} else {
		rec.ID = m.id()
	}
	m.equipment[rec.ID] = rec
	return rec, nil
}

// MergeEquipmentRows unifies two half-mapped equipment rows.
func (m *Memory) MergeEquipmentRows(ctx context.Context, eq entities.Equipment) (EquipmentRecord, error) {
	eq = eq.Normalized()
	if eq.VcomDeviceID == "" || eq.YumanMaterialID == 0 {
		return EquipmentRecord{}, errors.NewValidationError("equipment", eq.Name, "merge requires both keys")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var vRow, yRow *EquipmentRecord
	for id := range m.equipment {
		rec := m.equipment[id]
		if rec.VcomDeviceID == eq.VcomDeviceID {
			r := rec
			vRow = &r
		}
		if rec.YumanMaterialID == eq.YumanMaterialID {
			r := rec
			yRow = &r
		}
	}

	if vRow != nil && vRow.YumanMaterialID != 0 && vRow.YumanMaterialID != eq.YumanMaterialID {
		return EquipmentRecord{}, errors.NewStoreConflictError("equipments_mapping", "yuman_material_id", eq.VcomDeviceID, nil)
	}
	if yRow != nil && yRow.VcomDeviceID != "" && yRow.VcomDeviceID != eq.VcomDeviceID {
		return EquipmentRecord{}, errors.NewStoreConflictError("equipments_mapping", "vcom_device_id", eq.VcomDeviceID, nil)
	}

	merged := eq
	if yRow != nil {
		merged = MergeEquipment(merged, yRow.Equipment)
	}
	if vRow != nil {
		merged = MergeEquipment(merged, vRow.Equipment)
	}

	rec := EquipmentRecord{Equipment: merged, UpdatedAt: time.Now().UTC()}
	switch {
	case vRow != nil:
		rec.ID = vRow.ID
	case yRow != nil:
		rec.ID = yRow.ID
	default:
		rec.ID = m.id()
	}
	if yRow != nil && yRow.ID != rec.ID {
		delete(m.equipment, yRow.ID)
	}
	m.equipment[rec.ID] = rec
	return rec, nil
}

// EquipmentByVDeviceID looks equipment up by its V device id.
func (m *Memory) EquipmentByVDeviceID(ctx context.Context, deviceID string) (EquipmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.equipment {
		if deviceID != "" && rec.VcomDeviceID == deviceID {
			return rec, nil
		}
	}
	return EquipmentRecord{}, errors.ErrNotFound
}

// EquipmentByYID looks equipment up by its Y material id.
func (m *Memory) EquipmentByYID(ctx context.Context, yumanMaterialID int) (EquipmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.equipment {
		if yumanMaterialID != 0 && rec.YumanMaterialID == yumanMaterialID {
			return rec, nil
		}
	}
	return EquipmentRecord{}, errors.ErrNotFound
}

// ListEquipment returns all rows ordered by id.
func (m *Memory) ListEquipment(ctx context.Context) ([]EquipmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EquipmentRecord, 0, len(m.equipment))
	for _, rec := range m.equipment {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertTicket mirrors the Postgres upsert for tickets.
func (m *Memory) UpsertTicket(ctx context.Context, t entities.Ticket) (TicketRecord, error) {
	t = t.Normalized()
	if t.VcomTicketID == "" && t.YumanWorkorderID == 0 {
		return TicketRecord{}, errors.NewValidationError("ticket", t.Title, "no correlation key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var match *TicketRecord
	for id := range m.tickets {
		rec := m.tickets[id]
		byV := t.VcomTicketID != "" && rec.VcomTicketID == t.VcomTicketID
		byY := t.YumanWorkorderID != 0 && rec.YumanWorkorderID == t.YumanWorkorderID
		if byV || byY {
			if match != nil && match.ID != rec.ID {
				return TicketRecord{}, errors.NewStoreConflictError(
					"tickets_mapping", "yuman_workorder_id", t.VcomTicketID, nil)
			}
			r := rec
			match = &r
		}
	}

	rec := TicketRecord{Ticket: t, UpdatedAt: time.Now().UTC()}
	if match != nil {
		rec.ID = match.ID
		if match.VcomTicketID != "" {
			rec.VcomTicketID = match.VcomTicketID
		}
		if match.YumanWorkorderID != 0 {
			rec.YumanWorkorderID = match.YumanWorkorderID
		}
		rec.Ignore = match.Ignore || rec.Ignore
	} else {
		rec.ID = m.id()
	}
	m.tickets[rec.ID] = rec
	return rec, nil
}

// MergeTicketRows unifies two half-mapped ticket rows.
func (m *Memory) MergeTicketRows(ctx context.Context, t entities.Ticket) (TicketRecord, error) {
	t = t.Normalized()
	if t.VcomTicketID == "" || t.YumanWorkorderID == 0 {
		return TicketRecord{}, errors.NewValidationError("ticket", t.Title, "merge requires both keys")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var vRow, yRow *TicketRecord
	for id := range m.tickets {
		rec := m.tickets[id]
		if rec.VcomTicketID == t.VcomTicketID {
			r := rec
			vRow = &r
		}
		if rec.YumanWorkorderID == t.YumanWorkorderID {
			r := rec
			yRow = &r
		}
	}

	if vRow != nil && vRow.YumanWorkorderID != 0 && vRow.YumanWorkorderID != t.YumanWorkorderID {
		return TicketRecord{}, errors.NewStoreConflictError("tickets_mapping", "yuman_workorder_id", t.VcomTicketID, nil)
	}
	if yRow != nil && yRow.VcomTicketID != "" && yRow.VcomTicketID != t.VcomTicketID {
		return TicketRecord{}, errors.NewStoreConflictError("tickets_mapping", "vcom_ticket_id", t.VcomTicketID, nil)
	}

	merged := t
	if yRow != nil {
		merged = MergeTickets(merged, yRow.Ticket)
	}
	if vRow != nil {
		merged = MergeTickets(merged, vRow.Ticket)
	}

	rec := TicketRecord{Ticket: merged, UpdatedAt: time.Now().UTC()}
	switch {
	case vRow != nil:
		rec.ID = vRow.ID
	case yRow != nil:
		rec.ID = yRow.ID
	default:
		rec.ID = m.id()
	}
	if yRow != nil && yRow.ID != rec.ID {
		delete(m.tickets, yRow.ID)
	}
	m.tickets[rec.ID] = rec
	return rec, nil
}

// TicketByVID looks a ticket up by its V ticket id.
func (m *Memory) TicketByVID(ctx context.Context, ticketID string) (TicketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tickets {
		if ticketID != "" && rec.VcomTicketID == ticketID {
			return rec, nil
		}
	}
	return TicketRecord{}, errors.ErrNotFound
}

// TicketByYID looks a ticket up by its Y workorder id.
func (m *Memory) TicketByYID(ctx context.Context, workorderID int) (TicketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.tickets {
		if workorderID != 0 && rec.YumanWorkorderID == workorderID {
			return rec, nil
		}
	}
	return TicketRecord{}, errors.ErrNotFound
}

// ListTickets returns all rows ordered by id.
func (m *Memory) ListTickets(ctx context.Context) ([]TicketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TicketRecord, 0, len(m.tickets))
	for _, rec := range m.tickets {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LogSync appends one audit entry.
func (m *Memory) LogSync(ctx context.Context, entry SyncLog) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncLogs = append(m.SyncLogs, entry)
	return nil
}

// LogConflict appends one conflict entry.
func (m *Memory) LogConflict(ctx context.Context, entry ConflictLog) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConflictLogs = append(m.ConflictLogs, entry)
	return nil
}
