package yuman

import (
	"context"
	"strconv"
	"strings"

	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/logging"
)

// Snapshot is the canonical view of everything Yuman knows. Sites are
// keyed by Yuman site id; equipment and tickets by the reconstructed
// VCOM device/ticket identifiers when known, falling back to the Yuman
// id rendered as a string.
type Snapshot struct {
	Sites     map[int]entities.Site
	Equipment map[string]entities.Equipment
	Tickets   map[string]entities.Ticket

	// SiteIDByKey indexes mapped sites by their VCOM system key.
	SiteIDByKey map[string]int
}

// FetchSnapshot pulls all sites, materials and workorders and converts
// them into canonical entities at the boundary.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	log := logging.FromContext(ctx)

	snap := &Snapshot{
		Sites:       make(map[int]entities.Site),
		Equipment:   make(map[string]entities.Equipment),
		Tickets:     make(map[string]entities.Ticket),
		SiteIDByKey: make(map[string]int),
	}

	sites, err := c.ListSites(ctx, "fields,client")
	if err != nil {
		return nil, err
	}
	for _, s := range sites {
		site := siteEntity(s)
		snap.Sites[s.ID] = site
		if site.VcomSystemKey != "" {
			snap.SiteIDByKey[site.VcomSystemKey] = s.ID
		}
	}

	materials, err := c.ListMaterials(ctx, "fields,site", 0)
	if err != nil {
		return nil, err
	}
	materialsByID := make(map[int]Material, len(materials))
	for _, m := range materials {
		materialsByID[m.ID] = m
	}
	for _, m := range materials {
		site, ok := snap.Sites[m.SiteID]
		if !ok {
			log.Warn().Int("material_id", m.ID).Int("site_id", m.SiteID).
				Msg("Yuman material on unknown site, skipping")
			continue
		}
		eq, ok := materialEntity(m, site, materialsByID)
		if !ok {
			continue
		}
		key := eq.VcomDeviceID
		if key == "" {
			key = "yuman:" + strconv.Itoa(m.ID)
		}
		snap.Equipment[key] = eq
	}

	workorders, err := c.ListWorkorders(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range workorders {
		t := workorderEntity(w, snap.Sites)
		key := t.VcomTicketID
		if key == "" {
			key = "yuman:" + strconv.Itoa(w.ID)
		}
		snap.Tickets[key] = t
	}

	log.Info().
		Int("sites", len(snap.Sites)).
		Int("equipment", len(snap.Equipment)).
		Int("workorders", len(snap.Tickets)).
		Msg("Yuman snapshot fetched")
	return snap, nil
}

// siteEntity converts a Yuman site into the canonical form. The VCOM
// system key and the business identifiers live in custom fields.
func siteEntity(s Site) entities.Site {
	cvals := s.CustomValues()

	var nominal *float64
	if raw := strings.TrimSpace(cvals[FieldNominalPower]); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			nominal = &v
		}
	}

	return entities.Site{
		VcomSystemKey:   strings.TrimSpace(cvals[FieldSystemKey]),
		YumanSiteID:     s.ID,
		Name:            s.Name,
		Address:         s.Address,
		Latitude:        s.Latitude,
		Longitude:       s.Longitude,
		NominalPower:    nominal,
		CommissionDate:  cvals[FieldCommissionDate],
		ProjectNumberCP: cvals[FieldProjectNumberCP],
		AldiID:          cvals[FieldAldiID],
		AldiStoreID:     cvals[FieldAldiStoreID],
	}.Normalized()
}

// materialEntity converts a Yuman material. The VCOM device id is
// rebuilt per category: inverters carry it in a custom field, strings
// in the serial number, module batches derive it from the site key.
// Plant materials and other categories are not part of the sync.
func materialEntity(m Material, site entities.Site, byID map[int]Material) (entities.Equipment, bool) {
	cvals := m.CustomValues()

	var category entities.EquipmentCategory
	var deviceID string
	switch m.CategoryID {
	case CategoryInverterID:
		category = entities.CategoryInverter
		deviceID = cvals[FieldInverterID]
		if deviceID == "" {
			deviceID = m.SerialNumber
		}
	case CategoryStringID:
		category = entities.CategoryString
		deviceID = m.SerialNumber
		if deviceID == "" {
			deviceID = m.Name
		}
	case CategoryModuleID:
		category = entities.CategoryModule
		if site.VcomSystemKey != "" {
			deviceID = "MODULES-" + site.VcomSystemKey
		}
	default:
		return entities.Equipment{}, false
	}

	var count *int
	if raw := strings.TrimSpace(cvals[FieldModuleCount]); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			count = &v
		}
	}

	eq := entities.Equipment{
		VcomSystemKey:   site.VcomSystemKey,
		VcomDeviceID:    strings.TrimSpace(deviceID),
		YumanMaterialID: m.ID,
		Category:        category,
		Name:            m.Name,
		Brand:           m.Brand,
		Model:           m.Model,
		SerialNumber:    m.SerialNumber,
		Count:           count,
		MPPTIndex:       cvals[FieldMPPTIndex],
	}

	// Strings reference their inverter through parent_id. Translate the
	// Yuman material id back into the inverter's VCOM device id.
	if category == entities.CategoryString {
		if eq.Brand == "" {
			eq.Brand = cvals[FieldModuleBrand]
		}
		if eq.Model == "" {
			eq.Model = cvals[FieldModuleModel]
		}
		if m.ParentID != nil {
			if parent, ok := byID[*m.ParentID]; ok {
				pvals := parent.CustomValues()
				eq.ParentDeviceID = strings.TrimSpace(pvals[FieldInverterID])
				if eq.ParentDeviceID == "" {
					eq.ParentDeviceID = parent.SerialNumber
				}
			}
		}
	}
	return eq.Normalized(), true
}

// workorderEntity converts a Yuman workorder. The linked VCOM ticket id
// lives in the description as a "[VCOM:<id>]" marker when set.
func workorderEntity(w Workorder, sites map[int]entities.Site) entities.Ticket {
	var systemKey string
	if site, ok := sites[w.SiteID]; ok {
		systemKey = site.VcomSystemKey
	}
	return entities.Ticket{
		VcomTicketID:     ExtractTicketRef(w.Description),
		YumanWorkorderID: w.ID,
		VcomSystemKey:    systemKey,
		Title:            w.Title,
		Status:           w.Status,
		Priority:         w.Priority,
	}.Normalized()
}

const ticketRefPrefix = "[VCOM:"

// ExtractTicketRef pulls the VCOM ticket id out of a workorder
// description, or returns "" when no marker is present.
func ExtractTicketRef(description string) string {
	start := strings.Index(description, ticketRefPrefix)
	if start < 0 {
		return ""
	}
	rest := description[start+len(ticketRefPrefix):]
	end := strings.Index(rest, "]")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// TicketRef renders the description marker linking a workorder to a
// VCOM ticket.
func TicketRef(ticketID string) string {
	return ticketRefPrefix + ticketID + "]"
}
