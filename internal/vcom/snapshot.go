package vcom

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/logging"
)

// Snapshot is the canonical view of everything VCOM knows.
type Snapshot struct {
	Sites     map[string]entities.Site      // keyed by system key
	Equipment map[string]entities.Equipment // keyed by device id
	Tickets   map[string]entities.Ticket    // keyed by ticket id
}

// FetchSnapshot pulls all systems (or a single one when systemKey is
// set) and converts them into canonical entities at the boundary.
// Records missing the correlation key are skipped with a warning.
func (c *Client) FetchSnapshot(ctx context.Context, systemKey string) (*Snapshot, error) {
	log := logging.FromContext(ctx)

	systems, err := c.ListSystems(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Sites:     make(map[string]entities.Site),
		Equipment: make(map[string]entities.Equipment),
		Tickets:   make(map[string]entities.Ticket),
	}

	for _, sys := range systems {
		if systemKey != "" && sys.Key != systemKey {
			continue
		}
		if sys.Key == "" {
			log.Warn().Str("name", sys.Name).Msg("VCOM system without key, skipping")
			continue
		}
		if err := c.addSystem(ctx, snap, sys); err != nil {
			return nil, err
		}
	}

	tickets, err := c.Tickets(ctx, TicketFilter{SystemKey: systemKey})
	if err != nil {
		return nil, err
	}
	for _, t := range tickets {
		if t.ID == "" {
			log.Warn().Str("system_key", t.SystemKey).Msg("VCOM ticket without id, skipping")
			continue
		}
		snap.Tickets[t.ID] = entities.Ticket{
			VcomTicketID:  t.ID,
			VcomSystemKey: t.SystemKey,
			Title:         t.Title,
			Status:        t.Status,
			Priority:      t.Priority,
		}.Normalized()
	}

	log.Info().
		Int("sites", len(snap.Sites)).
		Int("equipment", len(snap.Equipment)).
		Int("tickets", len(snap.Tickets)).
		Msg("VCOM snapshot fetched")
	return snap, nil
}

// addSystem converts one system and its devices.
func (c *Client) addSystem(ctx context.Context, snap *Snapshot, sys SystemSummary) error {
	det, err := c.SystemDetails(ctx, sys.Key)
	if err != nil {
		return err
	}
	tech, err := c.TechnicalData(ctx, sys.Key)
	if err != nil {
		return err
	}

	name := sys.Name
	if name == "" {
		name = sys.Key
	}
	snap.Sites[sys.Key] = entities.Site{
		VcomSystemKey:  sys.Key,
		Name:           name,
		Address:        buildAddress(det.Address),
		Latitude:       det.Coordinates.Latitude,
		Longitude:      det.Coordinates.Longitude,
		NominalPower:   tech.NominalPower,
		CommissionDate: det.CommissionDate,
	}.Normalized()

	// One module reference per system is assumed, as reported first.
	if len(tech.Panels) > 0 {
		p := tech.Panels[0]
		modName := p.Model
		if modName == "" {
			modName = "Modules"
		}
		eq := entities.Equipment{
			VcomSystemKey: sys.Key,
			VcomDeviceID:  "MODULES-" + sys.Key,
			Category:      entities.CategoryModule,
			Name:          modName,
			Brand:         p.Vendor,
			Model:         p.Model,
			Count:         p.Count,
		}.Normalized()
		snap.Equipment[eq.VcomDeviceID] = eq
	}

	inverters, err := c.Inverters(ctx, sys.Key)
	if err != nil {
		return err
	}
	for _, inv := range inverters {
		invDet, err := c.InverterDetails(ctx, sys.Key, inv.ID)
		if err != nil {
			return err
		}
		invName := inv.Name
		if invName == "" {
			invName = inv.ID
		}
		eq := entities.Equipment{
			VcomSystemKey: sys.Key,
			VcomDeviceID:  inv.ID,
			Category:      entities.CategoryInverter,
			Name:          invName,
			Brand:         invDet.Vendor,
			Model:         invDet.Model,
			SerialNumber:  inv.Serial,
		}.Normalized()
		snap.Equipment[eq.VcomDeviceID] = eq
	}

	// PV strings: configuration entries pair with inverters by order.
	for idx, cfg := range tech.SystemConfigurations {
		if idx >= len(inverters) {
			break
		}
		parent := inverters[idx]
		for _, mpptKey := range sortedKeys(cfg.MPPTInputs) {
			input := cfg.MPPTInputs[mpptKey]
			for n := 1; n <= input.StringCount; n++ {
				mpptIdx := fmt.Sprintf("%s.%d", mpptKey, n)
				deviceID := fmt.Sprintf("STRING-WR%d-MPPT-%s", idx+1, mpptIdx)
				eq := entities.Equipment{
					VcomSystemKey:  sys.Key,
					VcomDeviceID:   deviceID,
					Category:       entities.CategoryString,
					Name:           "STRING-" + deviceID,
					Brand:          input.Module.Vendor,
					Model:          input.Module.Model,
					Count:          input.ModulesPerString,
					MPPTIndex:      mpptIdx,
					ParentDeviceID: parent.ID,
				}.Normalized()
				snap.Equipment[eq.VcomDeviceID] = eq
			}
		}
	}
	return nil
}

// buildAddress flattens the structured address, dropping empty parts.
func buildAddress(a Address) string {
	cityLine := strings.TrimSpace(a.PostalCode + " " + a.City)
	parts := make([]string, 0, 2)
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	if cityLine != "" {
		parts = append(parts, cityLine)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]MPPTInput) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
