package yuman

import (
	"strconv"

	"github.com/centroplan/vysync/pkg/entities"
)

func ptr[T any](v T) *T { return &v }

// siteField builds one field value with its resolved blueprint id.
// Unknown names are sent by name only; the API resolves them itself.
func siteField(bp *Blueprints, name, value string) CustomField {
	f := CustomField{Name: name, Value: value}
	if id, err := bp.SiteField(name); err == nil {
		f.BlueprintID = id
	}
	return f
}

func materialField(bp *Blueprints, name, value string) CustomField {
	f := CustomField{Name: name, Value: value}
	if id, err := bp.MaterialField(name); err == nil {
		f.BlueprintID = id
	}
	return f
}

// BuildSitePayload renders a canonical site as a full write payload.
// clientID is required on create and ignored by updates when zero.
func BuildSitePayload(bp *Blueprints, site entities.Site, clientID int) SitePayload {
	p := SitePayload{
		Name:      ptr(site.Name),
		Address:   ptr(site.Address),
		Latitude:  site.Latitude,
		Longitude: site.Longitude,
	}
	if clientID != 0 {
		p.ClientID = ptr(clientID)
	}

	fields := []CustomField{
		siteField(bp, FieldSystemKey, site.VcomSystemKey),
	}
	if site.NominalPower != nil {
		fields = append(fields, siteField(bp, FieldNominalPower,
			strconv.FormatFloat(*site.NominalPower, 'f', -1, 64)))
	}
	if site.CommissionDate != "" {
		fields = append(fields, siteField(bp, FieldCommissionDate, site.CommissionDate))
	}
	if site.ProjectNumberCP != "" {
		fields = append(fields, siteField(bp, FieldProjectNumberCP, site.ProjectNumberCP))
	}
	if site.AldiID != "" {
		fields = append(fields, siteField(bp, FieldAldiID, site.AldiID))
	}
	if site.AldiStoreID != "" {
		fields = append(fields, siteField(bp, FieldAldiStoreID, site.AldiStoreID))
	}
	p.Fields = fields
	return p
}

// SiteFieldUpdate renders a partial site update touching only the
// given canonical fields.
func SiteFieldUpdate(bp *Blueprints, site entities.Site, changed []entities.FieldName) SitePayload {
	var p SitePayload
	for _, f := range changed {
		switch f {
		case entities.SiteFieldName:
			p.Name = ptr(site.Name)
		case entities.SiteFieldAddress:
			p.Address = ptr(site.Address)
		case entities.SiteFieldLatitude:
			p.Latitude = site.Latitude
		case entities.SiteFieldLongitude:
			p.Longitude = site.Longitude
		case entities.SiteFieldNominalPower:
			if site.NominalPower != nil {
				p.Fields = append(p.Fields, siteField(bp, FieldNominalPower,
					strconv.FormatFloat(*site.NominalPower, 'f', -1, 64)))
			}
		case entities.SiteFieldCommissionDate:
			p.Fields = append(p.Fields, siteField(bp, FieldCommissionDate, site.CommissionDate))
		case entities.SiteFieldProjectNumberCP:
			p.Fields = append(p.Fields, siteField(bp, FieldProjectNumberCP, site.ProjectNumberCP))
		case entities.SiteFieldAldiID:
			p.Fields = append(p.Fields, siteField(bp, FieldAldiID, site.AldiID))
		case entities.SiteFieldAldiStoreID:
			p.Fields = append(p.Fields, siteField(bp, FieldAldiStoreID, site.AldiStoreID))
		}
	}
	return p
}

// categoryID maps a canonical category to the fixed Yuman id.
func categoryID(c entities.EquipmentCategory) int {
	switch c {
	case entities.CategoryModule:
		return CategoryModuleID
	case entities.CategoryInverter:
		return CategoryInverterID
	case entities.CategoryString:
		return CategoryStringID
	case entities.CategoryPlant:
		return CategoryPlantID
	}
	return 0
}

// BuildMaterialPayload renders a canonical equipment as a full write
// payload. parentMaterialID links a string to its inverter and is
// omitted when zero. The serial number doubles as the correlation key
// for strings, so it falls back to the VCOM device id.
func BuildMaterialPayload(bp *Blueprints, eq entities.Equipment, siteID, parentMaterialID int) MaterialPayload {
	serial := eq.SerialNumber
	if serial == "" {
		serial = eq.VcomDeviceID
	}
	p := MaterialPayload{
		CategoryID:   ptr(categoryID(eq.Category)),
		Name:         ptr(eq.Name),
		Brand:        ptr(eq.Brand),
		Model:        ptr(eq.Model),
		SerialNumber: ptr(serial),
	}
	if siteID != 0 {
		p.SiteID = ptr(siteID)
	}
	if parentMaterialID != 0 {
		p.ParentID = ptr(parentMaterialID)
	}

	switch eq.Category {
	case entities.CategoryInverter:
		p.Fields = append(p.Fields, materialField(bp, FieldInverterID, eq.VcomDeviceID))
	case entities.CategoryString:
		p.Fields = append(p.Fields, materialField(bp, FieldMPPTIndex, eq.MPPTIndex))
		if eq.Count != nil {
			p.Fields = append(p.Fields, materialField(bp, FieldModuleCount, strconv.Itoa(*eq.Count)))
		}
		if eq.Brand != "" {
			p.Fields = append(p.Fields, materialField(bp, FieldModuleBrand, eq.Brand))
		}
		if eq.Model != "" {
			p.Fields = append(p.Fields, materialField(bp, FieldModuleModel, eq.Model))
		}
	}
	return p
}

// BuildWorkorderPayload renders a canonical ticket as a workorder
// write payload. The VCOM ticket link travels in the description.
func BuildWorkorderPayload(t entities.Ticket, siteID int) WorkorderPayload {
	p := WorkorderPayload{
		Title:    ptr(t.Title),
		Status:   ptr(t.Status),
		Priority: ptr(t.Priority),
	}
	if siteID != 0 {
		p.SiteID = ptr(siteID)
	}
	if t.VcomTicketID != "" {
		p.Description = ptr(TicketRef(t.VcomTicketID))
	}
	return p
}
