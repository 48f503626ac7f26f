package entities

// Site field names.
const (
	SiteFieldName            FieldName = "name"
	SiteFieldAddress         FieldName = "address"
	SiteFieldLatitude        FieldName = "latitude"
	SiteFieldLongitude       FieldName = "longitude"
	SiteFieldNominalPower    FieldName = "nominal_power"
	SiteFieldCommissionDate  FieldName = "commission_date"
	SiteFieldProjectNumberCP FieldName = "project_number_cp"
	SiteFieldAldiID          FieldName = "aldi_id"
	SiteFieldAldiStoreID     FieldName = "aldi_store_id"
)

// SiteFields enumerates the comparable fields of a site, in diff order.
var SiteFields = []FieldName{
	SiteFieldName,
	SiteFieldAddress,
	SiteFieldLatitude,
	SiteFieldLongitude,
	SiteFieldNominalPower,
	SiteFieldCommissionDate,
	SiteFieldProjectNumberCP,
	SiteFieldAldiID,
	SiteFieldAldiStoreID,
}

// Site is the canonical representation of a VCOM system / Yuman site.
// Values are immutable by convention: adapters build a Site once and the
// diff engine only reads it.
type Site struct {
	// Cross-system keys. Either may be empty/zero when the entity is
	// known to one side only.
	VcomSystemKey string
	YumanSiteID   int

	Name           string
	Address        string
	Latitude       *float64
	Longitude      *float64
	NominalPower   *float64
	CommissionDate string // ISO YYYY-MM-DD

	// Business identifiers maintained by field staff in Yuman.
	ProjectNumberCP string
	AldiID          string
	AldiStoreID     string

	Ignore bool
}

// Kind returns KindSite.
func (s Site) Kind() Kind { return KindSite }

// FieldValue returns the normalized comparable value for the given field.
func (s Site) FieldValue(f FieldName) string {
	switch f {
	case SiteFieldName:
		return NormalizeName(s.Name)
	case SiteFieldAddress:
		return NormalizeString(s.Address)
	case SiteFieldLatitude:
		return NormalizeFloat(s.Latitude)
	case SiteFieldLongitude:
		return NormalizeFloat(s.Longitude)
	case SiteFieldNominalPower:
		return NormalizeFloat(s.NominalPower)
	case SiteFieldCommissionDate:
		return NormalizeDate(s.CommissionDate)
	case SiteFieldProjectNumberCP:
		return NormalizeString(s.ProjectNumberCP)
	case SiteFieldAldiID:
		return NormalizeString(s.AldiID)
	case SiteFieldAldiStoreID:
		return NormalizeString(s.AldiStoreID)
	}
	return ""
}

// Normalized returns a copy with every field in canonical form, so that
// FieldValue(Normalized(x)) == FieldValue(x) for all fields.
func (s Site) Normalized() Site {
	out := s
	out.Name = NormalizeName(s.Name)
	out.Address = NormalizeString(s.Address)
	out.CommissionDate = NormalizeDate(s.CommissionDate)
	out.ProjectNumberCP = NormalizeString(s.ProjectNumberCP)
	out.AldiID = NormalizeString(s.AldiID)
	out.AldiStoreID = NormalizeString(s.AldiStoreID)
	return out
}
