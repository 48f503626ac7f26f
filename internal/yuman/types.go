package yuman

import "encoding/json"

// Fixed Yuman category ids for the equipment kinds handled by the sync.
const (
	CategoryPlantID    = 11441
	CategoryInverterID = 11102
	CategoryModuleID   = 11103
	CategoryStringID   = 11104
)

// Custom field names as configured in the Yuman workspace. Blueprint ids
// are resolved from these names at startup, never hardcoded.
const (
	FieldSystemKey       = "System Key (Vcom ID)"
	FieldNominalPower    = "Nominal Power (kWc)"
	FieldCommissionDate  = "Commission Date"
	FieldAldiID          = "ALDI ID"
	FieldAldiStoreID     = "ID magasin (n° interne Aldi)"
	FieldProjectNumberCP = "Project number (Centroplan ID)"

	FieldInverterID  = "Inverter ID (Vcom)"
	FieldMPPTIndex   = "MPPT index"
	FieldModuleCount = "nombre de module"
	FieldModuleBrand = "marque du module"
	FieldModuleModel = "model de module"
)

// CustomField is one custom field value attached to a record.
type CustomField struct {
	BlueprintID int    `json:"blueprint_id,omitempty"`
	Name        string `json:"name"`
	Value       string `json:"value"`
}

// Embed carries the optional embedded sub-resources of a record.
type Embed struct {
	Fields []CustomField `json:"fields"`
}

// ClientAccount is a Yuman client (the customer owning sites).
type ClientAccount struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Site is a Yuman site record.
type Site struct {
	ID        int      `json:"id"`
	ClientID  int      `json:"client_id"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Code      string   `json:"code"`
	Embed     Embed    `json:"_embed"`
}

// CustomValues flattens the embedded custom fields into name to value.
func (s Site) CustomValues() map[string]string {
	return customValues(s.Embed.Fields)
}

// Material is a Yuman material record (module batch, inverter, string).
type Material struct {
	ID           int    `json:"id"`
	SiteID       int    `json:"site_id"`
	CategoryID   int    `json:"category_id"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	ParentID     *int   `json:"parent_id"`
	Embed        Embed  `json:"_embed"`
}

// CustomValues flattens the embedded custom fields into name to value.
func (m Material) CustomValues() map[string]string {
	return customValues(m.Embed.Fields)
}

// Workorder is a Yuman workorder record.
type Workorder struct {
	ID          int    `json:"id"`
	SiteID      int    `json:"site_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	Embed       Embed  `json:"_embed"`
}

// CustomValues flattens the embedded custom fields into name to value.
func (w Workorder) CustomValues() map[string]string {
	return customValues(w.Embed.Fields)
}

func customValues(fields []CustomField) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value
	}
	return out
}

// SitePayload is the write shape for site create/update calls. Nil
// pointers are omitted so a PATCH only touches what it names.
type SitePayload struct {
	ClientID  *int          `json:"client_id,omitempty"`
	Name      *string       `json:"name,omitempty"`
	Address   *string       `json:"address,omitempty"`
	Latitude  *float64      `json:"latitude,omitempty"`
	Longitude *float64      `json:"longitude,omitempty"`
	Fields    []CustomField `json:"fields,omitempty"`
}

// MaterialPayload is the write shape for material create/update calls.
type MaterialPayload struct {
	SiteID       *int          `json:"site_id,omitempty"`
	CategoryID   *int          `json:"category_id,omitempty"`
	Name         *string       `json:"name,omitempty"`
	Brand        *string       `json:"brand,omitempty"`
	Model        *string       `json:"model,omitempty"`
	SerialNumber *string       `json:"serial_number,omitempty"`
	ParentID     *int          `json:"parent_id,omitempty"`
	Fields       []CustomField `json:"fields,omitempty"`
}

// WorkorderPayload is the write shape for workorder create/update calls.
type WorkorderPayload struct {
	SiteID      *int          `json:"site_id,omitempty"`
	Title       *string       `json:"title,omitempty"`
	Status      *string       `json:"status,omitempty"`
	Priority    *string       `json:"priority,omitempty"`
	Description *string       `json:"description,omitempty"`
	Fields      []CustomField `json:"fields,omitempty"`
}

// fieldBlueprint is one row of the custom field catalog endpoints.
type fieldBlueprint struct {
	BlueprintID int             `json:"blueprint_id"`
	Name        string          `json:"name"`
	Category    json.RawMessage `json:"category"`
}
