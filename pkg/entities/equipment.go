package entities

// EquipmentCategory is the normalized equipment type. The fixed Yuman
// category ids are mapped to these at the adapter boundary.
type EquipmentCategory string

// Equipment categories handled by the sync.
const (
	CategoryModule   EquipmentCategory = "module"
	CategoryInverter EquipmentCategory = "inverter"
	CategoryString   EquipmentCategory = "string_pv"
	CategoryPlant    EquipmentCategory = "plant"
)

// CreationOrder returns the insertion rank for a category. Strings
// reference their parent inverter, so inverters must exist first.
func (c EquipmentCategory) CreationOrder() int {
	switch c {
	case CategoryModule:
		return 0
	case CategoryInverter:
		return 1
	case CategoryString:
		return 2
	}
	return 99
}

// Equipment field names.
const (
	EquipmentFieldName         FieldName = "name"
	EquipmentFieldBrand        FieldName = "brand"
	EquipmentFieldModel        FieldName = "model"
	EquipmentFieldSerialNumber FieldName = "serial_number"
	EquipmentFieldCount        FieldName = "count"
	EquipmentFieldMPPTIndex    FieldName = "mppt_index"
	EquipmentFieldParentDevice FieldName = "parent_device_id"
)

// EquipmentFields enumerates the comparable fields of an equipment.
var EquipmentFields = []FieldName{
	EquipmentFieldName,
	EquipmentFieldBrand,
	EquipmentFieldModel,
	EquipmentFieldSerialNumber,
	EquipmentFieldCount,
	EquipmentFieldMPPTIndex,
	EquipmentFieldParentDevice,
}

// Equipment is the canonical representation of a VCOM device / Yuman
// material: one module reference, inverter, or PV string.
type Equipment struct {
	VcomSystemKey   string
	VcomDeviceID    string
	YumanMaterialID int

	Category     EquipmentCategory
	Name         string
	Brand        string
	Model        string
	SerialNumber string
	Count        *int // modules per string, or module count

	// MPPT input index for PV strings, e.g. "1.2".
	MPPTIndex string

	// ParentDeviceID links a PV string to its inverter by VCOM device id.
	ParentDeviceID string

	Ignore bool
}

// Kind returns KindEquipment.
func (e Equipment) Kind() Kind { return KindEquipment }

// FieldValue returns the normalized comparable value for the given field.
func (e Equipment) FieldValue(f FieldName) string {
	switch f {
	case EquipmentFieldName:
		return NormalizeString(e.Name)
	case EquipmentFieldBrand:
		return NormalizeString(e.Brand)
	case EquipmentFieldModel:
		return NormalizeString(e.Model)
	case EquipmentFieldSerialNumber:
		return NormalizeSerial(e.SerialNumber)
	case EquipmentFieldCount:
		return NormalizeInt(e.Count)
	case EquipmentFieldMPPTIndex:
		return NormalizeString(e.MPPTIndex)
	case EquipmentFieldParentDevice:
		return NormalizeString(e.ParentDeviceID)
	}
	return ""
}

// Normalized returns a copy with every field in canonical form.
func (e Equipment) Normalized() Equipment {
	out := e
	out.Name = NormalizeString(e.Name)
	out.Brand = NormalizeString(e.Brand)
	out.Model = NormalizeString(e.Model)
	out.SerialNumber = NormalizeSerial(e.SerialNumber)
	out.MPPTIndex = NormalizeString(e.MPPTIndex)
	out.ParentDeviceID = NormalizeString(e.ParentDeviceID)
	return out
}
