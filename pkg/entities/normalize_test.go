package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"leading digits", "042 Site Alpha", "Site Alpha"},
		{"parenthetical suffix", "Site Alpha (old)", "Site Alpha"},
		{"country token", "Site Alpha France", "Site Alpha"},
		{"all three", "042 Site Alpha (old) France", "Site Alpha"},
		{"spec scenario", "042 Site Alpha (old)", "Site Alpha"},
		{"untouched", "Site Alpha", "Site Alpha"},
		{"digits inside name kept", "Depot 12 Nord", "Depot 12 Nord"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"25/03/2021", "2021-03-25"},
		{"5/3/2021", "2021-03-05"},
		{"2021-03-25", "2021-03-25"},
		{"2021-03-25T00:00:00Z", "2021-03-25"},
		{"  ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDate(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "SN-123ABC", NormalizeSerial("  sn-123abc "))
	assert.Equal(t, "", NormalizeSerial("   "))
}

// Normalization must be idempotent: applying it twice is the same as once.
func TestNormalizeIdempotent(t *testing.T) {
	names := []string{
		"042 Site Alpha (old) France",
		"Site Beta",
		"  7 Depot (new) ",
	}
	for _, n := range names {
		once := NormalizeName(n)
		assert.Equal(t, once, NormalizeName(once))
	}

	dates := []string{"25/03/2021", "2021-03-25", ""}
	for _, d := range dates {
		once := NormalizeDate(d)
		assert.Equal(t, once, NormalizeDate(once))
	}

	serials := []string{" ab12 ", "AB12"}
	for _, s := range serials {
		once := NormalizeSerial(s)
		assert.Equal(t, once, NormalizeSerial(once))
	}
}

func TestSiteNormalizedIdempotent(t *testing.T) {
	power := 750.0
	site := Site{
		VcomSystemKey:  "SYS1",
		Name:           "042 Site Alpha (old)",
		Address:        " 1 rue du Soleil ",
		NominalPower:   &power,
		CommissionDate: "25/03/2021",
	}

	once := site.Normalized()
	twice := once.Normalized()
	assert.Equal(t, once, twice)

	for _, f := range SiteFields {
		assert.Equal(t, once.FieldValue(f), site.FieldValue(f), "field %s", f)
	}
}

func TestEquipmentFieldValues(t *testing.T) {
	count := 18
	eq := Equipment{
		VcomSystemKey: "SYS1",
		VcomDeviceID:  "WR1",
		Category:      CategoryString,
		SerialNumber:  " abc123 ",
		Count:         &count,
		MPPTIndex:     "1.2",
	}

	assert.Equal(t, "ABC123", eq.FieldValue(EquipmentFieldSerialNumber))
	assert.Equal(t, "18", eq.FieldValue(EquipmentFieldCount))
	assert.Equal(t, "", Equipment{}.FieldValue(EquipmentFieldCount))
}

func TestCreationOrder(t *testing.T) {
	assert.Less(t, CategoryModule.CreationOrder(), CategoryInverter.CreationOrder())
	assert.Less(t, CategoryInverter.CreationOrder(), CategoryString.CreationOrder())
}
