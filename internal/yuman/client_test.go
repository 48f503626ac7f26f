package yuman

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centroplan/vysync/internal/transport"
	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
)

func page(items ...string) string {
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return `{"items":` + out + `],"total_pages":1}`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sites", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`{
			"id":900,"client_id":77,"name":"Site Alpha",
			"address":"1 rue du Soleil, 75001 Paris",
			"latitude":48.85,"longitude":2.35,
			"_embed":{"fields":[
				{"blueprint_id":13583,"name":"System Key (Vcom ID)","value":"SYS1"},
				{"blueprint_id":13585,"name":"Nominal Power (kWc)","value":"750"},
				{"blueprint_id":13586,"name":"Commission Date","value":"25/03/2021"},
				{"name":"Project number (Centroplan ID)","value":"PN-100"},
				{"name":"ALDI ID","value":"A-42"}
			]}}`))
	})
	mux.HandleFunc("/materials", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(
			`{"id":1,"site_id":900,"category_id":11102,"name":"Inverter 1",
			  "brand":"InvCo","model":"IC-50","serial_number":"ABC123",
			  "_embed":{"fields":[{"name":"Inverter ID (Vcom)","value":"WR1"}]}}`,
			`{"id":2,"site_id":900,"category_id":11104,"name":"String 1.1",
			  "brand":"","model":"","serial_number":"STRING-WR1-MPPT-1.1","parent_id":1,
			  "_embed":{"fields":[
				{"name":"MPPT index","value":"1.1"},
				{"name":"nombre de module","value":"18"},
				{"name":"marque du module","value":"SunCo"},
				{"name":"model de module","value":"SC-400"}
			  ]}}`,
			`{"id":3,"site_id":900,"category_id":11103,"name":"Modules",
			  "brand":"SunCo","model":"SC-400","serial_number":""}`,
			`{"id":4,"site_id":900,"category_id":11441,"name":"Centrale",
			  "brand":"","model":"","serial_number":""}`,
		))
	})
	mux.HandleFunc("/workorders", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`{
			"id":50,"site_id":900,"title":"Inverter down","status":"open",
			"priority":"high","description":"[VCOM:T-1] reported by monitoring"}`))
	})
	return httptest.NewServer(mux)
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, Token: "tok"}, WithQuota(transport.Quota{}))
	require.NoError(t, err)
	return c
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "YUMAN_TOKEN")
}

func TestBearerTokenApplied(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		fmt.Fprint(w, page())
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	_, err := c.ListSites(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", got)
}

func TestFetchSnapshotConvertsAtBoundary(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()

	c := newClient(t, srv.URL)
	snap, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Sites, 1)
	site := snap.Sites[900]
	assert.Equal(t, "SYS1", site.VcomSystemKey)
	assert.Equal(t, 900, site.YumanSiteID)
	assert.Equal(t, "2021-03-25", site.CommissionDate, "dates converted to ISO")
	assert.Equal(t, "PN-100", site.ProjectNumberCP)
	assert.Equal(t, "A-42", site.AldiID)
	require.NotNil(t, site.NominalPower)
	assert.Equal(t, 750.0, *site.NominalPower)
	assert.Equal(t, 900, snap.SiteIDByKey["SYS1"])

	// The plant material is not synced; the other three convert.
	require.Len(t, snap.Equipment, 3)

	inv := snap.Equipment["WR1"]
	assert.Equal(t, entities.CategoryInverter, inv.Category)
	assert.Equal(t, 1, inv.YumanMaterialID)
	assert.Equal(t, "ABC123", inv.SerialNumber)

	str1 := snap.Equipment["STRING-WR1-MPPT-1.1"]
	assert.Equal(t, entities.CategoryString, str1.Category)
	assert.Equal(t, "WR1", str1.ParentDeviceID, "parent_id translated to device id")
	assert.Equal(t, "1.1", str1.MPPTIndex)
	assert.Equal(t, "SunCo", str1.Brand, "module brand read from custom field")
	require.NotNil(t, str1.Count)
	assert.Equal(t, 18, *str1.Count)

	mod := snap.Equipment["MODULES-SYS1"]
	assert.Equal(t, entities.CategoryModule, mod.Category)

	require.Len(t, snap.Tickets, 1)
	wo := snap.Tickets["T-1"]
	assert.Equal(t, 50, wo.YumanWorkorderID)
	assert.Equal(t, "SYS1", wo.VcomSystemKey)
	assert.Equal(t, "open", wo.Status)
}

func TestPaginationMergesAllPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pageNo, _ := strconv.Atoi(r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		fmt.Fprintf(w, `{"items":[{"id":%d,"name":"s%d"}],"total_pages":3}`, pageNo, pageNo)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	sites, err := c.ListSites(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, sites, 3)
	for i, s := range sites {
		assert.Equal(t, i+1, s.ID)
	}
}

func TestCreateSite(t *testing.T) {
	var body SitePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"id":901,"name":"Site Beta"}`)
	}))
	defer srv.Close()

	bp := NewBlueprints(map[string]int{FieldSystemKey: 13583}, nil)
	nominal := 500.0
	payload := BuildSitePayload(bp, entities.Site{
		VcomSystemKey: "SYS2",
		Name:          "Site Beta",
		NominalPower:  &nominal,
	}, 77)

	c := newClient(t, srv.URL)
	created, err := c.CreateSite(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 901, created.ID)

	require.NotNil(t, body.ClientID)
	assert.Equal(t, 77, *body.ClientID)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, 13583, body.Fields[0].BlueprintID)
	assert.Equal(t, "SYS2", body.Fields[0].Value)
}

func TestSiteFieldUpdateIsPartial(t *testing.T) {
	bp := NewBlueprints(map[string]int{FieldProjectNumberCP: 13999}, nil)
	p := SiteFieldUpdate(bp, entities.Site{ProjectNumberCP: "PN-100", Name: "x"},
		[]entities.FieldName{entities.SiteFieldProjectNumberCP})

	assert.Nil(t, p.Name, "untouched columns stay out of the payload")
	require.Len(t, p.Fields, 1)
	assert.Equal(t, "PN-100", p.Fields[0].Value)
	assert.Equal(t, 13999, p.Fields[0].BlueprintID)
}

func TestBuildMaterialPayloadString(t *testing.T) {
	count := 18
	p := BuildMaterialPayload(NewBlueprints(nil, nil), entities.Equipment{
		VcomDeviceID: "STRING-WR1-MPPT-1.1",
		Category:     entities.CategoryString,
		Name:         "String 1.1",
		Brand:        "SunCo",
		Model:        "SC-400",
		MPPTIndex:    "1.1",
		Count:        &count,
	}, 900, 31)

	require.NotNil(t, p.CategoryID)
	assert.Equal(t, CategoryStringID, *p.CategoryID)
	require.NotNil(t, p.SerialNumber)
	assert.Equal(t, "STRING-WR1-MPPT-1.1", *p.SerialNumber, "device id doubles as serial")
	require.NotNil(t, p.ParentID)
	assert.Equal(t, 31, *p.ParentID)

	byName := map[string]string{}
	for _, f := range p.Fields {
		byName[f.Name] = f.Value
	}
	assert.Equal(t, "1.1", byName[FieldMPPTIndex])
	assert.Equal(t, "18", byName[FieldModuleCount])
	assert.Equal(t, "SunCo", byName[FieldModuleBrand])
}

func TestTicketRefRoundTrip(t *testing.T) {
	assert.Equal(t, "T-1", ExtractTicketRef(TicketRef("T-1")))
	assert.Equal(t, "T-1", ExtractTicketRef("note [VCOM:T-1] trailing"))
	assert.Equal(t, "", ExtractTicketRef("no marker here"))
}

func TestResolveBlueprints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("target") {
		case "site":
			fmt.Fprint(w, page(`{"blueprint_id":13583,"name":"System Key (Vcom ID)"}`))
		case "material":
			fmt.Fprint(w, page(`{"blueprint_id":16020,"name":"MPPT index"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	bp, err := c.ResolveBlueprints(context.Background())
	require.NoError(t, err)

	id, err := bp.SiteField(FieldSystemKey)
	require.NoError(t, err)
	assert.Equal(t, 13583, id)

	id, err = bp.MaterialField(FieldMPPTIndex)
	require.NoError(t, err)
	assert.Equal(t, 16020, id)

	_, err = bp.SiteField("unknown")
	require.Error(t, err)
}
