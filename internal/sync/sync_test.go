package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centroplan/vysync/internal/store"
	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
	"github.com/centroplan/vysync/pkg/diff"
	"github.com/centroplan/vysync/pkg/entities"
)

type fakeVCOM struct {
	snap    *vcom.Snapshot
	updates map[string]map[string]any
	closed  []string
}

func (f *fakeVCOM) FetchSnapshot(ctx context.Context, systemKey string) (*vcom.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeVCOM) UpdateTicket(ctx context.Context, ticketID string, updates map[string]any) error {
	if f.updates == nil {
		f.updates = make(map[string]map[string]any)
	}
	f.updates[ticketID] = updates
	return nil
}

func (f *fakeVCOM) CloseTicket(ctx context.Context, ticketID, summary string) error {
	f.closed = append(f.closed, ticketID)
	return nil
}

type fakeYuman struct {
	snap *yuman.Snapshot

	nextID           int
	createdSites     []yuman.SitePayload
	createdMaterials []yuman.MaterialPayload
	createdWOs       []yuman.WorkorderPayload
	siteUpdates      map[int]yuman.SitePayload
	materialUpdates  map[int]yuman.MaterialPayload
	woUpdates        map[int]yuman.WorkorderPayload
}

func (f *fakeYuman) FetchSnapshot(ctx context.Context) (*yuman.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeYuman) ResolveBlueprints(ctx context.Context) (*yuman.Blueprints, error) {
	return yuman.NewBlueprints(
		map[string]int{yuman.FieldSystemKey: 13583},
		map[string]int{yuman.FieldMPPTIndex: 16020},
	), nil
}

func (f *fakeYuman) ListClients(ctx context.Context) ([]yuman.ClientAccount, error) {
	return []yuman.ClientAccount{{ID: 77, Name: "Centroplan"}}, nil
}

func (f *fakeYuman) id() int {
	f.nextID++
	return 1000 + f.nextID
}

func (f *fakeYuman) CreateSite(ctx context.Context, p yuman.SitePayload) (yuman.Site, error) {
	f.createdSites = append(f.createdSites, p)
	return yuman.Site{ID: f.id()}, nil
}

func (f *fakeYuman) UpdateSite(ctx context.Context, siteID int, p yuman.SitePayload) error {
	if f.siteUpdates == nil {
		f.siteUpdates = make(map[int]yuman.SitePayload)
	}
	f.siteUpdates[siteID] = p
	return nil
}

func (f *fakeYuman) CreateMaterial(ctx context.Context, p yuman.MaterialPayload) (yuman.Material, error) {
	f.createdMaterials = append(f.createdMaterials, p)
	return yuman.Material{ID: f.id()}, nil
}

func (f *fakeYuman) UpdateMaterial(ctx context.Context, materialID int, p yuman.MaterialPayload) error {
	if f.materialUpdates == nil {
		f.materialUpdates = make(map[int]yuman.MaterialPayload)
	}
	f.materialUpdates[materialID] = p
	return nil
}

func (f *fakeYuman) CreateWorkorder(ctx context.Context, p yuman.WorkorderPayload) (yuman.Workorder, error) {
	f.createdWOs = append(f.createdWOs, p)
	return yuman.Workorder{ID: f.id()}, nil
}

func (f *fakeYuman) UpdateWorkorder(ctx context.Context, workorderID int, p yuman.WorkorderPayload) error {
	if f.woUpdates == nil {
		f.woUpdates = make(map[int]yuman.WorkorderPayload)
	}
	f.woUpdates[workorderID] = p
	return nil
}

func emptyVSnap() *vcom.Snapshot {
	return &vcom.Snapshot{
		Sites:     map[string]entities.Site{},
		Equipment: map[string]entities.Equipment{},
		Tickets:   map[string]entities.Ticket{},
	}
}

func emptyYSnap() *yuman.Snapshot {
	return &yuman.Snapshot{
		Sites:       map[int]entities.Site{},
		Equipment:   map[string]entities.Equipment{},
		Tickets:     map[string]entities.Ticket{},
		SiteIDByKey: map[string]int{},
	}
}

func intPtr(v int) *int { return &v }

func newEngine(vc *fakeVCOM, yc *fakeYuman, st store.Store, opts Options) *Engine {
	return New(vc, yc, st, diff.New(), opts)
}

func TestRunCreatesMissingEntitiesInYuman(t *testing.T) {
	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "Site Alpha"}
	vSnap.Equipment["WR1"] = entities.Equipment{
		VcomSystemKey: "SYS1", VcomDeviceID: "WR1",
		Category: entities.CategoryInverter, SerialNumber: "ABC123",
	}
	vSnap.Equipment["STRING-WR1-MPPT-1.1"] = entities.Equipment{
		VcomSystemKey: "SYS1", VcomDeviceID: "STRING-WR1-MPPT-1.1",
		Category: entities.CategoryString, MPPTIndex: "1.1",
		Count: intPtr(18), ParentDeviceID: "WR1",
	}
	vSnap.Tickets["T-1"] = entities.Ticket{
		VcomTicketID: "T-1", VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "open", Priority: "high",
	}

	vc := &fakeVCOM{snap: vSnap}
	yc := &fakeYuman{snap: emptyYSnap()}
	st := store.NewMemory()

	res, err := newEngine(vc, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sites.Created)
	assert.Equal(t, 2, res.Equipment.Created)
	assert.Equal(t, 1, res.Tickets.Created)
	assert.Zero(t, res.Totals().Failed)

	require.Len(t, yc.createdSites, 1)
	require.NotNil(t, yc.createdSites[0].ClientID)
	assert.Equal(t, 77, *yc.createdSites[0].ClientID)

	// Inverter first, then the string pointing at the new material id.
	require.Len(t, yc.createdMaterials, 2)
	assert.Equal(t, yuman.CategoryInverterID, *yc.createdMaterials[0].CategoryID)
	assert.Equal(t, yuman.CategoryStringID, *yc.createdMaterials[1].CategoryID)
	require.NotNil(t, yc.createdMaterials[1].ParentID)

	require.Len(t, yc.createdWOs, 1)
	require.NotNil(t, yc.createdWOs[0].Description)
	assert.Equal(t, "[VCOM:T-1]", *yc.createdWOs[0].Description)

	// New Y ids are written back to the correlation rows.
	site, err := st.SiteByVKey(context.Background(), "SYS1")
	require.NoError(t, err)
	assert.NotZero(t, site.YumanSiteID)

	inv, err := st.EquipmentByVDeviceID(context.Background(), "WR1")
	require.NoError(t, err)
	assert.NotZero(t, inv.YumanMaterialID)

	ticket, err := st.TicketByVID(context.Background(), "T-1")
	require.NoError(t, err)
	assert.NotZero(t, ticket.YumanWorkorderID)
}

func TestRunNoOpWhenBothSidesAgree(t *testing.T) {
	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "042 Site Alpha (old)"}

	ySnap := emptyYSnap()
	ySnap.Sites[900] = entities.Site{VcomSystemKey: "SYS1", YumanSiteID: 900, Name: "Site Alpha"}
	ySnap.SiteIDByKey["SYS1"] = 900

	vc := &fakeVCOM{snap: vSnap}
	yc := &fakeYuman{snap: ySnap}

	res, err := newEngine(vc, yc, store.NewMemory(), Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sites.NoOp, "cosmetic differences normalize away")
	assert.Empty(t, yc.createdSites)
	assert.Empty(t, yc.siteUpdates)
}

func TestRunPushesAuthoritativeValueToYuman(t *testing.T) {
	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{
		VcomSystemKey: "SYS1", Name: "Site Alpha", ProjectNumberCP: "PN-100",
	}

	ySnap := emptyYSnap()
	ySnap.Sites[900] = entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900,
		Name: "Site Alpha", ProjectNumberCP: "PN-099",
	}
	ySnap.SiteIDByKey["SYS1"] = 900

	st := store.NewMemory()
	yc := &fakeYuman{snap: ySnap}

	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sites.Updated)
	require.Contains(t, yc.siteUpdates, 900)
	require.Len(t, yc.siteUpdates[900].Fields, 1)
	assert.Equal(t, "PN-100", yc.siteUpdates[900].Fields[0].Value)

	rec, err := st.SiteByVKey(context.Background(), "SYS1")
	require.NoError(t, err)
	assert.Equal(t, "PN-100", rec.ProjectNumberCP)
}

func TestRunKeepsYumanEditWhenOnlyYumanChanged(t *testing.T) {
	st := store.NewMemory()
	_, err := st.UpsertSite(context.Background(), entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900,
		Name: "Site Alpha", AldiID: "A-42",
	})
	require.NoError(t, err)

	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "Site Alpha"}

	ySnap := emptyYSnap()
	ySnap.Sites[900] = entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900,
		Name: "Site Alpha", AldiID: "A-43",
	}
	ySnap.SiteIDByKey["SYS1"] = 900

	yc := &fakeYuman{snap: ySnap}
	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sites.Updated)
	assert.Empty(t, yc.siteUpdates, "the edited side is not overwritten")

	rec, err := st.SiteByVKey(context.Background(), "SYS1")
	require.NoError(t, err)
	assert.Equal(t, "A-43", rec.AldiID, "the Yuman edit lands in the store")
}

func TestRunFlagsOrphanWhenCounterpartGone(t *testing.T) {
	st := store.NewMemory()
	_, err := st.UpsertSite(context.Background(), entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900, Name: "Site Alpha",
	})
	require.NoError(t, err)

	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "Site Alpha"}

	yc := &fakeYuman{snap: emptyYSnap()}
	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sites.Orphaned)
	assert.Empty(t, yc.createdSites, "orphans are surfaced, never auto-created")
}

func TestRunIgnoredRecordIsFrozen(t *testing.T) {
	st := store.NewMemory()
	_, err := st.UpsertSite(context.Background(), entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900, Name: "Old Name", Ignore: true,
	})
	require.NoError(t, err)

	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "New Name"}

	yc := &fakeYuman{snap: emptyYSnap()}
	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Sites.NoOp)
	assert.Zero(t, res.Sites.Orphaned)
	assert.Empty(t, yc.createdSites)

	rec, err := st.SiteByVKey(context.Background(), "SYS1")
	require.NoError(t, err)
	assert.Equal(t, "Old Name", rec.Name, "frozen records keep their stored state")
}

func TestRunDryRunWritesNothing(t *testing.T) {
	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "Site Alpha"}

	st := store.NewMemory()
	yc := &fakeYuman{snap: emptyYSnap()}

	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{DryRun: true}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Sites.Created, "actions are reported")
	assert.Empty(t, yc.createdSites, "but nothing is written remotely")

	sites, err := st.ListSites(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sites, "and nothing is persisted")

	require.NotEmpty(t, st.SyncLogs)
	assert.True(t, st.SyncLogs[0].DryRun)
}

func TestRunClosesTicketWhenWorkorderDone(t *testing.T) {
	st := store.NewMemory()
	_, err := st.UpsertTicket(context.Background(), entities.Ticket{
		VcomTicketID: "T-1", YumanWorkorderID: 50, VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "open", Priority: "high",
	})
	require.NoError(t, err)

	vSnap := emptyVSnap()
	vSnap.Tickets["T-1"] = entities.Ticket{
		VcomTicketID: "T-1", VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "open", Priority: "high",
	}

	ySnap := emptyYSnap()
	ySnap.Tickets["T-1"] = entities.Ticket{
		VcomTicketID: "T-1", YumanWorkorderID: 50, VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "closed", Priority: "high",
	}

	vc := &fakeVCOM{snap: vSnap}
	res, err := newEngine(vc, &fakeYuman{snap: ySnap}, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Tickets.Updated)
	assert.Equal(t, []string{"T-1"}, vc.closed)

	rec, err := st.TicketByVID(context.Background(), "T-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", rec.Status)
}

func TestRunRecordsConflictWhenBothSidesDiverged(t *testing.T) {
	st := store.NewMemory()
	_, err := st.UpsertSite(context.Background(), entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900,
		Name: "Site Alpha", Address: "old address",
	})
	require.NoError(t, err)

	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{
		VcomSystemKey: "SYS1", Name: "Site Alpha", Address: "vcom address",
	}

	ySnap := emptyYSnap()
	ySnap.Sites[900] = entities.Site{
		VcomSystemKey: "SYS1", YumanSiteID: 900,
		Name: "Site Alpha", Address: "yuman address",
	}
	ySnap.SiteIDByKey["SYS1"] = 900

	yc := &fakeYuman{snap: ySnap}
	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Conflicts)
	require.Len(t, st.ConflictLogs, 1)
	assert.Equal(t, "address", st.ConflictLogs[0].Field)
	assert.Equal(t, "vcom", st.ConflictLogs[0].Winner, "authority default decides")

	// The winning value is pushed to the losing side.
	require.Contains(t, yc.siteUpdates, 900)
	require.NotNil(t, yc.siteUpdates[900].Address)
	assert.Equal(t, "vcom address", *yc.siteUpdates[900].Address)
}

func TestRunUnifiesSplitCorrelationRows(t *testing.T) {
	// Each kind starts with two half-mapped rows describing one entity:
	// one carrying only the V key, one carrying only the Y id.
	st := store.NewMemory()
	ctx := context.Background()

	_, err := st.UpsertSite(ctx, entities.Site{VcomSystemKey: "SYS1", Name: "Site Alpha"})
	require.NoError(t, err)
	_, err = st.UpsertSite(ctx, entities.Site{YumanSiteID: 900, Name: "Site Alpha"})
	require.NoError(t, err)
	_, err = st.UpsertEquipment(ctx, entities.Equipment{
		VcomSystemKey: "SYS1", VcomDeviceID: "WR1", Category: entities.CategoryInverter,
	})
	require.NoError(t, err)
	_, err = st.UpsertEquipment(ctx, entities.Equipment{
		YumanMaterialID: 31, Category: entities.CategoryInverter,
	})
	require.NoError(t, err)
	_, err = st.UpsertTicket(ctx, entities.Ticket{
		VcomTicketID: "T-1", VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "open", Priority: "high",
	})
	require.NoError(t, err)
	_, err = st.UpsertTicket(ctx, entities.Ticket{YumanWorkorderID: 50, Status: "open"})
	require.NoError(t, err)

	vSnap := emptyVSnap()
	vSnap.Sites["SYS1"] = entities.Site{VcomSystemKey: "SYS1", Name: "Site Alpha"}
	vSnap.Equipment["WR1"] = entities.Equipment{
		VcomSystemKey: "SYS1", VcomDeviceID: "WR1", Category: entities.CategoryInverter,
	}
	vSnap.Tickets["T-1"] = entities.Ticket{
		VcomTicketID: "T-1", VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "open", Priority: "high",
	}

	ySnap := emptyYSnap()
	ySnap.Sites[900] = entities.Site{VcomSystemKey: "SYS1", YumanSiteID: 900, Name: "Site Alpha"}
	ySnap.SiteIDByKey["SYS1"] = 900
	ySnap.Equipment["WR1"] = entities.Equipment{
		VcomSystemKey: "SYS1", VcomDeviceID: "WR1",
		YumanMaterialID: 31, Category: entities.CategoryInverter,
	}
	ySnap.Tickets["T-1"] = entities.Ticket{
		VcomTicketID: "T-1", YumanWorkorderID: 50, VcomSystemKey: "SYS1",
		Title: "Inverter down", Status: "open", Priority: "high",
	}

	res, err := newEngine(&fakeVCOM{snap: vSnap}, &fakeYuman{snap: ySnap}, st, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Totals().Failed, "split rows must not fail the entities")

	// Each pair collapsed into one row carrying both keys.
	site, err := st.SiteByVKey(ctx, "SYS1")
	require.NoError(t, err)
	assert.Equal(t, 900, site.YumanSiteID)
	sites, err := st.ListSites(ctx)
	require.NoError(t, err)
	assert.Len(t, sites, 1)

	eq, err := st.EquipmentByVDeviceID(ctx, "WR1")
	require.NoError(t, err)
	assert.Equal(t, 31, eq.YumanMaterialID)
	equipment, err := st.ListEquipment(ctx)
	require.NoError(t, err)
	assert.Len(t, equipment, 1)

	ticket, err := st.TicketByVID(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, 50, ticket.YumanWorkorderID)
	tickets, err := st.ListTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestRunLowPriorityTicketGetsNoWorkorder(t *testing.T) {
	vSnap := emptyVSnap()
	vSnap.Tickets["T-2"] = entities.Ticket{
		VcomTicketID: "T-2", VcomSystemKey: "SYS1",
		Title: "Minor warning", Status: "open", Priority: "low",
	}

	st := store.NewMemory()
	yc := &fakeYuman{snap: emptyYSnap()}
	res, err := newEngine(&fakeVCOM{snap: vSnap}, yc, st, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, yc.createdWOs)
	assert.Equal(t, 1, res.Tickets.NoOp)

	// Tracked in the store regardless.
	_, err = st.TicketByVID(context.Background(), "T-2")
	require.NoError(t, err)
}
