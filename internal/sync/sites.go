package sync

import (
	"context"
	"sort"
	"strconv"

	"github.com/centroplan/vysync/internal/store"
	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
	"github.com/centroplan/vysync/pkg/diff"
	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

// siteIgnoreFields are cosmetic site attributes excluded from diffing.
// Coordinates drift between the systems' geocoders without any real
// change on the ground.
var siteIgnoreFields = entities.NewFieldSet(
	entities.SiteFieldLatitude,
	entities.SiteFieldLongitude,
)

// syncSites reconciles V systems with Y sites.
func (e *Engine) syncSites(ctx context.Context, res *Result, vs *vcom.Snapshot, ys *yuman.Snapshot, bp *yuman.Blueprints) {
	log := logging.FromContext(ctx)
	log.Info().Int("vcom", len(vs.Sites)).Int("yuman", len(ys.Sites)).Msg("site pass started")

	nameIndex := make(map[string]int, len(ys.Sites))
	for id, site := range ys.Sites {
		if site.VcomSystemKey == "" {
			nameIndex[entities.NormalizeName(site.Name)] = id
		}
	}

	matchedY := make(map[int]bool)
	for _, key := range sortedSiteKeys(vs.Sites) {
		vSite := vs.Sites[key]
		e.syncOneSite(ctx, res, vSite, ys, nameIndex, matchedY, bp)
	}

	// Sites Yuman knows and VCOM does not.
	yIDs := make([]int, 0, len(ys.Sites))
	for id := range ys.Sites {
		if !matchedY[id] {
			yIDs = append(yIDs, id)
		}
	}
	sort.Ints(yIDs)
	for _, id := range yIDs {
		e.syncYOnlySite(ctx, res, ys.Sites[id])
	}
}

func (e *Engine) syncOneSite(ctx context.Context, res *Result, vSite entities.Site, ys *yuman.Snapshot, nameIndex map[string]int, matchedY map[int]bool, bp *yuman.Blueprints) {
	log := logging.FromContext(ctx)
	key := vSite.VcomSystemKey

	stored, err := e.st.SiteByVKey(ctx, key)
	hasStored := err == nil
	if err != nil && !errors.IsNotFound(err) {
		res.fail(entities.KindSite, key, "correlate", err)
		return
	}

	// Counterpart resolution: mapped key first, then the stored Y id,
	// then a cleaned-name match among unmapped Y sites.
	var (
		ySite entities.Site
		hasY  bool
	)
	if id, ok := ys.SiteIDByKey[key]; ok {
		ySite, hasY = ys.Sites[id], true
	} else if hasStored && stored.YumanSiteID != 0 {
		ySite, hasY = ys.Sites[stored.YumanSiteID]
	} else if id, ok := nameIndex[entities.NormalizeName(vSite.Name)]; ok {
		ySite, hasY = ys.Sites[id], true
	}
	if hasY {
		matchedY[ySite.YumanSiteID] = true
	}

	storedView := diff.Stored{}
	if hasStored {
		storedView = diff.Stored{
			HasVCOMKey:  stored.VcomSystemKey != "",
			HasYumanKey: stored.YumanSiteID != 0,
			Ignore:      stored.Ignore,
			Snapshot:    stored.Snapshot(),
		}
	}
	if storedView.Ignore {
		res.Sites.NoOp++
		return
	}

	var yRec diff.Record
	if hasY {
		yRec = ySite
	}
	action := e.diff.Diff(entities.KindSite, vSite, yRec, storedView, siteIgnoreFields)
	e.recordConflicts(ctx, res, entities.KindSite, key, action.Conflicts)

	desired := vSite
	if hasStored {
		desired = store.MergeSites(desired, stored.Site)
	}
	if hasY {
		desired.YumanSiteID = ySite.YumanSiteID
		for _, c := range action.ChangesFor(entities.SystemVCOM) {
			copySiteField(&desired, ySite, c.Field)
		}
		// Y-only identifiers flow into the store even without an update.
		if desired.AldiID == "" {
			desired.AldiID = ySite.AldiID
		}
		if desired.AldiStoreID == "" {
			desired.AldiStoreID = ySite.AldiStoreID
		}
	}

	switch action.Type {
	case diff.ActionNoOp:
		res.Sites.NoOp++

	case diff.ActionCreateInYuman:
		e.audit(ctx, entities.KindSite, key, string(action.Type), "yuman")
		if e.opts.DryRun {
			log.Info().Str("system_key", key).Msg("dry-run: would create Yuman site")
			res.Sites.Created++
			return
		}
		clientID, err := e.clientID(ctx)
		if err != nil {
			res.fail(entities.KindSite, key, "apply", err)
			return
		}
		created, err := e.yc.CreateSite(ctx, yuman.BuildSitePayload(bp, vSite, clientID))
		if err != nil {
			res.fail(entities.KindSite, key, "apply", err)
			return
		}
		desired.YumanSiteID = created.ID
		log.Info().Str("system_key", key).Int("yuman_site_id", created.ID).Msg("Yuman site created")
		res.Sites.Created++

	case diff.ActionUpdate:
		changes := action.ChangesFor(entities.SystemYuman)
		if len(changes) > 0 {
			e.audit(ctx, entities.KindSite, key, string(action.Type), "yuman")
			if e.opts.DryRun {
				log.Info().Str("system_key", key).Int("fields", len(changes)).
					Msg("dry-run: would update Yuman site")
			} else {
				fields := changedFields(changes)
				if err := e.yc.UpdateSite(ctx, desired.YumanSiteID, yuman.SiteFieldUpdate(bp, vSite, fields)); err != nil {
					res.fail(entities.KindSite, key, "apply", err)
					return
				}
			}
		}
		// Changes targeting VCOM land in the store only: the V site
		// surface is read-only, the store carries the Y-owned values.
		res.Sites.Updated++

	case diff.ActionFlagOrphan:
		log.Warn().Str("system_key", key).Str("missing_side", string(action.OrphanSide)).
			Msg("site mapped on one side only")
		e.audit(ctx, entities.KindSite, key, string(action.Type), string(action.OrphanSide))
		res.Sites.Orphaned++
	}

	if e.opts.DryRun {
		return
	}
	if _, err := e.upsertSite(ctx, desired); err != nil {
		res.fail(entities.KindSite, key, "persist", err)
	}
}

// syncYOnlySite tracks a site only Yuman knows about. VCOM systems
// cannot be created through the API, so the record is stored and
// flagged rather than propagated.
func (e *Engine) syncYOnlySite(ctx context.Context, res *Result, ySite entities.Site) {
	log := logging.FromContext(ctx)
	entityID := ySite.VcomSystemKey
	if entityID == "" {
		entityID = "yuman:" + strconv.Itoa(ySite.YumanSiteID)
	}

	storedView := diff.Stored{}
	if rec, err := e.st.SiteByYID(ctx, ySite.YumanSiteID); err == nil {
		if rec.Ignore {
			res.Sites.NoOp++
			return
		}
		storedView = diff.Stored{
			HasVCOMKey:  rec.VcomSystemKey != "",
			HasYumanKey: true,
			Snapshot:    rec.Snapshot(),
		}
	}

	action := e.diff.Diff(entities.KindSite, nil, ySite, storedView, siteIgnoreFields)
	if action.Type == diff.ActionFlagOrphan {
		log.Warn().Str("entity", entityID).Str("missing_side", string(action.OrphanSide)).
			Msg("site exists in Yuman only")
		e.audit(ctx, entities.KindSite, entityID, string(action.Type), string(action.OrphanSide))
		res.Sites.Orphaned++
	}

	if e.opts.DryRun {
		return
	}
	if _, err := e.upsertSite(ctx, ySite); err != nil {
		res.fail(entities.KindSite, entityID, "persist", err)
	}
}

// clientID resolves the Y client new sites belong to. Cached after the
// first lookup.
func (e *Engine) clientID(ctx context.Context) (int, error) {
	if e.opts.ClientID != 0 {
		return e.opts.ClientID, nil
	}
	if e.cachedClientID != 0 {
		return e.cachedClientID, nil
	}
	clients, err := e.yc.ListClients(ctx)
	if err != nil {
		return 0, err
	}
	if len(clients) != 1 {
		return 0, errors.NewConfigError("sync",
			"multiple Yuman clients exist, set the client id explicitly", nil)
	}
	e.cachedClientID = clients[0].ID
	return e.cachedClientID, nil
}

// copySiteField moves one typed field value from src to dst.
func copySiteField(dst *entities.Site, src entities.Site, f entities.FieldName) {
	switch f {
	case entities.SiteFieldName:
		dst.Name = src.Name
	case entities.SiteFieldAddress:
		dst.Address = src.Address
	case entities.SiteFieldLatitude:
		dst.Latitude = src.Latitude
	case entities.SiteFieldLongitude:
		dst.Longitude = src.Longitude
	case entities.SiteFieldNominalPower:
		dst.NominalPower = src.NominalPower
	case entities.SiteFieldCommissionDate:
		dst.CommissionDate = src.CommissionDate
	case entities.SiteFieldProjectNumberCP:
		dst.ProjectNumberCP = src.ProjectNumberCP
	case entities.SiteFieldAldiID:
		dst.AldiID = src.AldiID
	case entities.SiteFieldAldiStoreID:
		dst.AldiStoreID = src.AldiStoreID
	}
}

func changedFields(changes []diff.FieldChange) []entities.FieldName {
	out := make([]entities.FieldName, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Field)
	}
	return out
}

func sortedSiteKeys(sites map[string]entities.Site) []string {
	keys := make([]string, 0, len(sites))
	for k := range sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
