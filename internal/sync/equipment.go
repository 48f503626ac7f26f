package sync

import (
	"context"
	"sort"
	"strconv"

	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
	"github.com/centroplan/vysync/pkg/diff"
	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

// equipmentIgnoreFields excludes the display name from diffing; both
// systems decorate it independently.
var equipmentIgnoreFields = entities.NewFieldSet(
	entities.EquipmentFieldName,
)

// syncEquipment reconciles V devices with Y materials. Devices are
// processed in creation order so a string's parent inverter exists
// before the string referencing it.
func (e *Engine) syncEquipment(ctx context.Context, res *Result, vs *vcom.Snapshot, ys *yuman.Snapshot, bp *yuman.Blueprints) {
	log := logging.FromContext(ctx)
	log.Info().Int("vcom", len(vs.Equipment)).Int("yuman", len(ys.Equipment)).Msg("equipment pass started")

	// Yuman material id per VCOM device id, extended as creates land.
	materialIDs := make(map[string]int, len(ys.Equipment))
	for deviceID, eq := range ys.Equipment {
		if eq.YumanMaterialID != 0 {
			materialIDs[deviceID] = eq.YumanMaterialID
		}
	}

	matchedY := make(map[string]bool)
	for _, deviceID := range orderedDeviceIDs(vs.Equipment) {
		vEq := vs.Equipment[deviceID]
		e.syncOneEquipment(ctx, res, vEq, ys, materialIDs, matchedY, bp)
	}

	yIDs := make([]string, 0, len(ys.Equipment))
	for deviceID := range ys.Equipment {
		if !matchedY[deviceID] {
			yIDs = append(yIDs, deviceID)
		}
	}
	sort.Strings(yIDs)
	for _, deviceID := range yIDs {
		e.syncYOnlyEquipment(ctx, res, ys.Equipment[deviceID])
	}
}

func (e *Engine) syncOneEquipment(ctx context.Context, res *Result, vEq entities.Equipment, ys *yuman.Snapshot, materialIDs map[string]int, matchedY map[string]bool, bp *yuman.Blueprints) {
	log := logging.FromContext(ctx)
	deviceID := vEq.VcomDeviceID

	stored, err := e.st.EquipmentByVDeviceID(ctx, deviceID)
	hasStored := err == nil
	if err != nil && !errors.IsNotFound(err) {
		res.fail(entities.KindEquipment, deviceID, "correlate", err)
		return
	}

	yEq, hasY := ys.Equipment[deviceID]
	if hasY {
		matchedY[deviceID] = true
	}

	storedView := diff.Stored{}
	if hasStored {
		storedView = diff.Stored{
			HasVCOMKey:  stored.VcomDeviceID != "",
			HasYumanKey: stored.YumanMaterialID != 0,
			Ignore:      stored.Ignore,
			Snapshot:    stored.Snapshot(),
		}
	}
	if storedView.Ignore {
		res.Equipment.NoOp++
		return
	}

	var yRec diff.Record
	if hasY {
		yRec = yEq
	}
	action := e.diff.Diff(entities.KindEquipment, vEq, yRec, storedView, equipmentIgnoreFields)
	e.recordConflicts(ctx, res, entities.KindEquipment, deviceID, action.Conflicts)

	desired := vEq
	if hasY {
		desired.YumanMaterialID = yEq.YumanMaterialID
	} else if hasStored {
		desired.YumanMaterialID = stored.YumanMaterialID
	}
	if hasStored {
		desired.Ignore = stored.Ignore
	}

	switch action.Type {
	case diff.ActionNoOp:
		res.Equipment.NoOp++

	case diff.ActionCreateInYuman:
		e.audit(ctx, entities.KindEquipment, deviceID, string(action.Type), "yuman")
		if e.opts.DryRun {
			log.Info().Str("device_id", deviceID).Str("category", string(vEq.Category)).
				Msg("dry-run: would create Yuman material")
			res.Equipment.Created++
			return
		}
		siteID, ok := e.yumanSiteID(ctx, vEq.VcomSystemKey, ys)
		if !ok {
			res.fail(entities.KindEquipment, deviceID, "apply",
				errors.NewSyncError(string(entities.KindEquipment), deviceID, "apply", errors.ErrNotFound))
			return
		}
		parentID := materialIDs[vEq.ParentDeviceID]
		if vEq.Category == entities.CategoryString && parentID == 0 {
			// Parent inverter creation failed earlier in this pass.
			res.fail(entities.KindEquipment, deviceID, "apply",
				errors.NewSyncError(string(entities.KindEquipment), deviceID, "apply", errors.ErrNotFound))
			return
		}
		created, err := e.yc.CreateMaterial(ctx, yuman.BuildMaterialPayload(bp, vEq, siteID, parentID))
		if err != nil {
			res.fail(entities.KindEquipment, deviceID, "apply", err)
			return
		}
		desired.YumanMaterialID = created.ID
		materialIDs[deviceID] = created.ID
		log.Info().Str("device_id", deviceID).Int("material_id", created.ID).Msg("Yuman material created")
		res.Equipment.Created++

	case diff.ActionUpdate:
		changes := action.ChangesFor(entities.SystemYuman)
		if len(changes) > 0 {
			e.audit(ctx, entities.KindEquipment, deviceID, string(action.Type), "yuman")
			if e.opts.DryRun {
				log.Info().Str("device_id", deviceID).Int("fields", len(changes)).
					Msg("dry-run: would update Yuman material")
			} else {
				parentID := materialIDs[vEq.ParentDeviceID]
				payload := materialUpdatePayload(bp, vEq, changes, parentID)
				if err := e.yc.UpdateMaterial(ctx, desired.YumanMaterialID, payload); err != nil {
					res.fail(entities.KindEquipment, deviceID, "apply", err)
					return
				}
			}
		}
		res.Equipment.Updated++

	case diff.ActionFlagOrphan:
		log.Warn().Str("device_id", deviceID).Str("missing_side", string(action.OrphanSide)).
			Msg("equipment mapped on one side only")
		e.audit(ctx, entities.KindEquipment, deviceID, string(action.Type), string(action.OrphanSide))
		res.Equipment.Orphaned++
	}

	if e.opts.DryRun {
		return
	}
	if _, err := e.upsertEquipment(ctx, desired); err != nil {
		res.fail(entities.KindEquipment, deviceID, "persist", err)
	}
}

func (e *Engine) syncYOnlyEquipment(ctx context.Context, res *Result, yEq entities.Equipment) {
	log := logging.FromContext(ctx)
	entityID := yEq.VcomDeviceID
	if entityID == "" {
		entityID = "yuman:" + strconv.Itoa(yEq.YumanMaterialID)
	}

	if rec, err := e.st.EquipmentByYID(ctx, yEq.YumanMaterialID); err == nil && rec.Ignore {
		res.Equipment.NoOp++
		return
	}

	log.Warn().Str("entity", entityID).Msg("material exists in Yuman only")
	e.audit(ctx, entities.KindEquipment, entityID, string(diff.ActionFlagOrphan), string(entities.SystemVCOM))
	res.Equipment.Orphaned++

	if e.opts.DryRun {
		return
	}
	if _, err := e.upsertEquipment(ctx, yEq); err != nil {
		res.fail(entities.KindEquipment, entityID, "persist", err)
	}
}

// yumanSiteID resolves the Y site a device belongs to, preferring the
// fresh snapshot over the store.
func (e *Engine) yumanSiteID(ctx context.Context, systemKey string, ys *yuman.Snapshot) (int, bool) {
	if id, ok := ys.SiteIDByKey[systemKey]; ok {
		return id, true
	}
	if rec, err := e.st.SiteByVKey(ctx, systemKey); err == nil && rec.YumanSiteID != 0 {
		return rec.YumanSiteID, true
	}
	return 0, false
}

// materialUpdatePayload renders only the changed columns and fields.
func materialUpdatePayload(bp *yuman.Blueprints, eq entities.Equipment, changes []diff.FieldChange, parentID int) yuman.MaterialPayload {
	full := yuman.BuildMaterialPayload(bp, eq, 0, parentID)
	var p yuman.MaterialPayload
	for _, c := range changes {
		switch c.Field {
		case entities.EquipmentFieldBrand:
			p.Brand = full.Brand
		case entities.EquipmentFieldModel:
			p.Model = full.Model
		case entities.EquipmentFieldSerialNumber:
			p.SerialNumber = full.SerialNumber
		case entities.EquipmentFieldParentDevice:
			p.ParentID = full.ParentID
		case entities.EquipmentFieldCount, entities.EquipmentFieldMPPTIndex:
			p.Fields = full.Fields
		}
	}
	return p
}

// orderedDeviceIDs sorts devices by creation rank, then id, so parents
// precede children deterministically.
func orderedDeviceIDs(equipment map[string]entities.Equipment) []string {
	ids := make([]string, 0, len(equipment))
	for id := range equipment {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := equipment[ids[i]], equipment[ids[j]]
		if ra, rb := a.Category.CreationOrder(), b.Category.CreationOrder(); ra != rb {
			return ra < rb
		}
		return ids[i] < ids[j]
	})
	return ids
}
