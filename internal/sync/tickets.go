package sync

import (
	"context"
	"sort"

	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
	"github.com/centroplan/vysync/pkg/diff"
	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

// Ticket priorities that warrant a field intervention, and therefore a
// workorder.
func needsWorkorder(priority string) bool {
	return priority == "high" || priority == "urgent"
}

const closedStatus = "closed"

// syncTickets reconciles V monitoring tickets with Y workorders.
// Workorders are only opened for high and urgent tickets; status and
// priority flow back from Y, and a V ticket is closed once its
// workorder is done.
func (e *Engine) syncTickets(ctx context.Context, res *Result, vs *vcom.Snapshot, ys *yuman.Snapshot) {
	log := logging.FromContext(ctx)
	log.Info().Int("vcom", len(vs.Tickets)).Int("yuman", len(ys.Tickets)).Msg("ticket pass started")

	ids := make([]string, 0, len(vs.Tickets))
	for id := range vs.Tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e.syncOneTicket(ctx, res, vs.Tickets[id], ys)
	}
}

func (e *Engine) syncOneTicket(ctx context.Context, res *Result, vTicket entities.Ticket, ys *yuman.Snapshot) {
	log := logging.FromContext(ctx)
	ticketID := vTicket.VcomTicketID

	stored, err := e.st.TicketByVID(ctx, ticketID)
	hasStored := err == nil
	if err != nil && !errors.IsNotFound(err) {
		res.fail(entities.KindTicket, ticketID, "correlate", err)
		return
	}

	yTicket, hasY := ys.Tickets[ticketID]
	if !hasY && hasStored && stored.YumanWorkorderID != 0 {
		for _, t := range ys.Tickets {
			if t.YumanWorkorderID == stored.YumanWorkorderID {
				yTicket, hasY = t, true
				break
			}
		}
	}

	storedView := diff.Stored{}
	if hasStored {
		storedView = diff.Stored{
			HasVCOMKey:  stored.VcomTicketID != "",
			HasYumanKey: stored.YumanWorkorderID != 0,
			Ignore:      stored.Ignore,
			Snapshot:    stored.Snapshot(),
		}
	}
	if storedView.Ignore {
		res.Tickets.NoOp++
		return
	}

	var yRec diff.Record
	if hasY {
		yRec = yTicket
	}
	action := e.diff.Diff(entities.KindTicket, vTicket, yRec, storedView, nil)
	e.recordConflicts(ctx, res, entities.KindTicket, ticketID, action.Conflicts)

	desired := vTicket
	if hasY {
		desired.YumanWorkorderID = yTicket.YumanWorkorderID
		for _, c := range action.ChangesFor(entities.SystemVCOM) {
			copyTicketField(&desired, yTicket, c.Field)
		}
	} else if hasStored {
		desired.YumanWorkorderID = stored.YumanWorkorderID
	}

	switch action.Type {
	case diff.ActionNoOp:
		res.Tickets.NoOp++

	case diff.ActionCreateInYuman:
		// Only actionable tickets become workorders; the rest are just
		// tracked in the store.
		if !needsWorkorder(vTicket.Priority) || vTicket.Status == closedStatus {
			res.Tickets.NoOp++
			break
		}
		e.audit(ctx, entities.KindTicket, ticketID, string(action.Type), "yuman")
		if e.opts.DryRun {
			log.Info().Str("ticket_id", ticketID).Msg("dry-run: would create Yuman workorder")
			res.Tickets.Created++
			return
		}
		siteID, ok := e.yumanSiteID(ctx, vTicket.VcomSystemKey, ys)
		if !ok {
			res.fail(entities.KindTicket, ticketID, "apply",
				errors.NewSyncError(string(entities.KindTicket), ticketID, "apply", errors.ErrNotFound))
			return
		}
		created, err := e.yc.CreateWorkorder(ctx, yuman.BuildWorkorderPayload(vTicket, siteID))
		if err != nil {
			res.fail(entities.KindTicket, ticketID, "apply", err)
			return
		}
		desired.YumanWorkorderID = created.ID
		log.Info().Str("ticket_id", ticketID).Int("workorder_id", created.ID).Msg("Yuman workorder created")
		res.Tickets.Created++

	case diff.ActionUpdate:
		if err := e.applyTicketUpdate(ctx, vTicket, yTicket, desired, action); err != nil {
			res.fail(entities.KindTicket, ticketID, "apply", err)
			return
		}
		res.Tickets.Updated++

	case diff.ActionFlagOrphan:
		log.Warn().Str("ticket_id", ticketID).Str("missing_side", string(action.OrphanSide)).
			Msg("ticket mapped on one side only")
		e.audit(ctx, entities.KindTicket, ticketID, string(action.Type), string(action.OrphanSide))
		res.Tickets.Orphaned++
	}

	if e.opts.DryRun {
		return
	}
	if _, err := e.upsertTicket(ctx, desired); err != nil {
		res.fail(entities.KindTicket, ticketID, "persist", err)
	}
}

// applyTicketUpdate pushes changes to both targets. Yuman owns status
// and priority, so a workorder closure flows back as a V ticket close.
func (e *Engine) applyTicketUpdate(ctx context.Context, vTicket, yTicket, desired entities.Ticket, action diff.Action) error {
	log := logging.FromContext(ctx)
	ticketID := vTicket.VcomTicketID

	if changes := action.ChangesFor(entities.SystemYuman); len(changes) > 0 && desired.YumanWorkorderID != 0 {
		e.audit(ctx, entities.KindTicket, ticketID, string(action.Type), "yuman")
		if e.opts.DryRun {
			log.Info().Str("ticket_id", ticketID).Int("fields", len(changes)).
				Msg("dry-run: would update Yuman workorder")
		} else {
			var payload yuman.WorkorderPayload
			full := yuman.BuildWorkorderPayload(vTicket, 0)
			for _, c := range changes {
				switch c.Field {
				case entities.TicketFieldTitle:
					payload.Title = full.Title
				case entities.TicketFieldStatus:
					payload.Status = full.Status
				case entities.TicketFieldPriority:
					payload.Priority = full.Priority
				}
			}
			if err := e.yc.UpdateWorkorder(ctx, desired.YumanWorkorderID, payload); err != nil {
				return err
			}
		}
	}

	if changes := action.ChangesFor(entities.SystemVCOM); len(changes) > 0 {
		e.audit(ctx, entities.KindTicket, ticketID, string(action.Type), "vcom")
		if e.opts.DryRun {
			log.Info().Str("ticket_id", ticketID).Int("fields", len(changes)).
				Msg("dry-run: would update VCOM ticket")
			return nil
		}
		updates := make(map[string]any, len(changes))
		closing := false
		for _, c := range changes {
			switch c.Field {
			case entities.TicketFieldStatus:
				if yTicket.Status == closedStatus {
					closing = true
					continue
				}
				updates["status"] = yTicket.Status
			case entities.TicketFieldPriority:
				updates["priority"] = yTicket.Priority
			case entities.TicketFieldTitle:
				updates["designation"] = yTicket.Title
			}
		}
		if len(updates) > 0 {
			if err := e.vc.UpdateTicket(ctx, ticketID, updates); err != nil {
				return err
			}
		}
		if closing {
			if err := e.vc.CloseTicket(ctx, ticketID, "Workorder completed"); err != nil {
				return err
			}
			log.Info().Str("ticket_id", ticketID).Msg("VCOM ticket closed after workorder completion")
		}
	}
	return nil
}

func copyTicketField(dst *entities.Ticket, src entities.Ticket, f entities.FieldName) {
	switch f {
	case entities.TicketFieldTitle:
		dst.Title = src.Title
	case entities.TicketFieldStatus:
		dst.Status = src.Status
	case entities.TicketFieldPriority:
		dst.Priority = src.Priority
	}
}
