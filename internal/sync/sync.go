// Package sync orchestrates the reconciliation passes between System V,
// System Y and the correlation store. Each entity kind runs as its own
// pass: fetch both snapshots, correlate against the store, diff, apply
// the resulting actions, persist the merged state. A fetch failure
// aborts the pass for that kind; apply failures are isolated per
// entity so one bad record never blocks the rest.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/centroplan/vysync/internal/store"
	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
	"github.com/centroplan/vysync/pkg/diff"
	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

// VCOMClient is the System V surface the engine needs.
type VCOMClient interface {
	FetchSnapshot(ctx context.Context, systemKey string) (*vcom.Snapshot, error)
	UpdateTicket(ctx context.Context, ticketID string, updates map[string]any) error
	CloseTicket(ctx context.Context, ticketID, summary string) error
}

// YumanClient is the System Y surface the engine needs.
type YumanClient interface {
	FetchSnapshot(ctx context.Context) (*yuman.Snapshot, error)
	ResolveBlueprints(ctx context.Context) (*yuman.Blueprints, error)
	ListClients(ctx context.Context) ([]yuman.ClientAccount, error)
	CreateSite(ctx context.Context, payload yuman.SitePayload) (yuman.Site, error)
	UpdateSite(ctx context.Context, siteID int, payload yuman.SitePayload) error
	CreateMaterial(ctx context.Context, payload yuman.MaterialPayload) (yuman.Material, error)
	UpdateMaterial(ctx context.Context, materialID int, payload yuman.MaterialPayload) error
	CreateWorkorder(ctx context.Context, payload yuman.WorkorderPayload) (yuman.Workorder, error)
	UpdateWorkorder(ctx context.Context, workorderID int, payload yuman.WorkorderPayload) error
}

// Options tune one engine run.
type Options struct {
	// DryRun computes and reports actions without writing anywhere.
	DryRun bool

	// SystemKey restricts the run to a single V system.
	SystemKey string

	// ClientID is the Y client new sites are created under. When zero
	// and exactly one Y client exists, that client is used.
	ClientID int

	// Timeout bounds the whole run. Zero means no deadline.
	Timeout time.Duration
}

// Engine drives the reconciliation.
type Engine struct {
	vc    VCOMClient
	yc    YumanClient
	st    store.Store
	diff  *diff.Engine
	opts  Options
	runID uuid.UUID

	cachedClientID int
}

// New creates an engine. The diff engine carries the authority rules.
func New(vc VCOMClient, yc YumanClient, st store.Store, d *diff.Engine, opts Options) *Engine {
	return &Engine{vc: vc, yc: yc, st: st, diff: d, opts: opts}
}

// Run executes the site, equipment and ticket passes in order and
// returns the aggregated result. Pass-level fetch errors abort the
// affected kind and are reported as failures, not returned; only a
// broken precondition (snapshot or blueprint fetch) fails the run.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	e.runID = uuid.New()
	log := logging.FromContext(ctx).With().
		Str("run_id", e.runID.String()).
		Bool("dry_run", e.opts.DryRun).
		Logger()
	ctx = logging.WithLogger(ctx, &log)

	res := &Result{RunID: e.runID, DryRun: e.opts.DryRun, Started: time.Now().UTC()}

	vs, err := e.vc.FetchSnapshot(ctx, e.opts.SystemKey)
	if err != nil {
		return nil, err
	}
	ys, err := e.yc.FetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	bp, err := e.yc.ResolveBlueprints(ctx)
	if err != nil {
		return nil, err
	}

	e.syncSites(ctx, res, vs, ys, bp)
	e.syncEquipment(ctx, res, vs, ys, bp)
	e.syncTickets(ctx, res, vs, ys)

	res.Finished = time.Now().UTC()
	log.Info().
		Int("created", res.Totals().Created).
		Int("updated", res.Totals().Updated).
		Int("orphaned", res.Totals().Orphaned).
		Int("failed", res.Totals().Failed).
		Int("conflicts", res.Conflicts).
		Dur("elapsed", res.Finished.Sub(res.Started)).
		Msg("sync run finished")
	return res, nil
}

// upsertSite persists a record. A unique-key clash means two
// half-mapped rows describe this site; the store unifies them into one
// row keeping both keys.
func (e *Engine) upsertSite(ctx context.Context, site entities.Site) (store.SiteRecord, error) {
	rec, err := e.st.UpsertSite(ctx, site)
	if err == nil || !errors.IsStoreConflict(err) {
		return rec, err
	}
	return e.st.MergeSiteRows(ctx, site)
}

// upsertEquipment is the equipment analog of upsertSite.
func (e *Engine) upsertEquipment(ctx context.Context, eq entities.Equipment) (store.EquipmentRecord, error) {
	rec, err := e.st.UpsertEquipment(ctx, eq)
	if err == nil || !errors.IsStoreConflict(err) {
		return rec, err
	}
	return e.st.MergeEquipmentRows(ctx, eq)
}

// upsertTicket is the ticket analog of upsertSite.
func (e *Engine) upsertTicket(ctx context.Context, t entities.Ticket) (store.TicketRecord, error) {
	rec, err := e.st.UpsertTicket(ctx, t)
	if err == nil || !errors.IsStoreConflict(err) {
		return rec, err
	}
	return e.st.MergeTicketRows(ctx, t)
}

// audit writes one sync log row; failures are logged, never fatal.
func (e *Engine) audit(ctx context.Context, kind entities.Kind, entityID, action, target string) {
	err := e.st.LogSync(ctx, store.SyncLog{
		RunID:    e.runID,
		Kind:     kind,
		EntityID: entityID,
		Action:   action,
		Target:   target,
		DryRun:   e.opts.DryRun,
	})
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("audit log write failed")
	}
}

// recordConflicts persists authority tie-breaks for operator review.
func (e *Engine) recordConflicts(ctx context.Context, res *Result, kind entities.Kind, entityID string, conflicts []diff.Conflict) {
	log := logging.FromContext(ctx)
	for _, c := range conflicts {
		res.Conflicts++
		log.Warn().
			Str("kind", string(kind)).
			Str("entity", entityID).
			Str("field", string(c.Field)).
			Str("vcom", c.VCOMValue).
			Str("yuman", c.YumanValue).
			Str("winner", string(c.Winner)).
			Msg("both systems changed a field, authority decided")
		err := e.st.LogConflict(ctx, store.ConflictLog{
			RunID:       e.runID,
			Kind:        kind,
			EntityID:    entityID,
			Field:       string(c.Field),
			VCOMValue:   c.VCOMValue,
			YumanValue:  c.YumanValue,
			StoredValue: c.StoredValue,
			Winner:      string(c.Winner),
		})
		if err != nil {
			log.Warn().Err(err).Msg("conflict log write failed")
		}
	}
}
