package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/centroplan/vysync/pkg/entities"
	"github.com/centroplan/vysync/pkg/errors"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS sites_mapping (
	id                BIGSERIAL PRIMARY KEY,
	vcom_system_key   TEXT UNIQUE,
	yuman_site_id     BIGINT UNIQUE,
	name              TEXT NOT NULL DEFAULT '',
	name_normalized   TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	nominal_power     DOUBLE PRECISION,
	commission_date   TEXT NOT NULL DEFAULT '',
	project_number_cp TEXT NOT NULL DEFAULT '',
	aldi_id           TEXT NOT NULL DEFAULT '',
	aldi_store_id     TEXT NOT NULL DEFAULT '',
	ignore_sync       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sites_mapping_name ON sites_mapping (name_normalized);

CREATE TABLE IF NOT EXISTS equipments_mapping (
	id                BIGSERIAL PRIMARY KEY,
	vcom_device_id    TEXT UNIQUE,
	yuman_material_id BIGINT UNIQUE,
	vcom_system_key   TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	name              TEXT NOT NULL DEFAULT '',
	brand             TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	serial_number     TEXT NOT NULL DEFAULT '',
	module_count      INTEGER,
	mppt_index        TEXT NOT NULL DEFAULT '',
	parent_device_id  TEXT NOT NULL DEFAULT '',
	ignore_sync       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_equipments_mapping_system ON equipments_mapping (vcom_system_key);

CREATE TABLE IF NOT EXISTS tickets_mapping (
	id                 BIGSERIAL PRIMARY KEY,
	vcom_ticket_id     TEXT UNIQUE,
	yuman_workorder_id BIGINT UNIQUE,
	vcom_system_key    TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT '',
	priority           TEXT NOT NULL DEFAULT '',
	ignore_sync        BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_logs (
	id        BIGSERIAL PRIMARY KEY,
	run_id    UUID NOT NULL,
	kind      TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	action    TEXT NOT NULL,
	target    TEXT NOT NULL DEFAULT '',
	payload   TEXT NOT NULL DEFAULT '',
	dry_run   BOOLEAN NOT NULL DEFAULT FALSE,
	at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sync_logs_run ON sync_logs (run_id);

CREATE TABLE IF NOT EXISTS conflicts (
	id           BIGSERIAL PRIMARY KEY,
	run_id       UUID NOT NULL,
	kind         TEXT NOT NULL,
	entity_id    TEXT NOT NULL,
	field        TEXT NOT NULL,
	vcom_value   TEXT NOT NULL DEFAULT '',
	yuman_value  TEXT NOT NULL DEFAULT '',
	stored_value TEXT NOT NULL DEFAULT '',
	winner       TEXT NOT NULL,
	at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is the production Store over database/sql with the pgx
// driver. The schema is applied at startup and is idempotent.
type Postgres struct {
	db *sql.DB
}

// Open connects to the DSN, verifies the connection and applies the
// schema.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.NewConfigError("store", "DATABASE_URL is not set", nil)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.NewConfigError("store", "invalid database DSN", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewConfigError("store", "database unreachable", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// classify maps driver errors onto the typed error surface.
func classify(table string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return errors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.NewStoreConflictError(table, pgErr.ConstraintName, pgErr.Detail, err)
	}
	return err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// querier is satisfied by both *sql.DB and *sql.Tx so the upsert
// statements can run inside the row-merge transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const siteColumns = `id, COALESCE(vcom_system_key, ''), COALESCE(yuman_site_id, 0),
	name, address, latitude, longitude, nominal_power, commission_date,
	project_number_cp, aldi_id, aldi_store_id, ignore_sync, updated_at`

func scanSite(row *sql.Row) (SiteRecord, error) {
	var (
		rec      SiteRecord
		lat, lon sql.NullFloat64
		power    sql.NullFloat64
	)
	err := row.Scan(&rec.ID, &rec.VcomSystemKey, &rec.YumanSiteID,
		&rec.Name, &rec.Address, &lat, &lon, &power, &rec.CommissionDate,
		&rec.ProjectNumberCP, &rec.AldiID, &rec.AldiStoreID, &rec.Ignore, &rec.UpdatedAt)
	if err != nil {
		return SiteRecord{}, err
	}
	if lat.Valid {
		rec.Latitude = &lat.Float64
	}
	if lon.Valid {
		rec.Longitude = &lon.Float64
	}
	if power.Valid {
		rec.NominalPower = &power.Float64
	}
	return rec, nil
}

// UpsertSite inserts or refreshes a mapping row, keyed by the V system
// key when present, otherwise by the Y site id. A row identified by
// one key may still clash on the other unique key; that surfaces as a
// StoreConflictError for the caller to resolve via MergeSiteRows.
func (p *Postgres) UpsertSite(ctx context.Context, site entities.Site) (SiteRecord, error) {
	site = site.Normalized()
	conflictKey := "vcom_system_key"
	if site.VcomSystemKey == "" {
		if site.YumanSiteID == 0 {
			return SiteRecord{}, errors.NewValidationError("site", site.Name, "no correlation key")
		}
		conflictKey = "yuman_site_id"
	}
	rec, err := upsertSite(ctx, p.db, site, conflictKey)
	return rec, classify("sites_mapping", err)
}

func upsertSite(ctx context.Context, q querier, site entities.Site, conflictKey string) (SiteRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO sites_mapping (
			vcom_system_key, yuman_site_id, name, name_normalized, address,
			latitude, longitude, nominal_power, commission_date,
			project_number_cp, aldi_id, aldi_store_id, ignore_sync, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (%s) DO UPDATE SET
			vcom_system_key   = COALESCE(sites_mapping.vcom_system_key, EXCLUDED.vcom_system_key),
			yuman_site_id     = COALESCE(sites_mapping.yuman_site_id, EXCLUDED.yuman_site_id),
			name              = EXCLUDED.name,
			name_normalized   = EXCLUDED.name_normalized,
			address           = EXCLUDED.address,
			latitude          = EXCLUDED.latitude,
			longitude         = EXCLUDED.longitude,
			nominal_power     = EXCLUDED.nominal_power,
			commission_date   = EXCLUDED.commission_date,
			project_number_cp = EXCLUDED.project_number_cp,
			aldi_id           = EXCLUDED.aldi_id,
			aldi_store_id     = EXCLUDED.aldi_store_id,
			ignore_sync       = sites_mapping.ignore_sync OR EXCLUDED.ignore_sync,
			updated_at        = now()
		RETURNING `+siteColumns, conflictKey)

	row := q.QueryRowContext(ctx, query,
		nullStr(site.VcomSystemKey), nullInt(site.YumanSiteID),
		site.Name, entities.NormalizeName(site.Name), site.Address,
		nullFloat(site.Latitude), nullFloat(site.Longitude), nullFloat(site.NominalPower),
		site.CommissionDate, site.ProjectNumberCP, site.AldiID, site.AldiStoreID, site.Ignore)
	return scanSite(row)
}

// MergeSiteRows unifies two half-mapped rows describing one site into a
// single row carrying both keys. The V-keyed row survives and the row
// holding only the Y id is removed, all in one transaction. Rows whose
// keys contradict the incoming record describe different entities and
// stay untouched; that is reported as a StoreConflictError.
func (p *Postgres) MergeSiteRows(ctx context.Context, site entities.Site) (SiteRecord, error) {
	site = site.Normalized()
	if site.VcomSystemKey == "" || site.YumanSiteID == 0 {
		return SiteRecord{}, errors.NewValidationError("site", site.Name, "merge requires both keys")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return SiteRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	survivor, err := scanSite(tx.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM sites_mapping WHERE vcom_system_key = $1 FOR UPDATE", site.VcomSystemKey))
	hasSurvivor := err == nil
	if err != nil && err != sql.ErrNoRows {
		return SiteRecord{}, classify("sites_mapping", err)
	}
	dup, err := scanSite(tx.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM sites_mapping WHERE yuman_site_id = $1 FOR UPDATE", site.YumanSiteID))
	hasDup := err == nil
	if err != nil && err != sql.ErrNoRows {
		return SiteRecord{}, classify("sites_mapping", err)
	}

	if hasSurvivor && survivor.YumanSiteID != 0 && survivor.YumanSiteID != site.YumanSiteID {
		return SiteRecord{}, errors.NewStoreConflictError("sites_mapping", "yuman_site_id", site.Name, nil)
	}
	if hasDup && dup.VcomSystemKey != "" && dup.VcomSystemKey != site.VcomSystemKey {
		return SiteRecord{}, errors.NewStoreConflictError("sites_mapping", "vcom_system_key", site.Name, nil)
	}

	merged := site
	if hasDup {
		merged = MergeSites(merged, dup.Site)
	}
	if hasSurvivor {
		merged = MergeSites(merged, survivor.Site)
	}

	if hasDup && (!hasSurvivor || dup.ID != survivor.ID) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sites_mapping WHERE id = $1", dup.ID); err != nil {
			return SiteRecord{}, err
		}
	}
	rec, err := upsertSite(ctx, tx, merged, "vcom_system_key")
	if err != nil {
		return SiteRecord{}, classify("sites_mapping", err)
	}
	if err := tx.Commit(); err != nil {
		return SiteRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) siteWhere(ctx context.Context, where string, arg any) (SiteRecord, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+siteColumns+" FROM sites_mapping WHERE "+where, arg)
	rec, err := scanSite(row)
	return rec, classify("sites_mapping", err)
}

// SiteByVKey looks a site up by its V system key.
func (p *Postgres) SiteByVKey(ctx context.Context, systemKey string) (SiteRecord, error) {
	return p.siteWhere(ctx, "vcom_system_key = $1", systemKey)
}

// SiteByYID looks a site up by its Y site id.
func (p *Postgres) SiteByYID(ctx context.Context, yumanSiteID int) (SiteRecord, error) {
	return p.siteWhere(ctx, "yuman_site_id = $1", yumanSiteID)
}

// SiteByNormalizedName looks a site up by its cleaned name, used to
// pair unmapped records across systems.
func (p *Postgres) SiteByNormalizedName(ctx context.Context, name string) (SiteRecord, error) {
	return p.siteWhere(ctx, "name_normalized = $1", entities.NormalizeName(name))
}

// ListSites returns all mapping rows.
func (p *Postgres) ListSites(ctx context.Context) ([]SiteRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+siteColumns+" FROM sites_mapping ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SiteRecord
	for rows.Next() {
		var (
			rec             SiteRecord
			lat, lon, power sql.NullFloat64
		)
		err := rows.Scan(&rec.ID, &rec.VcomSystemKey, &rec.YumanSiteID,
			&rec.Name, &rec.Address, &lat, &lon, &power, &rec.CommissionDate,
			&rec.ProjectNumberCP, &rec.AldiID, &rec.AldiStoreID, &rec.Ignore, &rec.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if lat.Valid {
			rec.Latitude = &lat.Float64
		}
		if lon.Valid {
			rec.Longitude = &lon.Float64
		}
		if power.Valid {
			rec.NominalPower = &power.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const equipmentColumns = `id, COALESCE(vcom_device_id, ''), COALESCE(yuman_material_id, 0),
	vcom_system_key, category, name, brand, model, serial_number,
	module_count, mppt_index, parent_device_id, ignore_sync, updated_at`

func scanEquipment(scan func(...any) error) (EquipmentRecord, error) {
	var (
		rec   EquipmentRecord
		count sql.NullInt64
	)
	err := scan(&rec.ID, &rec.VcomDeviceID, &rec.YumanMaterialID,
		&rec.VcomSystemKey, &rec.Category, &rec.Name, &rec.Brand, &rec.Model,
		&rec.SerialNumber, &count, &rec.MPPTIndex, &rec.ParentDeviceID,
		&rec.Ignore, &rec.UpdatedAt)
	if err != nil {
		return EquipmentRecord{}, err
	}
	if count.Valid {
		n := int(count.Int64)
		rec.Count = &n
	}
	return rec, nil
}

// UpsertEquipment inserts or refreshes an equipment mapping row.
func (p *Postgres) UpsertEquipment(ctx context.Context, eq entities.Equipment) (EquipmentRecord, error) {
	eq = eq.Normalized()
	conflictKey := "vcom_device_id"
	if eq.VcomDeviceID == "" {
		if eq.YumanMaterialID == 0 {
			return EquipmentRecord{}, errors.NewValidationError("equipment", eq.Name, "no correlation key")
		}
		conflictKey = "yuman_material_id"
	}
	rec, err := upsertEquipment(ctx, p.db, eq, conflictKey)
	return rec, classify("equipments_mapping", err)
}

func upsertEquipment(ctx context.Context, q querier, eq entities.Equipment, conflictKey string) (EquipmentRecord, error) {
	var count sql.NullInt64
	if eq.Count != nil {
		count = sql.NullInt64{Int64: int64(*eq.Count), Valid: true}
	}

	query := fmt.Sprintf(`
		INSERT INTO equipments_mapping (
			vcom_device_id, yuman_material_id, vcom_system_key, category,
			name, brand, model, serial_number, module_count, mppt_index,
			parent_device_id, ignore_sync, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (%s) DO UPDATE SET
			vcom_device_id    = COALESCE(equipments_mapping.vcom_device_id, EXCLUDED.vcom_device_id),
			yuman_material_id = COALESCE(equipments_mapping.yuman_material_id, EXCLUDED.yuman_material_id),
			vcom_system_key   = EXCLUDED.vcom_system_key,
			category          = EXCLUDED.category,
			name              = EXCLUDED.name,
			brand             = EXCLUDED.brand,
			model             = EXCLUDED.model,
			serial_number     = EXCLUDED.serial_number,
			module_count      = EXCLUDED.module_count,
			mppt_index        = EXCLUDED.mppt_index,
			parent_device_id  = EXCLUDED.parent_device_id,
			ignore_sync       = equipments_mapping.ignore_sync OR EXCLUDED.ignore_sync,
			updated_at        = now()
		RETURNING `+equipmentColumns, conflictKey)

	row := q.QueryRowContext(ctx, query,
		nullStr(eq.VcomDeviceID), nullInt(eq.YumanMaterialID), eq.VcomSystemKey,
		string(eq.Category), eq.Name, eq.Brand, eq.Model, eq.SerialNumber,
		count, eq.MPPTIndex, eq.ParentDeviceID, eq.Ignore)
	return scanEquipment(row.Scan)
}

// MergeEquipmentRows unifies two half-mapped equipment rows the same
// way MergeSiteRows does for sites.
func (p *Postgres) MergeEquipmentRows(ctx context.Context, eq entities.Equipment) (EquipmentRecord, error) {
	eq = eq.Normalized()
	if eq.VcomDeviceID == "" || eq.YumanMaterialID == 0 {
		return EquipmentRecord{}, errors.NewValidationError("equipment", eq.Name, "merge requires both keys")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return EquipmentRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	survivor, err := scanEquipment(tx.QueryRowContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipments_mapping WHERE vcom_device_id = $1 FOR UPDATE", eq.VcomDeviceID).Scan)
	hasSurvivor := err == nil
	if err != nil && err != sql.ErrNoRows {
		return EquipmentRecord{}, classify("equipments_mapping", err)
	}
	dup, err := scanEquipment(tx.QueryRowContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipments_mapping WHERE yuman_material_id = $1 FOR UPDATE", eq.YumanMaterialID).Scan)
	hasDup := err == nil
	if err != nil && err != sql.ErrNoRows {
		return EquipmentRecord{}, classify("equipments_mapping", err)
	}

	if hasSurvivor && survivor.YumanMaterialID != 0 && survivor.YumanMaterialID != eq.YumanMaterialID {
		return EquipmentRecord{}, errors.NewStoreConflictError("equipments_mapping", "yuman_material_id", eq.VcomDeviceID, nil)
	}
	if hasDup && dup.VcomDeviceID != "" && dup.VcomDeviceID != eq.VcomDeviceID {
		return EquipmentRecord{}, errors.NewStoreConflictError("equipments_mapping", "vcom_device_id", eq.VcomDeviceID, nil)
	}

	merged := eq
	if hasDup {
		merged = MergeEquipment(merged, dup.Equipment)
	}
	if hasSurvivor {
		merged = MergeEquipment(merged, survivor.Equipment)
	}

	if hasDup && (!hasSurvivor || dup.ID != survivor.ID) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM equipments_mapping WHERE id = $1", dup.ID); err != nil {
			return EquipmentRecord{}, err
		}
	}
	rec, err := upsertEquipment(ctx, tx, merged, "vcom_device_id")
	if err != nil {
		return EquipmentRecord{}, classify("equipments_mapping", err)
	}
	if err := tx.Commit(); err != nil {
		return EquipmentRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) equipmentWhere(ctx context.Context, where string, arg any) (EquipmentRecord, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipments_mapping WHERE "+where, arg)
	rec, err := scanEquipment(row.Scan)
	return rec, classify("equipments_mapping", err)
}

// EquipmentByVDeviceID looks equipment up by its V device id.
func (p *Postgres) EquipmentByVDeviceID(ctx context.Context, deviceID string) (EquipmentRecord, error) {
	return p.equipmentWhere(ctx, "vcom_device_id = $1", deviceID)
}

// EquipmentByYID looks equipment up by its Y material id.
func (p *Postgres) EquipmentByYID(ctx context.Context, yumanMaterialID int) (EquipmentRecord, error) {
	return p.equipmentWhere(ctx, "yuman_material_id = $1", yumanMaterialID)
}

// ListEquipment returns all equipment mapping rows.
func (p *Postgres) ListEquipment(ctx context.Context) ([]EquipmentRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+equipmentColumns+" FROM equipments_mapping ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquipmentRecord
	for rows.Next() {
		rec, err := scanEquipment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const ticketColumns = `id, COALESCE(vcom_ticket_id, ''), COALESCE(yuman_workorder_id, 0),
	vcom_system_key, title, status, priority, ignore_sync, updated_at`

func scanTicket(scan func(...any) error) (TicketRecord, error) {
	var rec TicketRecord
	err := scan(&rec.ID, &rec.VcomTicketID, &rec.YumanWorkorderID,
		&rec.VcomSystemKey, &rec.Title, &rec.Status, &rec.Priority,
		&rec.Ignore, &rec.UpdatedAt)
	if err != nil {
		return TicketRecord{}, err
	}
	return rec, nil
}

// UpsertTicket inserts or refreshes a ticket mapping row.
func (p *Postgres) UpsertTicket(ctx context.Context, t entities.Ticket) (TicketRecord, error) {
	t = t.Normalized()
	conflictKey := "vcom_ticket_id"
	if t.VcomTicketID == "" {
		if t.YumanWorkorderID == 0 {
			return TicketRecord{}, errors.NewValidationError("ticket", t.Title, "no correlation key")
		}
		conflictKey = "yuman_workorder_id"
	}
	rec, err := upsertTicket(ctx, p.db, t, conflictKey)
	return rec, classify("tickets_mapping", err)
}

func upsertTicket(ctx context.Context, q querier, t entities.Ticket, conflictKey string) (TicketRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO tickets_mapping (
			vcom_ticket_id, yuman_workorder_id, vcom_system_key,
			title, status, priority, ignore_sync, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (%s) DO UPDATE SET
			vcom_ticket_id     = COALESCE(tickets_mapping.vcom_ticket_id, EXCLUDED.vcom_ticket_id),
			yuman_workorder_id = COALESCE(tickets_mapping.yuman_workorder_id, EXCLUDED.yuman_workorder_id),
			vcom_system_key    = EXCLUDED.vcom_system_key,
			title              = EXCLUDED.title,
			status             = EXCLUDED.status,
			priority           = EXCLUDED.priority,
			ignore_sync        = tickets_mapping.ignore_sync OR EXCLUDED.ignore_sync,
			updated_at         = now()
		RETURNING `+ticketColumns, conflictKey)

	row := q.QueryRowContext(ctx, query,
		nullStr(t.VcomTicketID), nullInt(t.YumanWorkorderID), t.VcomSystemKey,
		t.Title, t.Status, t.Priority, t.Ignore)
	return scanTicket(row.Scan)
}

// MergeTicketRows unifies two half-mapped ticket rows the same way
// MergeSiteRows does for sites.
func (p *Postgres) MergeTicketRows(ctx context.Context, t entities.Ticket) (TicketRecord, error) {
	t = t.Normalized()
	if t.VcomTicketID == "" || t.YumanWorkorderID == 0 {
		return TicketRecord{}, errors.NewValidationError("ticket", t.Title, "merge requires both keys")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return TicketRecord{}, err
	}
	defer func() { _ = tx.Rollback() }()

	survivor, err := scanTicket(tx.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets_mapping WHERE vcom_ticket_id = $1 FOR UPDATE", t.VcomTicketID).Scan)
	hasSurvivor := err == nil
	if err != nil && err != sql.ErrNoRows {
		return TicketRecord{}, classify("tickets_mapping", err)
	}
	dup, err := scanTicket(tx.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets_mapping WHERE yuman_workorder_id = $1 FOR UPDATE", t.YumanWorkorderID).Scan)
	hasDup := err == nil
	if err != nil && err != sql.ErrNoRows {
		return TicketRecord{}, classify("tickets_mapping", err)
	}

	if hasSurvivor && survivor.YumanWorkorderID != 0 && survivor.YumanWorkorderID != t.YumanWorkorderID {
		return TicketRecord{}, errors.NewStoreConflictError("tickets_mapping", "yuman_workorder_id", t.VcomTicketID, nil)
	}
	if hasDup && dup.VcomTicketID != "" && dup.VcomTicketID != t.VcomTicketID {
		return TicketRecord{}, errors.NewStoreConflictError("tickets_mapping", "vcom_ticket_id", t.VcomTicketID, nil)
	}

	merged := t
	if hasDup {
		merged = MergeTickets(merged, dup.Ticket)
	}
	if hasSurvivor {
		merged = MergeTickets(merged, survivor.Ticket)
	}

	if hasDup && (!hasSurvivor || dup.ID != survivor.ID) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tickets_mapping WHERE id = $1", dup.ID); err != nil {
			return TicketRecord{}, err
		}
	}
	rec, err := upsertTicket(ctx, tx, merged, "vcom_ticket_id")
	if err != nil {
		return TicketRecord{}, classify("tickets_mapping", err)
	}
	if err := tx.Commit(); err != nil {
		return TicketRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) ticketWhere(ctx context.Context, where string, arg any) (TicketRecord, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets_mapping WHERE "+where, arg)
	rec, err := scanTicket(row.Scan)
	return rec, classify("tickets_mapping", err)
}

// TicketByVID looks a ticket up by its V ticket id.
func (p *Postgres) TicketByVID(ctx context.Context, ticketID string) (TicketRecord, error) {
	return p.ticketWhere(ctx, "vcom_ticket_id = $1", ticketID)
}

// TicketByYID looks a ticket up by its Y workorder id.
func (p *Postgres) TicketByYID(ctx context.Context, workorderID int) (TicketRecord, error) {
	return p.ticketWhere(ctx, "yuman_workorder_id = $1", workorderID)
}

// ListTickets returns all ticket mapping rows.
func (p *Postgres) ListTickets(ctx context.Context) ([]TicketRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets_mapping ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TicketRecord
	for rows.Next() {
		rec, err := scanTicket(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LogSync appends one audit row.
func (p *Postgres) LogSync(ctx context.Context, entry SyncLog) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sync_logs (run_id, kind, entity_id, action, target, payload, dry_run, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.RunID, string(entry.Kind), entry.EntityID, entry.Action,
		entry.Target, entry.Payload, entry.DryRun, at)
	return err
}

// LogConflict appends one conflict row for operator review.
func (p *Postgres) LogConflict(ctx context.Context, entry ConflictLog) error {
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conflicts (run_id, kind, entity_id, field, vcom_value, yuman_value, stored_value, winner, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.RunID, string(entry.Kind), entry.EntityID, entry.Field,
		entry.VCOMValue, entry.YumanValue, entry.StoredValue, entry.Winner, at)
	return err
}
