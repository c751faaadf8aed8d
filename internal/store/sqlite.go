package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"catalog-recon/internal/reconcile/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS lots (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS entities (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	kind     TEXT NOT NULL,
	name     TEXT NOT NULL,
	name_key TEXT NOT NULL,
	brand    TEXT NOT NULL DEFAULT '',
	unit     TEXT NOT NULL DEFAULT '',
	tax_id   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_entities_key ON entities(kind, name_key);
CREATE TABLE IF NOT EXISTS lot_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	lot_id     INTEGER NOT NULL REFERENCES lots(id),
	entity_id  INTEGER NOT NULL REFERENCES entities(id),
	qty        REAL NOT NULL DEFAULT 0,
	unit_price REAL NOT NULL DEFAULT 0,
	fulfilled  REAL NOT NULL DEFAULT 0,
	brand      TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	UNIQUE(entity_id, lot_id)
);
CREATE TABLE IF NOT EXISTS reports (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	lot_item_id INTEGER NOT NULL REFERENCES lot_items(id),
	qty         REAL NOT NULL DEFAULT 0,
	note        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS contacts (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	name      TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL DEFAULT '',
	email     TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS invoice_items (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id INTEGER NOT NULL REFERENCES entities(id),
	number    TEXT NOT NULL DEFAULT '',
	total     REAL NOT NULL DEFAULT 0
);
`

// DefaultRefTables lists the entity foreign keys re-pointed on consolidation,
// besides lot_items (which need collision-aware handling).
var DefaultRefTables = []RefTable{
	{Table: "contacts", Column: "entity_id"},
	{Table: "invoice_items", Column: "entity_id"},
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is the Store implementation over modernc.org/sqlite.
type SQLite struct {
	queries
	db *sql.DB
}

type sqliteTx struct {
	queries
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

// Open opens (and if needed initializes) the catalog database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between the pool's connections
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{queries: queries{db: db, refs: DefaultRefTables}, db: db}, nil
}

// SetRefTables replaces the configured entity-referencing tables.
func (s *SQLite) SetRefTables(refs []RefTable) { s.queries.refs = refs }

// DB exposes the underlying handle for seeding and ad-hoc queries.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{queries: queries{db: tx, refs: s.queries.refs}, tx: tx}, nil
}

// queries implements Querier over either *sql.DB or *sql.Tx.
type queries struct {
	db   dbtx
	refs []RefTable
}

func (q queries) EnsureLot(ctx context.Context, lotID int64, name string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO lots(id, name) VALUES(?, ?) ON CONFLICT(id) DO NOTHING`, lotID, name)
	return err
}

const lotItemCols = `li.id, li.lot_id, li.entity_id, e.name, li.qty, li.unit_price, li.fulfilled, li.brand, li.active`

func scanLotItems(rows *sql.Rows) ([]model.LotItem, error) {
	defer rows.Close()
	var out []model.LotItem
	for rows.Next() {
		var it model.LotItem
		if err := rows.Scan(&it.ID, &it.LotID, &it.EntityID, &it.EntityName,
			&it.Qty, &it.UnitPrice, &it.Fulfilled, &it.Brand, &it.Active); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (q queries) LotItems(ctx context.Context, lotID int64) ([]model.LotItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lotItemCols+`
		FROM lot_items li JOIN entities e ON e.id = li.entity_id
		WHERE li.lot_id = ? ORDER BY li.id`, lotID)
	if err != nil {
		return nil, err
	}
	return scanLotItems(rows)
}

func (q queries) LotItemByEntityLot(ctx context.Context, entityID, lotID int64) (*model.LotItem, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+lotItemCols+`
		FROM lot_items li JOIN entities e ON e.id = li.entity_id
		WHERE li.entity_id = ? AND li.lot_id = ?`, entityID, lotID)
	var it model.LotItem
	err := row.Scan(&it.ID, &it.LotID, &it.EntityID, &it.EntityName,
		&it.Qty, &it.UnitPrice, &it.Fulfilled, &it.Brand, &it.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (q queries) LotItemsByEntity(ctx context.Context, entityID int64) ([]model.LotItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+lotItemCols+`
		FROM lot_items li JOIN entities e ON e.id = li.entity_id
		WHERE li.entity_id = ? ORDER BY li.id`, entityID)
	if err != nil {
		return nil, err
	}
	return scanLotItems(rows)
}

func (q queries) Entities(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kind, name, name_key, brand, unit, tax_id
		FROM entities WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.NameKey, &e.Brand, &e.Unit, &e.TaxID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) EntityByKey(ctx context.Context, kind model.Kind, nameKey string) (*model.Entity, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, kind, name, name_key, brand, unit, tax_id
		FROM entities WHERE kind = ? AND name_key = ? ORDER BY id LIMIT 1`, kind, nameKey)
	var e model.Entity
	err := row.Scan(&e.ID, &e.Kind, &e.Name, &e.NameKey, &e.Brand, &e.Unit, &e.TaxID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (q queries) ReportCount(ctx context.Context, lotItemID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE lot_item_id = ?`, lotItemID).Scan(&n)
	return n, err
}

// EntityRefCounts counts rows in the configured referencing tables still
// pointing at the entity. Tables with zero rows are omitted.
func (q queries) EntityRefCounts(ctx context.Context, entityID int64) (map[string]int64, error) {
	out := make(map[string]int64, len(q.refs))
	for _, ref := range q.refs {
		var n int64
		if err := q.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, ref.Table, ref.Column),
			entityID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s.%s: %w", ref.Table, ref.Column, err)
		}
		if n > 0 {
			out[ref.Table] = n
		}
	}
	return out, nil
}

func (q queries) CreateEntity(ctx context.Context, e *model.Entity) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO entities(kind, name, name_key, brand, unit, tax_id)
		VALUES(?, ?, ?, ?, ?, ?)`,
		e.Kind, e.Name, e.NameKey, e.Brand, e.Unit, e.TaxID)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (q queries) CreateLotItem(ctx context.Context, it *model.LotItem) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO lot_items(lot_id, entity_id, qty, unit_price, fulfilled, brand, active)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		it.LotID, it.EntityID, it.Qty, it.UnitPrice, it.Fulfilled, it.Brand, it.Active)
	if err != nil {
		return err
	}
	it.ID, err = res.LastInsertId()
	return err
}

func (q queries) CreateReport(ctx context.Context, r *model.Report) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO reports(lot_item_id, qty, note) VALUES(?, ?, ?)`,
		r.LotItemID, r.Qty, r.Note)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (q queries) UpdateLotItem(ctx context.Context, it model.LotItem) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE lot_items SET qty = ?, unit_price = ?, fulfilled = ?, brand = ?, active = ?
		WHERE id = ?`,
		it.Qty, it.UnitPrice, it.Fulfilled, it.Brand, it.Active, it.ID)
	return err
}

func (q queries) UpdateLotItemEntity(ctx context.Context, itemID, entityID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE lot_items SET entity_id = ? WHERE id = ?`, entityID, itemID)
	return err
}

func (q queries) UpdateEntityName(ctx context.Context, entityID int64, name, nameKey string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE entities SET name = ?, name_key = ? WHERE id = ?`, name, nameKey, entityID)
	return err
}

func (q queries) MigrateReports(ctx context.Context, fromItemID, toItemID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE reports SET lot_item_id = ? WHERE lot_item_id = ?`, toItemID, fromItemID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q queries) RepointRefs(ctx context.Context, fromEntityID, toEntityID int64) (map[string]int64, error) {
	moved := make(map[string]int64, len(q.refs))
	for _, ref := range q.refs {
		res, err := q.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %s = ? WHERE %s = ?`, ref.Table, ref.Column, ref.Column),
			toEntityID, fromEntityID)
		if err != nil {
			return nil, fmt.Errorf("repoint %s.%s: %w", ref.Table, ref.Column, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			moved[ref.Table] = n
		}
	}
	return moved, nil
}

func (q queries) DeleteLotItem(ctx context.Context, itemID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM lot_items WHERE id = ?`, itemID)
	return err
}

func (q queries) DeleteEntity(ctx context.Context, entityID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, entityID)
	return err
}
