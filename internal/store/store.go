package store

import (
	"context"
	"errors"

	"catalog-recon/internal/reconcile/model"
)

var ErrNotFound = errors.New("store: not found")

// RefTable names one foreign key that points at the entities table. The set
// of referencing tables is configuration, not a hard-coded list: lot items
// are handled separately by the consolidator because of their (entity, lot)
// uniqueness, everything else is re-pointed blindly on merge.
type RefTable struct {
	Table  string
	Column string
}

// Querier is the read/write surface shared by the store and an open
// transaction. Engines take all reads for a unit of work through the same
// transaction that applies its writes.
type Querier interface {
	EnsureLot(ctx context.Context, lotID int64, name string) error
	LotItems(ctx context.Context, lotID int64) ([]model.LotItem, error)
	LotItemByEntityLot(ctx context.Context, entityID, lotID int64) (*model.LotItem, error)
	LotItemsByEntity(ctx context.Context, entityID int64) ([]model.LotItem, error)
	Entities(ctx context.Context, kind model.Kind) ([]model.Entity, error)
	EntityByKey(ctx context.Context, kind model.Kind, nameKey string) (*model.Entity, error)
	ReportCount(ctx context.Context, lotItemID int64) (int, error)
	EntityRefCounts(ctx context.Context, entityID int64) (map[string]int64, error)

	CreateEntity(ctx context.Context, e *model.Entity) error
	CreateLotItem(ctx context.Context, it *model.LotItem) error
	CreateReport(ctx context.Context, r *model.Report) error
	UpdateLotItem(ctx context.Context, it model.LotItem) error
	UpdateLotItemEntity(ctx context.Context, itemID, entityID int64) error
	UpdateEntityName(ctx context.Context, entityID int64, name, nameKey string) error
	MigrateReports(ctx context.Context, fromItemID, toItemID int64) (int64, error)
	RepointRefs(ctx context.Context, fromEntityID, toEntityID int64) (map[string]int64, error)
	DeleteLotItem(ctx context.Context, itemID int64) error
	DeleteEntity(ctx context.Context, entityID int64) error
}

// Tx is one transactional unit of work. Rollback after Commit is a no-op.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Store is the relational catalog. Mutations either auto-commit or compose
// into an explicit transaction acquired with Begin; nothing cascades
// implicitly from a save.
type Store interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Close() error
}
