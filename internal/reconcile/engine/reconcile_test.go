package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-recon/internal/reconcile/model"
	"catalog-recon/internal/store"
)

var testAudit = model.Audit{Actor: "test", RunID: "run-1"}

func openTest(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEntity(t *testing.T, st store.Store, kind model.Kind, name, key string) model.Entity {
	t.Helper()
	e := model.Entity{Kind: kind, Name: name, NameKey: key}
	require.NoError(t, st.CreateEntity(context.Background(), &e))
	return e
}

func seedItem(t *testing.T, st store.Store, lotID, entityID int64, qty, price float64) model.LotItem {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.EnsureLot(ctx, lotID, ""))
	it := model.LotItem{LotID: lotID, EntityID: entityID, Qty: qty, UnitPrice: price, Active: true}
	require.NoError(t, st.CreateLotItem(ctx, &it))
	return it
}

func TestSyncUpdatesMatchedItem(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	e := seedEntity(t, st, model.KindMaterial, "CABO DE REDE UTP", "CABO DE REDE UTP")
	seedItem(t, st, 1, e.ID, 100, 12.50)

	eng := New(st, zerolog.Nop())
	src := []model.SourceItem{{Description: "CADO DE REDE UTP CAT5E", Qty: 50, UnitPrice: 12.30}}
	rep, err := eng.Sync(ctx, 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	require.Len(t, rep.Updated, 1)
	assert.Empty(t, rep.Created)
	assert.Empty(t, rep.Merged)
	assert.Empty(t, rep.Deleted)
	assert.Equal(t, 50.0, rep.Updated[0].Qty)
	assert.Equal(t, 12.30, rep.Updated[0].UnitPrice)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 50.0, items[0].Qty)
	assert.Equal(t, 12.30, items[0].UnitPrice)
	// the typo'd source never overwrites the stored name
	assert.Equal(t, "CABO DE REDE UTP", items[0].EntityName)

	// converged: replaying the same source is a no-op
	rep, err = eng.Sync(ctx, 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)
	assert.True(t, rep.Empty())
}

func TestSyncCreatesNewItem(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	eng := New(st, zerolog.Nop())

	src := []model.SourceItem{{Description: "Nobreak 600 VA", Qty: 4, UnitPrice: 450, Brand: "SMS"}}
	rep, err := eng.Sync(ctx, 2, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	require.Len(t, rep.Created, 1)
	assert.Equal(t, "NOBREAK 600 VA", rep.Created[0].Name)
	assert.NotZero(t, rep.Created[0].EntityID)
	assert.NotZero(t, rep.Created[0].LotItemID)

	items, err := st.LotItems(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4.0, items[0].Qty)
	assert.Equal(t, "SMS", items[0].Brand)
	assert.True(t, items[0].Active)

	ent, err := st.EntityByKey(ctx, model.KindMaterial, "NOBREAK 600VA")
	require.NoError(t, err)
	assert.Equal(t, "NOBREAK 600 VA", ent.Name)
}

func TestSyncReusesExistingEntity(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	e := seedEntity(t, st, model.KindMaterial, "NOBREAK 600 VA", "NOBREAK 600VA")
	seedItem(t, st, 1, e.ID, 2, 400)

	eng := New(st, zerolog.Nop())
	src := []model.SourceItem{{Description: "Nobreak 600VA", Qty: 6, UnitPrice: 420}}
	rep, err := eng.Sync(ctx, 2, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	require.Len(t, rep.Created, 1)
	assert.Equal(t, e.ID, rep.Created[0].EntityID)

	ents, err := st.Entities(ctx, model.KindMaterial)
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}

func TestSyncOrphans(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	a := seedEntity(t, st, model.KindMaterial, "ITEM SOLTO", "ITEM SOLTO")
	b := seedEntity(t, st, model.KindMaterial, "ITEM COM LAUDO", "ITEM COM LAUDO")
	ia := seedItem(t, st, 1, a.ID, 5, 10)
	ib := seedItem(t, st, 1, b.ID, 5, 10)
	require.NoError(t, st.CreateReport(ctx, &model.Report{LotItemID: ib.ID, Qty: 1}))

	eng := New(st, zerolog.Nop())
	rep, err := eng.Sync(ctx, 1, nil, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	require.Len(t, rep.Deleted, 1)
	assert.Equal(t, ia.ID, rep.Deleted[0].LotItemID)
	require.Len(t, rep.Blocked, 1)
	assert.Equal(t, ib.ID, rep.Blocked[0].LotItemID)
	assert.Equal(t, 1, rep.Blocked[0].Reports)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, ib.ID, items[0].ID)

	// the deleted item's entity had no other lot, so it went too
	_, err = st.EntityByKey(ctx, model.KindMaterial, "ITEM SOLTO")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncOrphanKeepsReferencedEntity(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	e := seedEntity(t, st, model.KindMaterial, "ITEM FATURADO", "ITEM FATURADO")
	it := seedItem(t, st, 1, e.ID, 5, 10)
	_, err := st.DB().ExecContext(ctx,
		`INSERT INTO invoice_items(entity_id, number) VALUES(?, 'NF-7')`, e.ID)
	require.NoError(t, err)

	eng := New(st, zerolog.Nop())
	rep, err := eng.Sync(ctx, 1, nil, model.SyncOptions{}, testAudit)
	require.NoError(t, err)
	assert.Empty(t, rep.Failure)
	require.Len(t, rep.Deleted, 1)
	assert.Equal(t, it.ID, rep.Deleted[0].LotItemID)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
	// the invoice still points at the entity, so the entity survives
	_, err = st.EntityByKey(ctx, model.KindMaterial, "ITEM FATURADO")
	require.NoError(t, err)
}

func TestSyncMergesStaleDuplicate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	e1 := seedEntity(t, st, model.KindMaterial, "CABO DE REDE UTP CAT6", "CABO DE REDE UTP CAT6")
	e2 := seedEntity(t, st, model.KindMaterial, "CABO REDE UTP CAT6", "CABO REDE UTP CAT6")
	i1 := seedItem(t, st, 1, e1.ID, 10, 5)
	i2 := seedItem(t, st, 1, e2.ID, 0, 0)
	require.NoError(t, st.CreateReport(ctx, &model.Report{LotItemID: i2.ID, Qty: 1}))
	require.NoError(t, st.CreateReport(ctx, &model.Report{LotItemID: i2.ID, Qty: 2}))

	eng := New(st, zerolog.Nop())
	src := []model.SourceItem{{Description: "CABO DE REDE UTP CAT6", Qty: 20, UnitPrice: 5.5}}
	rep, err := eng.Sync(ctx, 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	require.Len(t, rep.Merged, 1)
	assert.Equal(t, i1.ID, rep.Merged[0].WinnerItemID)
	assert.Equal(t, i2.ID, rep.Merged[0].LoserItemID)
	assert.Equal(t, int64(2), rep.Merged[0].ReportsMoved)

	n, err := st.ReportCount(ctx, i1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, i1.ID, items[0].ID)
	assert.Equal(t, 20.0, items[0].Qty)

	_, err = st.EntityByKey(ctx, model.KindMaterial, "CABO REDE UTP CAT6")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	e1 := seedEntity(t, st, model.KindMaterial, "CABO DE REDE UTP CAT6", "CABO DE REDE UTP CAT6")
	e2 := seedEntity(t, st, model.KindMaterial, "CABO REDE UTP CAT6", "CABO REDE UTP CAT6")
	i1 := seedItem(t, st, 1, e1.ID, 10, 5)
	i2 := seedItem(t, st, 1, e2.ID, 0, 0)

	eng := New(st, zerolog.Nop())
	src := []model.SourceItem{
		{Description: "CABO DE REDE UTP CAT6", Qty: 20, UnitPrice: 5.5},
		{Description: "PATCH PANEL 24 PORTAS", Qty: 2, UnitPrice: 300},
	}
	rep, err := eng.Sync(ctx, 1, src, model.SyncOptions{DryRun: true}, testAudit)
	require.NoError(t, err)

	assert.True(t, rep.DryRun)
	assert.Len(t, rep.Created, 1)
	assert.Len(t, rep.Updated, 1)
	assert.Len(t, rep.Merged, 1)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, i1.ID, items[0].ID)
	assert.Equal(t, 10.0, items[0].Qty)
	assert.Equal(t, i2.ID, items[1].ID)

	// the preview is truthful: the real run applies exactly what it announced
	wet, err := eng.Sync(ctx, 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)
	assert.Len(t, wet.Created, len(rep.Created))
	assert.Len(t, wet.Updated, len(rep.Updated))
	assert.Len(t, wet.Merged, len(rep.Merged))
	assert.Len(t, wet.Deleted, len(rep.Deleted))
}

func TestSyncSkipsInvalidRows(t *testing.T) {
	st := openTest(t)
	eng := New(st, zerolog.Nop())

	src := []model.SourceItem{
		{Description: "  ", Qty: 5},
		{Description: "CABO UTP", Qty: 0},
	}
	rep, err := eng.Sync(context.Background(), 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	assert.True(t, rep.Empty())
	require.Len(t, rep.Skipped, 2)
	assert.Equal(t, "missing description", rep.Skipped[0].Reason)
	assert.Equal(t, "missing quantity", rep.Skipped[1].Reason)
}

func TestSyncSecondSourceSameItemIsUpdate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	e := seedEntity(t, st, model.KindMaterial, "CABO UTP", "CABO UTP")
	seedItem(t, st, 1, e.ID, 5, 1)

	eng := New(st, zerolog.Nop())
	src := []model.SourceItem{
		{Description: "CABO UTP", Qty: 10, UnitPrice: 1},
		{Description: "CABO UTP", Qty: 30, UnitPrice: 2},
	}
	rep, err := eng.Sync(ctx, 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	// the second occurrence overwrites the staged update, never duplicates
	require.Len(t, rep.Updated, 1)
	assert.Equal(t, 30.0, rep.Updated[0].Qty)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 30.0, items[0].Qty)
	assert.Equal(t, 2.0, items[0].UnitPrice)
}

func TestSyncSecondSourceSameNewEntityIsOneCreate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	eng := New(st, zerolog.Nop())

	src := []model.SourceItem{
		{Description: "TONER HP PRETO", Qty: 2, UnitPrice: 100},
		{Description: "Toner HP Preto", Qty: 5, UnitPrice: 110},
	}
	rep, err := eng.Sync(ctx, 1, src, model.SyncOptions{}, testAudit)
	require.NoError(t, err)

	require.Len(t, rep.Created, 1)
	assert.Equal(t, 5.0, rep.Created[0].Qty)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5.0, items[0].Qty)
}

func TestSyncAllContainsFailures(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	// with the referencing tables misconfigured away, planning misses the
	// invoice FK and lot 1 hits a constraint on the entity delete; it must
	// roll back alone while lot 2 commits
	st.SetRefTables(nil)
	e := seedEntity(t, st, model.KindMaterial, "ITEM FATURADO", "ITEM FATURADO")
	seedItem(t, st, 1, e.ID, 5, 10)
	_, err := st.DB().ExecContext(ctx,
		`INSERT INTO invoice_items(entity_id, number) VALUES(?, 'NF-7')`, e.ID)
	require.NoError(t, err)

	eng := New(st, zerolog.Nop())
	batches := []model.LotBatch{
		{LotID: 1},
		{LotID: 2, Items: []model.SourceItem{{Description: "CADEIRA", Qty: 3, UnitPrice: 80}}},
	}
	reps := eng.SyncAll(ctx, batches, model.SyncOptions{}, testAudit)
	require.Len(t, reps, 2)
	assert.NotEmpty(t, reps[0].Failure)
	assert.Empty(t, reps[1].Failure)
	assert.Len(t, reps[1].Created, 1)

	items, err := st.LotItems(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1) // lot 1 untouched after rollback
	items, err = st.LotItems(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
