package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"catalog-recon/internal/reconcile/match"
	"catalog-recon/internal/reconcile/model"
	"catalog-recon/internal/store"
)

// DefaultMergeThreshold gates the post-pass zero-quantity duplicate merge.
const DefaultMergeThreshold = 0.85

// mergeQtyMax: a stale duplicate must be at or below this quantity to be
// merge-eligible (historically: zero).
const mergeQtyMax = 0.0

const eps = 1e-9

// Engine runs one full sync pass per lot: the ordered source list is ground
// truth, the catalog converges to it. Creates, updates, duplicate merges and
// orphan deletions all happen inside one transaction per lot.
type Engine struct {
	st  store.Store
	log zerolog.Logger
}

func New(st store.Store, logger zerolog.Logger) *Engine {
	return &Engine{st: st, log: logger}
}

type createOp struct {
	src      model.SourceItem
	name     string
	key      string
	entityID int64 // 0 = entity must be created
	itemID   int64 // filled during apply
}

type updateOp struct {
	item model.LotItem // new values already set
}

type mergeOp struct {
	loser      model.LotItem
	winnerID   int64 // existing lot item id; 0 when the winner is a staged create
	createIdx  int   // index into plan.creates when winnerID == 0
	winnerName string
	reports    int64
	entityAlso bool
}

type deleteOp struct {
	item       model.LotItem
	entityAlso bool
}

type syncPlan struct {
	creates []createOp
	updates []updateOp
	merges  []mergeOp
	deletes []deleteOp
	blocked []model.Orphan
	skipped []model.SkippedItem
}

// Sync reconciles one lot against its authoritative source items. With
// opts.DryRun the full report is computed from the same decision logic and
// nothing is written. Re-running against the converged state yields an
// empty diff.
func (e *Engine) Sync(ctx context.Context, lotID int64, items []model.SourceItem, opts model.SyncOptions, audit model.Audit) (model.SyncReport, error) {
	start := time.Now()
	report := model.SyncReport{LotID: lotID, DryRun: opts.DryRun}

	tx, err := e.st.Begin(ctx)
	if err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("lot %d: begin: %w", lotID, err)
	}
	defer tx.Rollback()

	plan, err := e.plan(ctx, tx, lotID, items, opts)
	if err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("lot %d: plan: %w", lotID, err)
	}
	fillReport(&report, plan)

	if opts.DryRun {
		e.logSummary(report, audit, time.Since(start))
		return report, nil
	}

	if err := e.apply(ctx, tx, lotID, plan, audit); err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("lot %d: apply: %w", lotID, err)
	}
	if err := tx.Commit(); err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("lot %d: commit: %w", lotID, err)
	}
	fillAppliedIDs(&report, plan)
	e.logSummary(report, audit, time.Since(start))
	return report, nil
}

// fillAppliedIDs back-fills ids assigned during apply (dry-run reports keep
// zeros for rows that were never created).
func fillAppliedIDs(r *model.SyncReport, plan *syncPlan) {
	for i, c := range plan.creates {
		r.Created[i].EntityID = c.entityID
		r.Created[i].LotItemID = c.itemID
	}
	for i, m := range plan.merges {
		if m.winnerID == 0 && m.createIdx >= 0 {
			r.Merged[i].WinnerItemID = plan.creates[m.createIdx].itemID
		}
	}
}

// SyncAll runs Sync per batch, one transaction each. A failing lot rolls
// back alone and the rest of the batch continues.
func (e *Engine) SyncAll(ctx context.Context, batches []model.LotBatch, opts model.SyncOptions, audit model.Audit) []model.SyncReport {
	out := make([]model.SyncReport, 0, len(batches))
	for _, b := range batches {
		rep, err := e.Sync(ctx, b.LotID, b.Items, opts, audit)
		if err != nil {
			e.log.Error().Err(err).Int64("lot", b.LotID).Str("run", audit.RunID).Msg("lot sync failed")
		}
		out = append(out, rep)
	}
	return out
}

func (e *Engine) plan(ctx context.Context, tx store.Tx, lotID int64, items []model.SourceItem, opts model.SyncOptions) (*syncPlan, error) {
	mergeThreshold := opts.MergeThreshold
	if mergeThreshold <= 0 {
		mergeThreshold = DefaultMergeThreshold
	}

	current, err := tx.LotItems(ctx, lotID)
	if err != nil {
		return nil, err
	}

	plan := &syncPlan{}
	resolver := match.Resolver{Kind: model.KindMaterial}
	touched := make(map[int64]bool, len(current))
	// staged updates by item id, so a second source resolving to the same
	// item overwrites the first instead of duplicating it
	stagedUpdate := make(map[int64]int)
	pendingCreate := make(map[string]int) // normalized key -> index into creates
	byEntity := make(map[int64]*model.LotItem, len(current))
	for i := range current {
		byEntity[current[i].EntityID] = &current[i]
	}

	for i, src := range items {
		if strings.TrimSpace(src.Description) == "" {
			plan.skipped = append(plan.skipped, model.SkippedItem{Index: i, Reason: "missing description"})
			continue
		}
		if src.Qty <= 0 {
			plan.skipped = append(plan.skipped, model.SkippedItem{Index: i, Reason: "missing quantity"})
			continue
		}

		remaining := make([]model.LotItem, 0, len(current))
		for _, it := range current {
			if !touched[it.ID] {
				remaining = append(remaining, it)
			}
		}

		if m := resolver.Resolve(src.Description, remaining); m != nil {
			e.stageMatch(plan, stagedUpdate, *m, src)
			touched[m.ID] = true
			continue
		}

		key := match.Normalize(src.Description)
		if idx, ok := pendingCreate[key]; ok {
			// same new entity twice in one pass: update the staged create
			plan.creates[idx].src = src
			continue
		}
		ent, err := tx.EntityByKey(ctx, model.KindMaterial, key)
		if err != nil && err != store.ErrNotFound {
			return nil, err
		}
		if ent != nil {
			if it, ok := byEntity[ent.ID]; ok {
				// entity already bound to this lot; the item just was not
				// resolvable by name (or was claimed earlier in the pass).
				// Second occurrence is an update, never a duplicate insert.
				e.stageMatch(plan, stagedUpdate, *it, src)
				touched[it.ID] = true
				continue
			}
		}
		var entityID int64
		if ent != nil {
			entityID = ent.ID
		}
		plan.creates = append(plan.creates, createOp{
			src:      src,
			name:     match.DisplayName(src.Description),
			key:      key,
			entityID: entityID,
		})
		pendingCreate[key] = len(plan.creates) - 1
	}

	merged := make(map[int64]bool)
	for _, cur := range current {
		if touched[cur.ID] || cur.Qty > mergeQtyMax {
			continue
		}
		op, ok := e.findMergeWinner(plan, current, touched, cur, mergeThreshold)
		if !ok {
			continue
		}
		rc, err := tx.ReportCount(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		op.reports = int64(rc)
		op.entityAlso, err = entityUnreferencedAfter(ctx, tx, cur)
		if err != nil {
			return nil, err
		}
		plan.merges = append(plan.merges, op)
		merged[cur.ID] = true
	}

	for _, cur := range current {
		if touched[cur.ID] || merged[cur.ID] {
			continue
		}
		rc, err := tx.ReportCount(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		if rc > 0 {
			// never deleted automatically; needs a human
			plan.blocked = append(plan.blocked, model.Orphan{
				LotItemID: cur.ID, EntityID: cur.EntityID, Name: cur.EntityName, Reports: rc,
			})
			continue
		}
		entityAlso, err := entityUnreferencedAfter(ctx, tx, cur)
		if err != nil {
			return nil, err
		}
		plan.deletes = append(plan.deletes, deleteOp{item: cur, entityAlso: entityAlso})
	}

	return plan, nil
}

// stageMatch stages an update when the source disagrees with the item, and
// replaces any update already staged for the same item.
func (e *Engine) stageMatch(plan *syncPlan, staged map[int64]int, it model.LotItem, src model.SourceItem) {
	changed := math.Abs(it.Qty-src.Qty) > eps ||
		math.Abs(it.UnitPrice-src.UnitPrice) > eps ||
		(src.Brand != "" && src.Brand != it.Brand) ||
		!it.Active
	if !changed {
		return
	}
	next := it
	next.Qty = src.Qty
	next.UnitPrice = src.UnitPrice
	if src.Brand != "" {
		next.Brand = src.Brand
	}
	next.Active = true
	if idx, ok := staged[it.ID]; ok {
		plan.updates[idx] = updateOp{item: next}
		return
	}
	plan.updates = append(plan.updates, updateOp{item: next})
	staged[it.ID] = len(plan.updates) - 1
}

// findMergeWinner looks for a touched item (updated existing or staged
// create) close enough to the stale duplicate: name similarity at or above
// threshold and compatible spec sets.
func (e *Engine) findMergeWinner(plan *syncPlan, current []model.LotItem, touched map[int64]bool, dup model.LotItem, threshold float64) (mergeOp, bool) {
	normDup := match.Normalize(dup.EntityName)
	specsDup := match.ExtractSpecs(dup.EntityName)

	for _, t := range current {
		if !touched[t.ID] {
			continue
		}
		if !specsDup.Compatible(match.ExtractSpecs(t.EntityName)) {
			continue
		}
		if match.BestRatio(normDup, match.Normalize(t.EntityName)) >= threshold {
			return mergeOp{loser: dup, winnerID: t.ID, createIdx: -1, winnerName: t.EntityName}, true
		}
	}
	for idx := range plan.creates {
		c := &plan.creates[idx]
		if !specsDup.Compatible(match.ExtractSpecs(c.name)) {
			continue
		}
		if match.BestRatio(normDup, c.key) >= threshold {
			return mergeOp{loser: dup, winnerID: 0, createIdx: idx, winnerName: c.name}, true
		}
	}
	return mergeOp{}, false
}

// entityUnreferencedAfter reports whether deleting it would leave its entity
// with no lot items and no rows in the configured referencing tables. An
// entity still carried by an invoice or a contact is kept, only the lot item
// goes.
func entityUnreferencedAfter(ctx context.Context, tx store.Tx, it model.LotItem) (bool, error) {
	items, err := tx.LotItemsByEntity(ctx, it.EntityID)
	if err != nil {
		return false, err
	}
	if len(items) != 1 || items[0].ID != it.ID {
		return false, nil
	}
	refs, err := tx.EntityRefCounts(ctx, it.EntityID)
	if err != nil {
		return false, err
	}
	return len(refs) == 0, nil
}

func (e *Engine) apply(ctx context.Context, tx store.Tx, lotID int64, plan *syncPlan, audit model.Audit) error {
	if err := tx.EnsureLot(ctx, lotID, ""); err != nil {
		return err
	}

	for i := range plan.creates {
		c := &plan.creates[i]
		if c.entityID == 0 {
			ent := &model.Entity{
				Kind:    model.KindMaterial,
				Name:    c.name,
				NameKey: c.key,
				Brand:   c.src.Brand,
				Unit:    c.src.Unit,
			}
			if err := tx.CreateEntity(ctx, ent); err != nil {
				return err
			}
			c.entityID = ent.ID
		}
		it := &model.LotItem{
			LotID:     lotID,
			EntityID:  c.entityID,
			Qty:       c.src.Qty,
			UnitPrice: c.src.UnitPrice,
			Brand:     c.src.Brand,
			Active:    true,
		}
		if err := tx.CreateLotItem(ctx, it); err != nil {
			return err
		}
		c.itemID = it.ID
		e.log.Info().Str("run", audit.RunID).Str("actor", audit.Actor).
			Int64("lot", lotID).Int64("item", it.ID).Str("name", c.name).Msg("item created")
	}

	for _, u := range plan.updates {
		if err := tx.UpdateLotItem(ctx, u.item); err != nil {
			return err
		}
		e.log.Info().Str("run", audit.RunID).Str("actor", audit.Actor).
			Int64("lot", lotID).Int64("item", u.item.ID).Msg("item updated")
	}

	for _, m := range plan.merges {
		winnerID := m.winnerID
		if winnerID == 0 {
			winnerID = plan.creates[m.createIdx].itemID
		}
		if _, err := tx.MigrateReports(ctx, m.loser.ID, winnerID); err != nil {
			return err
		}
		if err := tx.DeleteLotItem(ctx, m.loser.ID); err != nil {
			return err
		}
		if m.entityAlso {
			if err := tx.DeleteEntity(ctx, m.loser.EntityID); err != nil {
				return err
			}
		}
		e.log.Info().Str("run", audit.RunID).Str("actor", audit.Actor).
			Int64("lot", lotID).Int64("loser", m.loser.ID).Int64("winner", winnerID).
			Int64("reports", m.reports).Msg("duplicate merged")
	}

	for _, d := range plan.deletes {
		if err := tx.DeleteLotItem(ctx, d.item.ID); err != nil {
			return err
		}
		if d.entityAlso {
			if err := tx.DeleteEntity(ctx, d.item.EntityID); err != nil {
				return err
			}
		}
		e.log.Info().Str("run", audit.RunID).Str("actor", audit.Actor).
			Int64("lot", lotID).Int64("item", d.item.ID).Str("name", d.item.EntityName).Msg("orphan deleted")
	}

	return nil
}

func fillReport(r *model.SyncReport, plan *syncPlan) {
	for _, c := range plan.creates {
		r.Created = append(r.Created, model.ItemChange{
			EntityID: c.entityID, Name: c.name, Qty: c.src.Qty, UnitPrice: c.src.UnitPrice,
		})
	}
	for _, u := range plan.updates {
		r.Updated = append(r.Updated, model.ItemChange{
			LotItemID: u.item.ID, EntityID: u.item.EntityID, Name: u.item.EntityName,
			Qty: u.item.Qty, UnitPrice: u.item.UnitPrice,
		})
	}
	for _, m := range plan.merges {
		r.Merged = append(r.Merged, model.Merge{
			WinnerItemID: m.winnerID, LoserItemID: m.loser.ID,
			WinnerName: m.winnerName, LoserName: m.loser.EntityName,
			ReportsMoved: m.reports,
		})
	}
	for _, d := range plan.deletes {
		r.Deleted = append(r.Deleted, model.ItemChange{
			LotItemID: d.item.ID, EntityID: d.item.EntityID, Name: d.item.EntityName,
			Qty: d.item.Qty, UnitPrice: d.item.UnitPrice,
		})
	}
	r.Blocked = plan.blocked
	r.Skipped = plan.skipped
}

func (e *Engine) logSummary(r model.SyncReport, audit model.Audit, elapsed time.Duration) {
	e.log.Info().
		Str("run", audit.RunID).Str("actor", audit.Actor).
		Int64("lot", r.LotID).Bool("dry_run", r.DryRun).
		Int("created", len(r.Created)).Int("updated", len(r.Updated)).
		Int("merged", len(r.Merged)).Int("deleted", len(r.Deleted)).
		Int("blocked", len(r.Blocked)).Int("skipped", len(r.Skipped)).
		Dur("elapsed", elapsed).
		Msg("lot sync done")
}
