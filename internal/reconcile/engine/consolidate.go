package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"catalog-recon/internal/reconcile/match"
	"catalog-recon/internal/reconcile/model"
	"catalog-recon/internal/store"
)

// Consolidator walks the whole catalog of one kind, proposes merge groups of
// near-identical entities and applies them with full foreign-key
// re-pointing. Confirm is asked once per group before anything is written;
// nil means always yes (the -auto path).
type Consolidator struct {
	st      store.Store
	log     zerolog.Logger
	Confirm func(model.MergeGroup) bool
}

func NewConsolidator(st store.Store, logger zerolog.Logger) *Consolidator {
	return &Consolidator{st: st, log: logger}
}

// FindDuplicateGroups clusters all live entities of a kind by name
// similarity at or above threshold, spec-compatible pairs only. Entities are
// visited by ascending id and the lowest id in a cluster wins, so reruns
// produce the same groups.
func (c *Consolidator) FindDuplicateGroups(ctx context.Context, kind model.Kind, threshold float64) ([]model.MergeGroup, error) {
	ents, err := c.st.Entities(ctx, kind)
	if err != nil {
		return nil, err
	}

	supplier := kind == model.KindSupplier
	norms := make([]string, len(ents))
	specs := make([]match.SpecSet, len(ents))
	idx := match.NewIndex()
	byNorm := make(map[string][]int, len(ents))
	for i, e := range ents {
		norms[i] = match.NormalizeKind(e.Name, supplier)
		specs[i] = match.ExtractSpecs(e.Name)
		idx.Add(norms[i])
		byNorm[norms[i]] = append(byNorm[norms[i]], i)
	}

	grouped := make([]bool, len(ents))
	var groups []model.MergeGroup
	for i := range ents {
		if grouped[i] || norms[i] == "" {
			continue
		}
		var losers []model.Entity
		for _, cand := range idx.Candidates(norms[i]) {
			for _, j := range byNorm[cand] {
				if j <= i || grouped[j] {
					continue
				}
				if !specs[i].Compatible(specs[j]) {
					continue
				}
				if match.BestRatio(norms[i], norms[j]) < threshold {
					continue
				}
				losers = append(losers, ents[j])
				grouped[j] = true
			}
		}
		if len(losers) == 0 {
			continue
		}
		grouped[i] = true
		groups = append(groups, model.MergeGroup{Kind: kind, Winner: ents[i], Losers: losers})
	}
	return groups, nil
}

type entityMergeOp struct {
	loser model.Entity
	// loser lot items colliding with an existing (winner, lot) item get
	// their reports migrated into it; the rest are re-pointed in place
	migrations []itemMigration
	repoints   []int64          // lot item ids whose entity_id flips to the winner
	refCounts  map[string]int64 // rows per configured referencing table
}

type itemMigration struct {
	fromItem int64
	toItem   int64
	reports  int64
}

// Consolidate applies one merge group inside a single transaction. Dry-run
// computes the identical operation list and writes nothing.
func (c *Consolidator) Consolidate(ctx context.Context, group model.MergeGroup, opts model.DedupeOptions, audit model.Audit) (model.ConsolidationReport, error) {
	start := time.Now()
	report := model.ConsolidationReport{Kind: group.Kind, DryRun: opts.DryRun, Confirmed: true}

	if !opts.Auto && c.Confirm != nil && !c.Confirm(group) {
		report.Confirmed = false
		return report, nil
	}

	tx, err := c.st.Begin(ctx)
	if err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("consolidate %d: begin: %w", group.Winner.ID, err)
	}
	defer tx.Rollback()

	var ops []entityMergeOp
	for _, loser := range group.Losers {
		op := entityMergeOp{loser: loser}
		items, err := tx.LotItemsByEntity(ctx, loser.ID)
		if err != nil {
			report.Failure = err.Error()
			return report, err
		}
		for _, it := range items {
			existing, err := tx.LotItemByEntityLot(ctx, group.Winner.ID, it.LotID)
			if err != nil && err != store.ErrNotFound {
				report.Failure = err.Error()
				return report, err
			}
			if existing == nil {
				op.repoints = append(op.repoints, it.ID)
				continue
			}
			rc, err := tx.ReportCount(ctx, it.ID)
			if err != nil {
				report.Failure = err.Error()
				return report, err
			}
			op.migrations = append(op.migrations, itemMigration{
				fromItem: it.ID, toItem: existing.ID, reports: int64(rc),
			})
		}
		op.refCounts, err = tx.EntityRefCounts(ctx, loser.ID)
		if err != nil {
			report.Failure = err.Error()
			return report, err
		}
		ops = append(ops, op)
	}

	for _, op := range ops {
		merged := model.EntityMerge{
			WinnerID: group.Winner.ID, LoserID: op.loser.ID,
			WinnerName: group.Winner.Name, LoserName: op.loser.Name,
			RefsMoved: map[string]int64{},
		}
		if n := int64(len(op.repoints)); n > 0 {
			merged.RefsMoved["lot_items"] = n
		}
		for _, m := range op.migrations {
			merged.RefsMoved["reports"] += m.reports
		}
		for tbl, n := range op.refCounts {
			merged.RefsMoved[tbl] += n
		}
		if !opts.DryRun {
			for _, m := range op.migrations {
				if _, err := tx.MigrateReports(ctx, m.fromItem, m.toItem); err != nil {
					report.Failure = err.Error()
					return report, err
				}
				if err := tx.DeleteLotItem(ctx, m.fromItem); err != nil {
					report.Failure = err.Error()
					return report, err
				}
			}
			for _, id := range op.repoints {
				if err := tx.UpdateLotItemEntity(ctx, id, group.Winner.ID); err != nil {
					report.Failure = err.Error()
					return report, err
				}
			}
			// counts were taken during planning, inside this tx
			if _, err := tx.RepointRefs(ctx, op.loser.ID, group.Winner.ID); err != nil {
				report.Failure = err.Error()
				return report, err
			}
			if err := tx.DeleteEntity(ctx, op.loser.ID); err != nil {
				report.Failure = err.Error()
				return report, err
			}
			c.log.Info().Str("run", audit.RunID).Str("actor", audit.Actor).
				Str("kind", string(group.Kind)).
				Int64("winner", group.Winner.ID).Int64("loser", op.loser.ID).
				Str("winner_name", group.Winner.Name).Str("loser_name", op.loser.Name).
				Msg("entities merged")
		}
		report.Merged = append(report.Merged, merged)
	}

	if opts.DryRun {
		return report, nil
	}
	if err := tx.Commit(); err != nil {
		report.Failure = err.Error()
		return report, fmt.Errorf("consolidate %d: commit: %w", group.Winner.ID, err)
	}
	c.log.Info().Str("run", audit.RunID).
		Int64("winner", group.Winner.ID).Int("losers", len(group.Losers)).
		Dur("elapsed", time.Since(start)).Msg("consolidation done")
	return report, nil
}

// ConsolidateAll finds and applies every duplicate group of a kind. Failed
// groups are contained; the rest continue.
func (c *Consolidator) ConsolidateAll(ctx context.Context, kind model.Kind, threshold float64, opts model.DedupeOptions, audit model.Audit) ([]model.ConsolidationReport, error) {
	groups, err := c.FindDuplicateGroups(ctx, kind, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]model.ConsolidationReport, 0, len(groups))
	for _, g := range groups {
		rep, err := c.Consolidate(ctx, g, opts, audit)
		if err != nil {
			c.log.Error().Err(err).Int64("winner", g.Winner.ID).Str("run", audit.RunID).Msg("group consolidation failed")
		}
		out = append(out, rep)
	}
	return out, nil
}
