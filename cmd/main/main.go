package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"catalog-recon/internal/config"
	"catalog-recon/internal/fileio"
	"catalog-recon/internal/reconcile/engine"
	"catalog-recon/internal/reconcile/model"
	"catalog-recon/internal/store"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s -mode sync   -input <file> [-lot N] [-dry-run]\n"+
				"       %s -mode dedupe -kind material|supplier [-threshold X] [-auto] [-dry-run]\n",
			os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}

	mode := flag.String("mode", "sync", "sync | dedupe")
	input := flag.String("input", "", "source file: .json, .csv, .xlsx, .xls")
	lot := flag.Int64("lot", 0, "lot id (required for non-JSON input)")
	headerRow := flag.Int("header-row", 1, "header row, 1-based (spreadsheet input)")
	kindFlag := flag.String("kind", "material", "entity kind for dedupe")
	dryRun := flag.Bool("dry-run", false, "compute and print the diff, write nothing")
	threshold := flag.Float64("threshold", 0, "similarity cutoff 0..1 (0 = kind default)")
	auto := flag.Bool("auto", false, "apply proposed merges without confirmation")
	dbPath := flag.String("db", "", "sqlite path (overrides DB_PATH)")
	actor := flag.String("actor", "cli", "who triggered this run, for the audit log")
	flag.Parse()

	cfg := config.Load()
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	logger := config.SetupLogger(cfg)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", cfg.DBPath).Msg("open store")
	}
	defer st.Close()

	audit := model.Audit{Actor: *actor, RunID: uuid.NewString()}
	ctx := context.Background()

	switch *mode {
	case "sync":
		runSync(ctx, st, logger, cfg, *input, *lot, *headerRow, *dryRun, audit)
	case "dedupe":
		runDedupe(ctx, st, logger, cfg, *kindFlag, *threshold, *dryRun, *auto, audit)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runSync(ctx context.Context, st store.Store, logger zerolog.Logger, cfg config.Config,
	input string, lot int64, headerRow int, dryRun bool, audit model.Audit) {
	if input == "" {
		logger.Fatal().Msg("missing -input")
	}
	f, err := os.Open(input)
	if err != nil {
		logger.Fatal().Err(err).Msg("open input")
	}
	defer f.Close()

	var batches []model.LotBatch
	if lot == 0 && strings.EqualFold(filepath.Ext(input), ".json") {
		batches, err = fileio.ReadBatches(f)
		if err != nil {
			logger.Fatal().Err(err).Msg("read batches")
		}
	} else {
		if lot == 0 {
			logger.Fatal().Msg("missing -lot")
		}
		items, err := fileio.ReadSourceItems(f, input, headerRow)
		if err != nil {
			logger.Fatal().Err(err).Msg("read source items")
		}
		batches = []model.LotBatch{{LotID: lot, Items: items}}
	}

	eng := engine.New(st, logger)
	reports := eng.SyncAll(ctx, batches, model.SyncOptions{DryRun: dryRun}, audit)
	printJSON(reports)

	for _, r := range reports {
		if r.Failure != "" {
			os.Exit(1)
		}
	}
}

func runDedupe(ctx context.Context, st store.Store, logger zerolog.Logger, cfg config.Config,
	kindFlag string, threshold float64, dryRun, auto bool, audit model.Audit) {
	var kind model.Kind
	switch kindFlag {
	case "material":
		kind = model.KindMaterial
		if threshold == 0 {
			threshold = cfg.MaterialThreshold
		}
	case "supplier":
		kind = model.KindSupplier
		if threshold == 0 {
			threshold = cfg.SupplierThreshold
		}
	default:
		logger.Fatal().Str("kind", kindFlag).Msg("unknown -kind")
	}

	c := engine.NewConsolidator(st, logger)
	if !auto {
		c.Confirm = stdinConfirm
	}
	reports, err := c.ConsolidateAll(ctx, kind, threshold,
		model.DedupeOptions{DryRun: dryRun, Auto: auto}, audit)
	if err != nil {
		logger.Fatal().Err(err).Msg("dedupe")
	}
	printJSON(reports)

	for _, r := range reports {
		if r.Failure != "" {
			os.Exit(1)
		}
	}
}

func stdinConfirm(g model.MergeGroup) bool {
	names := make([]string, 0, len(g.Losers))
	for _, l := range g.Losers {
		names = append(names, fmt.Sprintf("%q (#%d)", l.Name, l.ID))
	}
	fmt.Fprintf(os.Stderr, "merge %s into %q (#%d)? [y/N] ",
		strings.Join(names, ", "), g.Winner.Name, g.Winner.ID)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes", "s", "sim":
		return true
	}
	return false
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
