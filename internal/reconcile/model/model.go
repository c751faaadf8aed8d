package model

// Kind separates the two catalog namespaces. Materials and suppliers are
// matched with different thresholds and normalization rules.
type Kind string

const (
	KindMaterial Kind = "material"
	KindSupplier Kind = "supplier"
)

// Entity is one row of the shared catalog (a material or a supplier).
// Name holds the display form (uppercase preferred); NameKey holds the
// normalized form used for exact lookups.
type Entity struct {
	ID      int64
	Kind    Kind
	Name    string
	NameKey string
	Brand   string
	Unit    string
	TaxID   string
}

// LotItem binds one entity to one procurement lot. At most one LotItem may
// exist per (entity, lot) pair; a violation means a duplicate to merge.
type LotItem struct {
	ID         int64
	LotID      int64
	EntityID   int64
	EntityName string // joined from entities, read-only
	Qty        float64
	UnitPrice  float64
	Fulfilled  float64
	Brand      string
	Active     bool
}

// Report is a downstream usage record hanging off a LotItem. Reports are
// never deleted by the engine; on merges they are migrated to the surviving
// item.
type Report struct {
	ID        int64
	LotItemID int64
	Qty       float64
	Note      string
}

// SourceItem is one authoritative external record for a lot, as produced by
// the export/extraction pipeline.
type SourceItem struct {
	Description  string  `json:"description"`
	Qty          float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	Unit         string  `json:"unit"`
	Brand        string  `json:"brand"`
	SupplierHint string  `json:"supplierHint"`
}

// LotBatch is the unit a sync run consumes: the full ordered source for one lot.
type LotBatch struct {
	LotID int64        `json:"lotId"`
	Items []SourceItem `json:"items"`
}

// Audit identifies who triggered a mutating run. Passed explicitly; the
// engine keeps no ambient request state.
type Audit struct {
	Actor string
	RunID string
}

type SyncOptions struct {
	DryRun bool
	// MergeThreshold gates the post-pass duplicate merge (default 0.85).
	MergeThreshold float64
}

type DedupeOptions struct {
	DryRun bool
	Auto   bool
}

// ItemChange describes one staged create/update/delete on a lot item.
// IDs are zero in dry-run reports for rows that do not exist yet.
type ItemChange struct {
	LotItemID int64   `json:"lotItemId,omitempty"`
	EntityID  int64   `json:"entityId,omitempty"`
	Name      string  `json:"name"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unitPrice"`
}

// Merge records one duplicate lot item folded into a surviving one.
type Merge struct {
	WinnerItemID int64  `json:"winnerItemId,omitempty"`
	LoserItemID  int64  `json:"loserItemId"`
	WinnerName   string `json:"winnerName"`
	LoserName    string `json:"loserName"`
	ReportsMoved int64  `json:"reportsMoved"`
}

// Orphan is a lot item absent from the authoritative source. Blocking when it
// still has reports; those are surfaced, never deleted.
type Orphan struct {
	LotItemID int64  `json:"lotItemId"`
	EntityID  int64  `json:"entityId"`
	Name      string `json:"name"`
	Reports   int    `json:"reports"`
}

// SkippedItem records a source item dropped by validation.
type SkippedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SyncReport is the audit record of one reconciliation pass over one lot.
type SyncReport struct {
	LotID   int64         `json:"lotId"`
	DryRun  bool          `json:"dryRun"`
	Created []ItemChange  `json:"created"`
	Updated []ItemChange  `json:"updated"`
	Merged  []Merge       `json:"merged"`
	Deleted []ItemChange  `json:"deleted"`
	Blocked []Orphan      `json:"blocked"`
	Skipped []SkippedItem `json:"skipped"`
	Failure string        `json:"failure,omitempty"`
}

func (r SyncReport) Empty() bool {
	return len(r.Created) == 0 && len(r.Updated) == 0 &&
		len(r.Merged) == 0 && len(r.Deleted) == 0
}

// MergeGroup is one proposed catalog-wide consolidation: the lowest-id entity
// wins, the rest are folded into it.
type MergeGroup struct {
	Kind   Kind     `json:"kind"`
	Winner Entity   `json:"winner"`
	Losers []Entity `json:"losers"`
}

// EntityMerge records one applied (or staged) loser-into-winner fold,
// including every re-pointed reference by table.
type EntityMerge struct {
	WinnerID   int64            `json:"winnerId"`
	LoserID    int64            `json:"loserId"`
	WinnerName string           `json:"winnerName"`
	LoserName  string           `json:"loserName"`
	RefsMoved  map[string]int64 `json:"refsMoved,omitempty"`
}

// ConsolidationReport is the audit record of one consolidation group.
// Reports are always migrated on merge, never blocking here.
type ConsolidationReport struct {
	Kind      Kind          `json:"kind"`
	DryRun    bool          `json:"dryRun"`
	Confirmed bool          `json:"confirmed"`
	Merged    []EntityMerge `json:"merged"`
	Failure   string        `json:"failure,omitempty"`
}
