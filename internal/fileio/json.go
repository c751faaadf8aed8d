package fileio

import (
	"encoding/json"
	"fmt"
	"io"

	"catalog-recon/internal/reconcile/model"
)

// readJSONItems decodes a single-lot item array.
func readJSONItems(r io.Reader) ([]model.SourceItem, error) {
	var items []model.SourceItem
	dec := json.NewDecoder(r)
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode source items: %w", err)
	}
	return items, nil
}

// ReadBatches decodes a multi-lot JSON document: an array of
// {"lotId": N, "items": [...]} objects.
func ReadBatches(r io.Reader) ([]model.LotBatch, error) {
	var batches []model.LotBatch
	dec := json.NewDecoder(r)
	if err := dec.Decode(&batches); err != nil {
		return nil, fmt.Errorf("decode lot batches: %w", err)
	}
	return batches, nil
}
