package match

import (
	"sort"
	"strings"

	"catalog-recon/internal/reconcile/model"
)

// ResolveThreshold is the similarity floor of the last resolver tier.
const ResolveThreshold = 0.90

// prefixWords is how many leading tokens must agree for the prefix tier.
const prefixWords = 4

// Resolver maps one external description to zero-or-one existing lot item.
// Tiers run in order and short-circuit; the spec gate runs before any of
// them and is absolute.
type Resolver struct {
	Kind model.Kind
}

func (r Resolver) normalize(s string) string {
	return NormalizeKind(s, r.Kind == model.KindSupplier)
}

// Resolve tries, per candidate: spec gate, exact normalized equality,
// containment, leading-word prefix, then similarity >= ResolveThreshold.
// Candidates are visited by descending quantity, so a populated item beats
// an empty placeholder when several would tie. Returns nil when nothing
// matches (caller creates a new entity).
func (r Resolver) Resolve(description string, candidates []model.LotItem) *model.LotItem {
	normSrc := r.normalize(description)
	if normSrc == "" {
		return nil
	}
	specsSrc := ExtractSpecs(description)

	ordered := make([]model.LotItem, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Qty > ordered[j].Qty })

	for i := range ordered {
		cand := &ordered[i]
		if !specsSrc.Compatible(ExtractSpecs(cand.EntityName)) {
			continue // hard spec mismatch, similarity never overrides
		}
		normCand := r.normalize(cand.EntityName)
		if normCand == "" {
			continue
		}
		if normSrc == normCand {
			return cand
		}
		if strings.Contains(normSrc, normCand) || strings.Contains(normCand, normSrc) {
			return cand
		}
		if samePrefixWords(normSrc, normCand, prefixWords) {
			return cand
		}
		// similarity runs on the names with spec tokens stripped; the gate
		// above already decided whether the specs allow this pair
		if Ratio(StripSpecTokens(normSrc), StripSpecTokens(normCand)) >= ResolveThreshold {
			return cand
		}
	}
	return nil
}

// samePrefixWords reports whether both strings have at least n tokens and the
// first n are identical. Shorter names fall through to the similarity tier.
func samePrefixWords(a, b string, n int) bool {
	fa := strings.Fields(a)
	fb := strings.Fields(b)
	if len(fa) < n || len(fb) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
