package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"catalog-recon/internal/reconcile/model"
)

func items(names ...string) []model.LotItem {
	out := make([]model.LotItem, len(names))
	for i, n := range names {
		out[i] = model.LotItem{ID: int64(i + 1), EntityName: n}
	}
	return out
}

func TestResolveExact(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	got := r.Resolve("Cabo de Rede UTP", items("CABO DE REDE UTP"))
	assert.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
}

func TestResolveSpecGateBlocks(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	// CAT5E vs CAT6 is a hard mismatch no matter how similar the names are
	got := r.Resolve("CABO DE REDE UTP CAT5E", items("CABO DE REDE UTP CAT6"))
	assert.Nil(t, got)
}

func TestResolveContainment(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	got := r.Resolve("CABO DE REDE UTP AZUL", items("CABO DE REDE UTP"))
	assert.NotNil(t, got)

	got = r.Resolve("CABO DE REDE", items("CABO DE REDE UTP AZUL"))
	assert.NotNil(t, got)
}

func TestResolvePrefixWords(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	got := r.Resolve("PAPEL SULFITE BRANCO ALCALINO RESMA",
		items("PAPEL SULFITE BRANCO ALCALINO PACOTE"))
	assert.NotNil(t, got)

	// too short for the prefix tier, and too different for the others
	got = r.Resolve("PAPEL SULFITE", items("PAPEL TOALHA"))
	assert.Nil(t, got)
}

func TestResolveSimilarityWithTypo(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	// "CADO" is a typo of "CABO"; the candidate carries no spec tokens so the
	// gate passes, and the stripped-name ratio clears the threshold
	got := r.Resolve("CADO DE REDE UTP CAT5E", items("CABO DE REDE UTP"))
	assert.NotNil(t, got)
}

func TestResolveNoMatch(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	assert.Nil(t, r.Resolve("TONER HP PRETO", items("CADEIRA GIRATORIA")))
	assert.Nil(t, r.Resolve("", items("CADEIRA GIRATORIA")))
	assert.Nil(t, r.Resolve("TONER HP PRETO", nil))
}

func TestResolvePrefersPopulatedItem(t *testing.T) {
	r := Resolver{Kind: model.KindMaterial}
	cands := []model.LotItem{
		{ID: 1, EntityName: "CABO UTP", Qty: 0},
		{ID: 2, EntityName: "CABO UTP", Qty: 10},
	}
	got := r.Resolve("CABO UTP", cands)
	assert.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)
}

func TestResolveSupplierSuffixes(t *testing.T) {
	r := Resolver{Kind: model.KindSupplier}
	got := r.Resolve("Prosun Informática Ltda.", items("PROSUN INFORMATICA"))
	assert.NotNil(t, got)
}
