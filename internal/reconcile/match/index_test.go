package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexCandidates(t *testing.T) {
	idx := NewIndex()
	idx.Add("CABO UTP")
	idx.Add("CABO REDE")
	idx.Add("SWITCH 24PORTAS")

	got := idx.Candidates("CABO DE REDE")
	assert.Contains(t, got, "CABO UTP")
	assert.Contains(t, got, "CABO REDE")
	assert.NotContains(t, got, "SWITCH 24PORTAS")

	assert.Empty(t, idx.Candidates(""))
	assert.Empty(t, idx.Candidates("XYZW"))
}

func TestIndexShortNames(t *testing.T) {
	idx := NewIndex()
	idx.Add("M")
	got := idx.Candidates("M")
	assert.Equal(t, []string{"M"}, got)
}
