package fileio

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"catalog-recon/internal/reconcile/model"
	"catalog-recon/internal/utils"
)

// Column aliases seen across municipal exports. Alternatives are separated
// by "|"; matching is accent-insensitive and tolerates composite headers
// ("quantidade solicitada" still maps to quantidade).
const (
	descKeys     = "descricao|descrição do item|item|material|produto|especificacao"
	qtyKeys      = "quantidade|qtde|qtd|quant"
	priceKeys    = "valor unitario|preco unitario|vl unit|valor"
	unitKeys     = "unidade|und|un"
	brandKeys    = "marca"
	supplierKeys = "fornecedor|empresa"
)

var headerFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
var headerJunk = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normHeaderKey: lowercase, accents dropped, punctuation to single spaces.
func normHeaderKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if folded, _, err := transform.String(headerFold, s); err == nil {
		s = folded
	}
	s = headerJunk.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// resolveKey finds the real column name in a record for a wanted header.
// Exact match first, then normalized equality, then containment either way.
func resolveKey(rec map[string]string, want string) string {
	want = strings.TrimSpace(want)
	if want == "" {
		return ""
	}
	alts := strings.Split(want, "|")
	for i := range alts {
		alts[i] = strings.TrimSpace(alts[i])
	}

	for _, a := range alts {
		if _, ok := rec[a]; ok {
			return a
		}
	}

	var nWantAll []string
	for _, a := range alts {
		nWantAll = append(nWantAll, normHeaderKey(a))
	}

	bestKey := ""
	bestScore := 0
	for k := range rec {
		nk := normHeaderKey(k)
		for _, n := range nWantAll {
			if nk == n {
				return k
			}
		}
		score := 0
		for _, n := range nWantAll {
			if strings.Contains(nk, n) || strings.Contains(n, nk) {
				if len(n) > score {
					score = len(n)
				}
			}
		}
		if score > bestScore {
			bestScore, bestKey = score, k
		}
	}
	return bestKey
}

// looksLikeHeaderMap drops stray header rows repeated mid-sheet.
func looksLikeHeaderMap(m map[string]string) bool {
	cnt := 0
	for _, v := range m {
		s := normHeaderKey(v)
		if strings.Contains(s, "descri") || strings.Contains(s, "quantidade") ||
			strings.Contains(s, "valor") || strings.Contains(s, "unidade") {
			cnt++
		}
	}
	return cnt >= 2
}

func mapSourceItems(maps []map[string]string) []model.SourceItem {
	items := make([]model.SourceItem, 0, len(maps))
	for _, rec := range maps {
		if looksLikeHeaderMap(rec) {
			continue
		}

		desc := strings.TrimSpace(rec[resolveKey(rec, descKeys)])
		if desc == "" {
			continue
		}
		qty, _ := utils.ParseFloatBR(rec[resolveKey(rec, qtyKeys)])
		price, _ := utils.ParseFloatBR(rec[resolveKey(rec, priceKeys)])

		items = append(items, model.SourceItem{
			Description:  desc,
			Qty:          qty,
			UnitPrice:    price,
			Unit:         strings.TrimSpace(rec[resolveKey(rec, unitKeys)]),
			Brand:        strings.TrimSpace(rec[resolveKey(rec, brandKeys)]),
			SupplierHint: strings.TrimSpace(rec[resolveKey(rec, supplierKeys)]),
		})
	}
	return items
}
