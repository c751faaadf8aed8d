package match

import "sort"

// Index is a trigram inverted index over normalized names. The consolidator
// uses it to prune pairwise comparison of the whole catalog: only names
// sharing at least one trigram with the probe are scored.
type Index struct {
	inv map[string]map[string]struct{} // trigram -> set(normalized name)
}

func NewIndex() *Index {
	return &Index{inv: make(map[string]map[string]struct{})}
}

func (idx *Index) Add(norm string) {
	if norm == "" {
		return
	}
	for g := range trigramSet(norm) {
		bucket, ok := idx.inv[g]
		if !ok {
			bucket = make(map[string]struct{})
			idx.inv[g] = bucket
		}
		bucket[norm] = struct{}{}
	}
}

// Candidates returns every indexed name sharing a trigram with norm, sorted
// for deterministic iteration.
func (idx *Index) Candidates(norm string) []string {
	if norm == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for g := range trigramSet(norm) {
		if bucket, ok := idx.inv[g]; ok {
			for nn := range bucket {
				seen[nn] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for nn := range seen {
		out = append(out, nn)
	}
	sort.Strings(out)
	return out
}

func trigramSet(s string) map[string]struct{} {
	m := make(map[string]struct{})
	if s == "" {
		return m
	}
	p := " " + s + " "
	r := []rune(p)
	if len(r) < 3 {
		m[p] = struct{}{}
		return m
	}
	for i := 0; i <= len(r)-3; i++ {
		m[string(r[i:i+3])] = struct{}{}
	}
	return m
}
