package match

import (
	"regexp"
	"sort"
	"strings"
)

// SpecSet holds the technical-specification tokens of a description. It is a
// matching gate: two non-empty, unequal sets veto a match no matter how
// similar the names are. An empty set on either side is "no constraint".
type SpecSet map[string]struct{}

// Ordered rules. Multi-letter units come before their single-letter prefixes
// so "500MHZ" is not read as "500M" + noise.
var specRules = []*regexp.Regexp{
	regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:KVA|VA|KW|W|GHZ|MHZ|HZ|TB|GB|MB|AH|KV|V|BTUS?|RPM|DPI)\b`),
	regexp.MustCompile(`\b\d+\s*PORTAS?\b`),
	regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:METROS?|MM|CM|M|POL)\b`),
	regexp.MustCompile(`\b\d+(?:\.\d+)?"`),
	regexp.MustCompile(`\bDDR\s*\d\b`),
	regexp.MustCompile(`\bCAT\s*\d+\s*E?\b`),
	regexp.MustCompile(`\bUSB\s*\d(?:\s*\.\s*\d)?\b`),
	regexp.MustCompile(`\bRJ\s*\d+\b`),
	regexp.MustCompile(`\b(?:I[357]|RYZEN\s*[3579])\s*-?\s*\d{3,5}[A-Z]{0,2}\b`),
}

var specSpace = regexp.MustCompile(`\s+`)

// ExtractSpecs pulls technical tokens (capacities, voltages, ports, connector
// codes) out of a description. Matches are collected with internal whitespace
// stripped, so "500 VA" and "500VA" yield the same token.
func ExtractSpecs(text string) SpecSet {
	set := make(SpecSet)
	if text == "" {
		return set
	}
	up := strings.ToUpper(mojibake.Replace(text))
	up = decComma.ReplaceAllString(up, "$1.$2")
	for _, re := range specRules {
		for _, m := range re.FindAllString(up, -1) {
			set[specSpace.ReplaceAllString(m, "")] = struct{}{}
		}
	}
	return set
}

// StripSpecTokens drops tokens that are themselves spec tokens from a
// normalized name. The similarity tier compares only the descriptive
// remainder: the spec gate has already adjudicated the technical tokens, and
// leaving them in would drag the score of "CADO DE REDE UTP CAT5E" vs
// "CABO DE REDE UTP" below the threshold even though the gate allows the pair.
func StripSpecTokens(name string) string {
	fields := strings.Fields(name)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		set := ExtractSpecs(f)
		if _, ok := set[f]; ok && len(set) == 1 {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func (s SpecSet) Empty() bool { return len(s) == 0 }

func (s SpecSet) Equal(o SpecSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Compatible reports whether the sets allow a match: both empty, one empty,
// or equal. Only two non-empty unequal sets are a hard mismatch.
func (s SpecSet) Compatible(o SpecSet) bool {
	if s.Empty() || o.Empty() {
		return true
	}
	return s.Equal(o)
}

func (s SpecSet) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
