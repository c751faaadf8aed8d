package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UTF-8 text decoded as Latin-1 somewhere upstream. Keys are written as
// escapes because half of the second bytes are invisible (NBSP, soft hyphen,
// C1 controls). The repair runs before any other step.
var mojibake = strings.NewReplacer(
	"\u00c3\u00a1", "á",
	"\u00c3\u00a0", "à",
	"\u00c3\u00a2", "â",
	"\u00c3\u00a3", "ã",
	"\u00c3\u00a9", "é",
	"\u00c3\u00aa", "ê",
	"\u00c3\u00ad", "í",
	"\u00c3\u00b3", "ó",
	"\u00c3\u00b4", "ô",
	"\u00c3\u00b5", "õ",
	"\u00c3\u00ba", "ú",
	"\u00c3\u00a7", "ç",
	"\u00c3\u00b1", "ñ",
	"\u00c3\u0081", "Á",
	"\u00c3\u0082", "Â",
	"\u00c3\u0083", "Ã",
	"\u00c3\u0089", "É",
	"\u00c3\u008a", "Ê",
	"\u00c3\u008d", "Í",
	"\u00c3\u0093", "Ó",
	"\u00c3\u0094", "Ô",
	"\u00c3\u0095", "Õ",
	"\u00c3\u009a", "Ú",
	"\u00c3\u0087", "Ç",
	"\u00c2\u00ba", "º",
	"\u00c2\u00aa", "ª",
	"\u00c2\u00b0", "°",
)

// á→a, ç→c etc., applied after NFC so composed and decomposed input agree.
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// 0,5 → 0.5 (done before punctuation cleanup)
var decComma = regexp.MustCompile(`(\d),(\d)`)

// Units that glue onto a preceding number: "500 VA" → "500VA".
const unitWord = `KVA|VA|KW|W|GHZ|MHZ|HZ|TB|GB|MB|AH|KV|V|BTUS|BTU|RPM|DPI|POL|PORTAS|PORTA|METROS|METRO|MM|CM|M|ML|L|KG|G`

// GLUE: "500 VA" → "500VA" (iterated over the whole string)
var reAttachNumUnit = regexp.MustCompile(`\b(\d+(?:\.\d+)?)(\s*)(` + unitWord + `)\b`)

// "%" is not a word character, so the unit rule's trailing \b never fires on
// it; it gets its own pattern: "3.2  %" → "3.2%".
var reAttachPct = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*%`)

// Fixed-format codes whose internal spacing is noise: "CAT 6 E" → "CAT6E",
// "RJ 45" → "RJ45", "USB 3.0" → "USB3.0", "DDR 4" → "DDR4".
var codeGlue = []*regexp.Regexp{
	regexp.MustCompile(`\b(CAT)\s+(\d+)\b`),
	regexp.MustCompile(`\b(CAT\d+)\s+(E)\b`),
	regexp.MustCompile(`\b(RJ)\s+(\d+)\b`),
	regexp.MustCompile(`\b(USB)\s+(\d(?:\.\d)?)\b`),
	regexp.MustCompile(`\b(DDR)\s+(\d)\b`),
}

// Legal-entity suffixes stripped from supplier names, anchored at the end.
// Iterated so "X COMERCIO LTDA ME" loses both.
var reLegalSuffix = regexp.MustCompile(`\s+(LTDA|ME|EPP|EIRELI|S\.?A|S A|CIA)\.?\s*$`)

var punct = regexp.MustCompile(`[^\p{L}\p{N}\s.%]+`) // keep . and %

// Normalize canonicalizes a free-text name for comparison. Never fails;
// empty input yields "". Pure, no I/O.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	out := mojibake.Replace(s)
	out = norm.NFC.String(out)
	if folded, _, err := transform.String(deaccent, out); err == nil {
		out = folded
	}
	out = strings.ToUpper(out)
	out = decComma.ReplaceAllString(out, "$1.$2")
	out = collapseSpaces(punct.ReplaceAllString(out, " "))
	out = strings.Trim(out, ". ")
	out = attachNumberUnits(out)
	out = attachCodes(out)
	return strings.TrimSpace(out)
}

// NormalizeSupplier is Normalize plus legal-suffix stripping. "S/A" loses its
// slash in punctuation cleanup, hence the "S A" variant in the suffix table.
func NormalizeSupplier(s string) string {
	out := Normalize(s)
	for {
		next := strings.Trim(reLegalSuffix.ReplaceAllString(out, ""), ". ")
		if next == out {
			return out
		}
		out = next
	}
}

// DisplayName is the canonical stored form of a new entity name: mojibake
// repaired, uppercased, whitespace collapsed — accents and punctuation kept.
func DisplayName(s string) string {
	out := mojibake.Replace(s)
	out = norm.NFC.String(out)
	return collapseSpaces(strings.ToUpper(out))
}

// NormalizeKind picks the right flavor for an entity kind name. Supplier
// names additionally lose legal-entity suffixes.
func NormalizeKind(s string, supplier bool) string {
	if supplier {
		return NormalizeSupplier(s)
	}
	return Normalize(s)
}

// Iterated number+unit gluing ("500 VA 2 M" needs two passes on overlaps).
func attachNumberUnits(s string) string {
	prev := ""
	out := collapseSpaces(s)
	for out != prev {
		prev = out
		out = reAttachNumUnit.ReplaceAllString(out, "$1$3")
		out = reAttachPct.ReplaceAllString(out, "$1%")
		out = collapseSpaces(out)
	}
	return out
}

func attachCodes(s string) string {
	prev := ""
	out := s
	for out != prev {
		prev = out
		for _, re := range codeGlue {
			out = re.ReplaceAllString(out, "$1$2")
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
