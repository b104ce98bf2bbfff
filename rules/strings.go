//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// SplitSeqIteration flags range loops over strings.Split where the
// slice is never kept. strings.SplitSeq iterates without allocating
// the intermediate slice (Go 1.24).
//
//	for _, line := range strings.Split(s, "\n") { ... }
//	for line := range strings.SplitSeq(s, "\n") { ... }
func SplitSeqIteration(m dsl.Matcher) {
	m.Match(`for _, $v := range strings.Split($s, $sep) { $*body }`).
		Report("use strings.SplitSeq($s, $sep) when the slice itself is not needed (Go 1.24+)")

	m.Match(`for _, $v := range strings.Fields($s) { $*body }`).
		Report("use strings.FieldsSeq($s) when the slice itself is not needed (Go 1.24+)")
}

// CutPrefixPair collapses the HasPrefix check plus TrimPrefix call into
// strings.CutPrefix (Go 1.20).
//
//	if strings.HasPrefix(s, p) {
//	    v := strings.TrimPrefix(s, p)
//	    ...
//	}
func CutPrefixPair(m dsl.Matcher) {
	m.Match(
		`if strings.HasPrefix($s, $p) { $v := strings.TrimPrefix($s, $p); $*body }`,
		`if strings.HasPrefix($s, $p) { $v = strings.TrimPrefix($s, $p); $*body }`,
	).
		Report("use strings.CutPrefix($s, $p) instead of the HasPrefix/TrimPrefix pair (Go 1.20+)")

	m.Match(
		`if strings.HasSuffix($s, $p) { $v := strings.TrimSuffix($s, $p); $*body }`,
		`if strings.HasSuffix($s, $p) { $v = strings.TrimSuffix($s, $p); $*body }`,
	).
		Report("use strings.CutSuffix($s, $p) instead of the HasSuffix/TrimSuffix pair (Go 1.20+)")
}

// ContainsOverIndex rewrites Index comparisons that only test presence.
//
//	strings.Index(s, sub) != -1  ->  strings.Contains(s, sub)
func ContainsOverIndex(m dsl.Matcher) {
	m.Match(`strings.Index($s, $sub) != -1`, `strings.Index($s, $sub) >= 0`).
		Report("use strings.Contains($s, $sub)").
		Suggest("strings.Contains($s, $sub)")

	m.Match(`strings.Index($s, $sub) == -1`).
		Report("use !strings.Contains($s, $sub)").
		Suggest("!strings.Contains($s, $sub)")
}
