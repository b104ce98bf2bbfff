//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// MinMaxBuiltins rewrites hand-rolled clamping to the min and max
// builtins (Go 1.21).
//
//	if v > limit { v = limit }  ->  v = min(v, limit)
func MinMaxBuiltins(m dsl.Matcher) {
	m.Match(`if $v > $limit { $v = $limit }`).
		Report("use $v = min($v, $limit) (Go 1.21+)").
		Suggest("$v = min($v, $limit)")

	m.Match(`if $v < $limit { $v = $limit }`).
		Report("use $v = max($v, $limit) (Go 1.21+)").
		Suggest("$v = max($v, $limit)")

	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b) instead of converting through math.Min (Go 1.21+)").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b) instead of converting through math.Max (Go 1.21+)").
		Suggest("max($a, $b)")
}

// InterfaceAny rewrites interface{} to any (Go 1.18).
func InterfaceAny(m dsl.Matcher) {
	m.Match(`map[string]interface{}{$*elems}`).
		Report("use map[string]any").
		Suggest("map[string]any{$elems}")

	m.Match(`[]interface{}{$*elems}`).
		Report("use []any").
		Suggest("[]any{$elems}")
}
