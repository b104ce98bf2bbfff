//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TestContext points tests at t.Context, which is canceled when the
// test finishes so goroutines holding it shut down with the test
// (Go 1.24).
func TestContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx := context.TODO()`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() in tests, it is canceled when the test completes (Go 1.24+)")
}

// TestEnv flags os.Setenv in tests. t.Setenv restores the variable on
// cleanup and fails the test if it runs in parallel, where the mutation
// would leak across tests.
func TestEnv(m dsl.Matcher) {
	m.Match(`os.Setenv($k, $v)`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Setenv($k, $v) in tests so the variable is restored on cleanup")
}

// TestTempDir flags manual temp directory handling in tests. t.TempDir
// creates a unique directory and removes it on cleanup.
func TestTempDir(m dsl.Matcher) {
	m.Match(
		`os.MkdirTemp("", $pattern)`,
		`os.MkdirTemp($dir, $pattern)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.TempDir() in tests, the directory is removed on cleanup")
}
