// Package shared holds code used across packages that belongs to no domain.
//
// The testutil subpackage provides the capturing slog handler used by tests
// to assert on log output, plus CSV fixtures in the retail sales layout:
//
//	logger, logs := testutil.NewTestLogger(t)
//	path := testutil.WriteTempFile(t, "sales.csv", []byte(testutil.SalesCSV(";")))
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelInfo, "table loaded")
package shared
