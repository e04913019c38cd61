// Package preflight validates that noterag can run before starting
// operations.
//
// The package checks:
//   - Vault roots exist and are readable
//   - Data directory is writable
//   - Disk space at the data directory (minimum 100MB)
//   - Ollama reachability and installed models (embedding, judge)
//   - Answer gateway configuration
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
//
// Backend checks are non-critical: search degrades to keyword-only
// when Ollama is down, and answer synthesis is simply disabled without
// a gateway.
package preflight
