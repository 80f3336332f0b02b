// Package types defines the data model shared by the scoring engine.
//
// This package contains:
//   - GroupSet: ordered candidate groups, flattened into one batch
//   - IndexMap: the half-open range every group occupies in the batch
//   - Distribution: normalized per-group scores
//   - Trace: provenance of every generated candidate
//   - InstructionMap: task-scoped instructions with a "default" fallback
//
// # Errors
//
// The error kinds of the engine live here so every package can return them:
//
//	if errors.Is(err, &types.ConfigurationError{}) {
//	    // request was rejected before reaching the backend
//	}
//
// BackendResponseError, DegenerateGroupError and NormalizationError carry the
// chunk, group and sums needed to diagnose a failure without re-running it.
package types
