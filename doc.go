// Package xisort sorts sequences of IEEE-754 binary64 values under the
// IEEE-754-2019 total order, which distinguishes -0 from +0, orders NaNs by
// payload, and places the infinities at the extremes of the finite range.
//
// Two regimes are supported: an in-memory stable merge sort used when the
// input fits within the configured memory budget, and an external merge sort
// that spills sorted runs to scratch files and recombines them with a k-way
// heap merge, keeping resident memory bounded.
//
// # Basic Usage
//
// Sorting a slice in place:
//
//	if err := xisort.Sort(ctx, data); err != nil {
//	    log.Fatal(err)
//	}
//
// Sorting a file of packed little-endian doubles:
//
//	err := xisort.SortFile(ctx, "input.bin", "output.bin",
//	    xisort.WithExternal(),
//	    xisort.WithMemLimit(64<<20))
//
// # Determinism
//
// The output is a pure function of the input bytes and the configuration.
// Equal-keyed elements are ordered by original position in memory and by run
// index on disk, so parallel scheduling never changes the result.
//
// # Package Structure
//
//   - Public API: sort.go (Sort, SortFile), options.go (Option, With*)
//   - In-memory core: mergesort.go (record, stable fork-join merge sort)
//   - External pipeline: run.go (run generation), merge.go, heap.go (k-way merge)
//   - Diagnostics: trace.go (Trace, the phi segment accumulator)
//   - Key transform: internal/keycodec (order-preserving float <-> uint64)
//   - Platform: fallocate_*.go, fadvise_*.go (scratch file optimizations)
package xisort
