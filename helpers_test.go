package xisort

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	randv2 "math/rand/v2"
	"os"
	"testing"

	"github.com/xisort/xisort/internal/keycodec"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

func newTestRNG(t testing.TB) *randv2.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return randv2.New(randv2.NewPCG(testSeed1^s1, testSeed2^s2))
}

func testContext() context.Context {
	return context.Background()
}

func qnan(payload uint64) float64 {
	return math.Float64frombits(0x7FF8000000000000 | payload)
}

func negQNaN(payload uint64) float64 {
	return math.Float64frombits(0xFFF8000000000000 | payload)
}

func negZero() float64 {
	return math.Copysign(0, -1)
}

// randomDoubles draws values from the full bit-pattern space, so the stream
// includes subnormals, infinities, and NaNs with random payloads.
func randomDoubles(rng *randv2.Rand, n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Float64frombits(rng.Uint64())
	}
	return vals
}

// randomFinite draws uniform finite values in [-1, 1).
func randomFinite(rng *randv2.Rand, n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = rng.Float64()*2 - 1
	}
	return vals
}

// checkSorted fails unless keys are non-decreasing across vals.
func checkSorted(t *testing.T, vals []float64) {
	t.Helper()
	for i := 1; i < len(vals); i++ {
		if keycodec.Encode(vals[i-1]) > keycodec.Encode(vals[i]) {
			t.Fatalf("output not sorted at %d: 0x%016X above 0x%016X",
				i, math.Float64bits(vals[i-1]), math.Float64bits(vals[i]))
		}
	}
}

// bitMultiset counts values by exact bit pattern.
func bitMultiset(vals []float64) map[uint64]int {
	m := make(map[uint64]int, len(vals))
	for _, v := range vals {
		m[math.Float64bits(v)]++
	}
	return m
}

// checkPermutation fails unless got is a bitwise permutation of want.
func checkPermutation(t *testing.T, want, got []float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("length changed: want %d, got %d", len(want), len(got))
	}
	wm, gm := bitMultiset(want), bitMultiset(got)
	for bits, n := range wm {
		if gm[bits] != n {
			t.Fatalf("multiset mismatch for 0x%016X: want %d, got %d", bits, n, gm[bits])
		}
	}
}

// bitsEqual reports whether two slices are bitwise identical element-wise.
func bitsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
}

// writeValueFile writes vals as a packed little-endian binary64 file.
func writeValueFile(t *testing.T, path string, vals []float64) {
	t.Helper()
	raw := make([]byte, len(vals)*elemSize)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[i*elemSize:], math.Float64bits(v))
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write value file: %v", err)
	}
}

// readValueFile decodes a packed little-endian binary64 file.
func readValueFile(t *testing.T, path string) []float64 {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read value file: %v", err)
	}
	if len(raw)%elemSize != 0 {
		t.Fatalf("value file %s has %d bytes, not a multiple of %d", path, len(raw), elemSize)
	}
	vals := make([]float64, len(raw)/elemSize)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*elemSize:]))
	}
	return vals
}

// scratchLeftovers lists xisort_run_*.bin files remaining in dir.
func scratchLeftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	var left []string
	for _, e := range entries {
		name := e.Name()
		if len(name) > 11 && name[:11] == "xisort_run_" {
			left = append(left, name)
		}
	}
	return left
}
