package keycodec

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	randv2 "math/rand/v2"
	"testing"
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

func qnan(payload uint64) float64 {
	return math.Float64frombits(0x7FF8000000000000 | payload)
}

func negQNaN(payload uint64) float64 {
	return math.Float64frombits(0xFFF8000000000000 | payload)
}

// snan builds a signaling NaN: exponent all ones, quiet bit clear, non-zero
// payload.
func snan(payload uint64) float64 {
	return math.Float64frombits(0x7FF0000000000000 | (payload & 0x0007FFFFFFFFFFFF) | 1)
}

// refTotalOrderLess is an independent rule-based rendering of the IEEE-754
// total order, used to cross-check the key transform.
func refTotalOrderLess(a, b float64) bool {
	ua, ub := math.Float64bits(a), math.Float64bits(b)
	if ua == ub {
		return false
	}
	negA := ua>>63 != 0
	negB := ub>>63 != 0
	switch {
	case negA && !negB:
		return true
	case !negA && negB:
		return false
	case negA:
		// Both negative: bigger magnitude bits sort first.
		return ua > ub
	default:
		return ua < ub
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	patterns := []uint64{
		0x0000000000000000, // +0
		0x8000000000000000, // -0
		0x7FF0000000000000, // +Inf
		0xFFF0000000000000, // -Inf
		0x7FF8000000000001, // qNaN payload 1
		0xFFF8000000000001, // -qNaN payload 1
		0x7FF0000000000001, // sNaN payload 1
		0x0000000000000001, // smallest subnormal
		0x8000000000000001, // smallest negative subnormal
		0x7FEFFFFFFFFFFFFF, // largest finite
		0xFFEFFFFFFFFFFFFF, // most negative finite
		0x3FF0000000000000, // 1.0
	}
	for _, bits := range patterns {
		v := math.Float64frombits(bits)
		got := math.Float64bits(Decode(Encode(v)))
		if got != bits {
			t.Errorf("round trip of 0x%016X: got 0x%016X", bits, got)
		}
	}

	rng := newTestRNG(t)
	for range 100000 {
		bits := rng.Uint64()
		v := math.Float64frombits(bits)
		if got := math.Float64bits(Decode(Encode(v))); got != bits {
			t.Fatalf("round trip of 0x%016X: got 0x%016X", bits, got)
		}
	}
}

func TestEncodeTotalOrderChain(t *testing.T) {
	// Strictly ascending under the IEEE-754 total order.
	chain := []float64{
		negQNaN(0x7FFFFFFFFFFFF), // -NaN, max payload: global minimum
		negQNaN(0x1),
		math.Inf(-1),
		-math.MaxFloat64,
		-5.0,
		-1.0,
		-math.SmallestNonzeroFloat64,
		math.Copysign(0, -1),
		0.0,
		math.SmallestNonzeroFloat64,
		1.0,
		5.0,
		math.MaxFloat64,
		math.Inf(1),
		snan(0x1),
		qnan(0x1),
		qnan(0x7FFFFFFFFFFFF),
	}
	for i := 1; i < len(chain); i++ {
		a, b := chain[i-1], chain[i]
		if Encode(a) >= Encode(b) {
			t.Errorf("chain[%d]: key(0x%016X) = 0x%016X not below key(0x%016X) = 0x%016X",
				i, math.Float64bits(a), Encode(a), math.Float64bits(b), Encode(b))
		}
	}
}

func TestEncodeMonotoneAgainstReference(t *testing.T) {
	rng := newTestRNG(t)
	for range 200000 {
		a := math.Float64frombits(rng.Uint64())
		b := math.Float64frombits(rng.Uint64())
		if refTotalOrderLess(a, b) != (Encode(a) < Encode(b)) {
			t.Fatalf("order disagreement for 0x%016X vs 0x%016X",
				math.Float64bits(a), math.Float64bits(b))
		}
	}
}

func TestEncodeInjective(t *testing.T) {
	// Distinct bit patterns must yield distinct keys; -0 and +0 are the
	// canonical pair to get wrong.
	if Encode(0.0) == Encode(math.Copysign(0, -1)) {
		t.Error("keys of +0 and -0 collide")
	}
	if Encode(qnan(1)) == Encode(qnan(2)) {
		t.Error("keys of distinct NaN payloads collide")
	}
}

func TestLess(t *testing.T) {
	if !Less(math.Copysign(0, -1), 0.0) {
		t.Error("-0 should precede +0")
	}
	if Less(0.0, math.Copysign(0, -1)) {
		t.Error("+0 should not precede -0")
	}
	if !Less(math.Inf(1), qnan(1)) {
		t.Error("+Inf should precede +NaN")
	}
	if !Less(negQNaN(1), math.Inf(-1)) {
		t.Error("-NaN should precede -Inf")
	}
}
