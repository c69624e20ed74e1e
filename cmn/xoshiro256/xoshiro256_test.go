package xoshiro256_test

import (
	"testing"

	"github.com/NVIDIA/swarmcore/cmn/xoshiro256"
)

func TestHashDeterministic(t *testing.T) {
	for _, in := range []uint64{0, 1, 4573842, 1 << 63} {
		a := xoshiro256.Hash(in)
		b := xoshiro256.Hash(in)
		if a != b {
			t.Fatalf("Hash(%d) not deterministic: %d vs %d", in, a, b)
		}
	}
}

func TestHashAvalanche(t *testing.T) {
	h0 := xoshiro256.Hash(0)
	h1 := xoshiro256.Hash(1)
	if h0 == h1 {
		t.Fatalf("adjacent inputs hashed to the same value")
	}
}

func TestSourceAdvances(t *testing.T) {
	src := xoshiro256.New(42)
	seen := make(map[uint64]bool)
	for i := 0; i < 16; i++ {
		v := src.Next()
		if seen[v] {
			t.Fatalf("Source repeated a value after only %d draws", i)
		}
		seen[v] = true
	}
}

func TestIntnBounds(t *testing.T) {
	src := xoshiro256.New(7)
	for i := 0; i < 1000; i++ {
		v := src.Intn(5)
		if v < 0 || v >= 5 {
			t.Fatalf("Intn(5) out of range: %d", v)
		}
	}
}

func TestFloat64Bounds(t *testing.T) {
	src := xoshiro256.New(99)
	for i := 0; i < 1000; i++ {
		v := src.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64 out of range: %v", v)
		}
	}
}
