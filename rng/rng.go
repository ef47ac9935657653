// Package rng is a small, fast pseudo-random generator with explicitly owned
// state. It's a xorshift32 that periodically reseeds from a slower Source
// (e.g. a hardware generator).
package rng

import "math"

// DefaultSeed is used when seed is 0
const DefaultSeed = 0x12345678

// Source is a slow, good quality source of random numbers
type Source interface {
	Uint32() uint32
}

// SourceFunc adapts a function to Source
type SourceFunc func() uint32

func (f SourceFunc) Uint32() uint32 {
	return f()
}

// Xorshift32 is not safe for concurrent use; give each goroutine its own
type Xorshift32 struct {
	state uint32
	src   Source
}

// New creates a generator. src can be nil, in which case it never reseeds.
func New(seed uint32, src Source) *Xorshift32 {
	if seed == 0 {
		seed = DefaultSeed
	}
	return &Xorshift32{state: seed, src: src}
}

// Uint32 returns next value. Reseeds from Source roughly every 256 calls.
func (g *Xorshift32) Uint32() uint32 {
	if g.state&0xFF == 0 {
		if g.src != nil {
			g.state = g.src.Uint32()
		}
		// xorshift is stuck at 0
		if g.state == 0 {
			g.state = 1
		}
	}
	x := g.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	g.state = x
	return x
}

func (g *Xorshift32) uint64() uint64 {
	return uint64(g.Uint32()) | uint64(g.Uint32())<<32
}

// Randint returns a value in [min, max]. Panics if min > max.
func (g *Xorshift32) Randint(min uint64, max uint64) uint64 {
	if min > max {
		panic("rng: min > max")
	}
	if min == max {
		return min
	}
	rng := max - min + 1
	// 0 means the full 64-bit range
	if rng == 0 {
		return g.uint64()
	}
	// power of 2: mask
	if rng&(rng-1) == 0 {
		mask := rng - 1
		if rng <= 1<<32 {
			return min + uint64(g.Uint32())&mask
		}
		return min + g.uint64()&mask
	}
	// rejection sampling to avoid modulo bias
	if rng <= 1<<32 {
		threshold := ((1 << 32) / rng) * rng
		for {
			v := uint64(g.Uint32())
			if v < threshold {
				return min + v%rng
			}
		}
	}
	threshold := (math.MaxUint64 / rng) * rng
	for {
		v := g.uint64()
		if v < threshold {
			return min + v%rng
		}
	}
}

// Intn returns a value in [0, n). Panics if n <= 0.
func (g *Xorshift32) Intn(n int) int {
	if n <= 0 {
		panic("rng: n <= 0")
	}
	return int(g.Randint(0, uint64(n-1)))
}

// Float64 returns a value in [0.0, 1.0)
func (g *Xorshift32) Float64() float64 {
	// 32 random bits in the mantissa of a number in [1.0, 2.0)
	bits := uint64(0x3FF0000000000000) | uint64(g.Uint32())<<20
	return math.Float64frombits(bits) - 1.0
}

// Float64Range returns a value in [min, max)
func (g *Xorshift32) Float64Range(min float64, max float64) float64 {
	return min + (max-min)*g.Float64()
}

// Bool returns true with 50% probability
func (g *Xorshift32) Bool() bool {
	return g.Uint32()&1 != 0
}

// BoolWithProbability returns true with probability p
func (g *Xorshift32) BoolWithProbability(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	threshold := uint32(p * (1 << 32))
	return g.Uint32() < threshold
}

// Bytes fills d with random bytes
func (g *Xorshift32) Bytes(d []byte) {
	for i := 0; i < len(d); i += 4 {
		v := g.Uint32()
		for j := 0; j < 4 && i+j < len(d); j++ {
			d[i+j] = byte(v >> (8 * j))
		}
	}
}
