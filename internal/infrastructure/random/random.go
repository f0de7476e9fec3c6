// Package random provides the seeded source of draws used by the simulation.
package random

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// pcgSource adapts a PCG generator to the source interface of the gonum distributions.
type pcgSource struct {
	pcg    *rand.PCG
	stream uint64
}

func (p pcgSource) Uint64() uint64 { return p.pcg.Uint64() }

// Seed reseeds the generator on its original stream.
func (p pcgSource) Seed(seed uint64) { p.pcg.Seed(seed, p.stream) }

// Source implements ports.Random on a PCG generator. Count and waiting-time
// draws come from gonum's distuv samplers on the same stream. It is not safe
// for concurrent use; each node loop owns one Source.
type Source struct {
	rng *rand.Rand
	src pcgSource
}

// New returns a Source seeded with seed and a stream selector.
// Cooperating processes pass their rank as stream so their draws are independent.
func New(seed, stream uint64) *Source {
	src := pcgSource{pcg: rand.NewPCG(seed, stream), stream: stream}
	return &Source{rng: rand.New(src.pcg), src: src}
}

// Uniform returns a draw in [0,1).
func (s *Source) Uniform() float64 {
	return s.rng.Float64()
}

// Bernoulli returns true with probability p.
func (s *Source) Bernoulli(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.rng.Float64() < p
}

// Poisson returns a Poisson-distributed count with the given mean.
func (s *Source) Poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	return int(distuv.Poisson{Lambda: mean, Src: s.src}.Rand())
}

// Binomial returns the number of successes in n trials of probability p.
func (s *Source) Binomial(n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: p, Src: s.src}.Rand())
}

// Exponential returns a waiting time for the given rate. A non-positive rate never fires.
func (s *Source) Exponential(rate float64) float64 {
	if rate <= 0 {
		return math.Inf(1)
	}
	return distuv.Exponential{Rate: rate, Src: s.src}.Rand()
}

// Weibull returns scale * (-ln U)^heterogeneity, a Weibull draw of shape
// 1/heterogeneity. A heterogeneity of zero yields the scale itself.
func (s *Source) Weibull(scale, heterogeneity float64) float64 {
	if scale <= 0 {
		return 0
	}
	if heterogeneity <= 0 {
		return scale
	}
	return distuv.Weibull{K: 1 / heterogeneity, Lambda: scale, Src: s.src}.Rand()
}

// IntN returns a uniform integer in [0,n).
func (s *Source) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return s.rng.IntN(n)
}
