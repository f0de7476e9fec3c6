// Package mocks provides test doubles for the domain ports.
package mocks

// Random is a scripted ports.Random. Each draw consumes the next queued value
// of its kind and falls back to the Default* value once the queue is empty.
type Random struct {
	Uniforms     []float64
	Poissons     []int
	Binomials    []int
	Exponentials []float64
	Weibulls     []float64
	Ints         []int

	DefaultUniform     float64
	DefaultExponential float64
	DefaultWeibull     float64

	PoissonMeans []float64
	BinomialArgs []BinomialCall
}

// BinomialCall records the arguments of one Binomial draw.
type BinomialCall struct {
	N int
	P float64
}

// NewRandom creates a scripted Random with neutral defaults.
func NewRandom() *Random {
	return &Random{
		DefaultUniform:     0.5,
		DefaultExponential: 1e9,
		DefaultWeibull:     1.0,
	}
}

// Uniform returns the next scripted uniform draw.
func (m *Random) Uniform() float64 {
	if len(m.Uniforms) == 0 {
		return m.DefaultUniform
	}
	v := m.Uniforms[0]
	m.Uniforms = m.Uniforms[1:]
	return v
}

// Bernoulli compares the next uniform draw against p.
func (m *Random) Bernoulli(p float64) bool {
	return m.Uniform() < p
}

// Poisson returns the next scripted count and records the mean.
func (m *Random) Poisson(mean float64) int {
	m.PoissonMeans = append(m.PoissonMeans, mean)
	if len(m.Poissons) == 0 {
		return 0
	}
	v := m.Poissons[0]
	m.Poissons = m.Poissons[1:]
	return v
}

// Binomial returns the next scripted count and records the arguments.
func (m *Random) Binomial(n int, p float64) int {
	m.BinomialArgs = append(m.BinomialArgs, BinomialCall{N: n, P: p})
	if len(m.Binomials) == 0 {
		return 0
	}
	v := m.Binomials[0]
	m.Binomials = m.Binomials[1:]
	if v > n {
		return n
	}
	return v
}

// Exponential returns the next scripted waiting time.
func (m *Random) Exponential(_ float64) float64 {
	if len(m.Exponentials) == 0 {
		return m.DefaultExponential
	}
	v := m.Exponentials[0]
	m.Exponentials = m.Exponentials[1:]
	return v
}

// Weibull returns the next scripted draw.
func (m *Random) Weibull(_, _ float64) float64 {
	if len(m.Weibulls) == 0 {
		return m.DefaultWeibull
	}
	v := m.Weibulls[0]
	m.Weibulls = m.Weibulls[1:]
	return v
}

// IntN returns the next scripted integer modulo n.
func (m *Random) IntN(n int) int {
	if len(m.Ints) == 0 || n <= 0 {
		return 0
	}
	v := m.Ints[0]
	m.Ints = m.Ints[1:]
	return v % n
}
