package stats

import (
	"math"
	"sort"
)

// P2Quantile estimates a single quantile with the P² algorithm (Jain and
// Chlamtac, 1985) using five markers and no stored samples.
type P2Quantile struct {
	p     float64
	count int
	init  []float64

	q  [5]float64 // marker heights
	n  [5]float64 // actual marker positions
	np [5]float64 // desired marker positions
	dn [5]float64 // desired position increments
}

// NewP2Quantile returns an estimator for quantile p in (0, 1).
func NewP2Quantile(p float64) *P2Quantile {
	return &P2Quantile{
		p:    p,
		init: make([]float64, 0, 5),
		dn:   [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// Add observes x.
func (e *P2Quantile) Add(x float64) {
	e.count++
	if e.count <= 5 {
		e.init = append(e.init, x)
		if e.count == 5 {
			sort.Float64s(e.init)
			for i := 0; i < 5; i++ {
				e.q[i] = e.init[i]
				e.n[i] = float64(i + 1)
			}
			p := e.p
			e.np = [5]float64{1, 1 + 2*p, 1 + 4*p, 3 + 2*p, 5}
		}
		return
	}

	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x < e.q[1]:
		k = 0
	case x < e.q[2]:
		k = 1
	case x < e.q[3]:
		k = 2
	case x <= e.q[4]:
		k = 3
	default:
		e.q[4] = x
		k = 3
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.np[i] += e.dn[i]
	}

	for i := 1; i <= 3; i++ {
		d := e.np[i] - e.n[i]
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			s := math.Copysign(1, d)
			qp := e.parabolic(i, s)
			if e.q[i-1] < qp && qp < e.q[i+1] {
				e.q[i] = qp
			} else {
				e.q[i] = e.linear(i, s)
			}
			e.n[i] += s
		}
	}
}

func (e *P2Quantile) parabolic(i int, d float64) float64 {
	return e.q[i] + d/(e.n[i+1]-e.n[i-1])*
		((e.n[i]-e.n[i-1]+d)*(e.q[i+1]-e.q[i])/(e.n[i+1]-e.n[i])+
			(e.n[i+1]-e.n[i]-d)*(e.q[i]-e.q[i-1])/(e.n[i]-e.n[i-1]))
}

func (e *P2Quantile) linear(i int, d float64) float64 {
	j := i + int(d)
	return e.q[i] + d*(e.q[j]-e.q[i])/(e.n[j]-e.n[i])
}

// Value returns the current estimate. With fewer than five observations it
// falls back to the nearest-rank quantile of the samples seen so far.
func (e *P2Quantile) Value() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		s := append([]float64(nil), e.init...)
		sort.Float64s(s)
		idx := int(math.Ceil(e.p*float64(len(s)))) - 1
		if idx < 0 {
			idx = 0
		}
		return s[idx]
	}
	return e.q[2]
}
