package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomNormal returns 'size' samples from N(0, sigma^2) drawn from src.
func RandomNormal(size int, sigma float64, src rand.Source) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// Helper functions

func OneHot(n, idx int) *mat.Dense {
	v := make([]float64, n)
	if idx >= 0 && idx < n {
		v[idx] = 1.0
	}
	return mat.NewDense(n, 1, v)
}

// MatrixNorm is the Frobenius norm.
func MatrixNorm(m *mat.Dense) float64 {
	return mat.Norm(m, 2)
}

// debugging and clipping.

// ClipInPlace clamps every element of every matrix to [lo, hi].
func ClipInPlace(lo, hi float64, ms ...*mat.Dense) {
	for _, m := range ms {
		if m == nil {
			continue
		}
		m.Apply(func(_, _ int, v float64) float64 {
			return math.Max(lo, math.Min(hi, v))
		}, m)
	}
}

// AllFinite reports whether no element is NaN or ±Inf.
func AllFinite(ms ...*mat.Dense) bool {
	for _, m := range ms {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := m.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
		}
	}
	return true
}
