package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdagradUpdateInPlace applies one Adagrad step to p using gradient g and
// the running sum of squared gradients mem:
//
//	mem += g*g
//	p   -= lr * g / sqrt(mem + eps)
//
// p and mem are mutated, g is read only.
func AdagradUpdateInPlace(p, g, mem *mat.Dense, lr, eps float64) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adagradUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := mem.Dims(); mr != pr || mc != pc {
		panic("adagradUpdateInPlace: mem shape mismatch")
	}
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := mem.At(i, j) + gij*gij
			mem.Set(i, j, mij)
			p.Set(i, j, p.At(i, j)-lr*gij/math.Sqrt(mij+eps))
		}
	}
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}
