package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Matrix functions used by the forward and backward passes.

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) *mat.Dense {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Add(m, n mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func TanhApply(_, _ int, v float64) float64 {
	return math.Tanh(v)
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// Used for logits -> probabilities in the CE loss.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	// stability: subtract max
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// ---------- Loss ----------

// CrossEntropyWithIndex takes already normalised probabilities and returns
// -ln p[gold] together with dL/dlogits = p - onehot(gold).
func CrossEntropyWithIndex(probs *mat.Dense, gold int) (float64, *mat.Dense) {
	r, c := probs.Dims()
	if c != 1 {
		panic("CrossEntropyWithIndex expects (r x 1) probability vector")
	}
	if gold < 0 || gold >= r {
		panic("CrossEntropyWithIndex: gold index out of range")
	}
	loss := -math.Log(probs.At(gold, 0))
	grad := mat.DenseCopyOf(probs)
	grad.Set(gold, 0, grad.At(gold, 0)-1.0)
	return loss, grad
}

// SampleCategorical draws an index with probability proportional to probs
// (r x 1). Weighted choice, not arg-max.
func SampleCategorical(probs *mat.Dense, src rand.Source) int {
	r, c := probs.Dims()
	if c != 1 {
		panic("SampleCategorical expects column vector")
	}
	w := make([]float64, r)
	for i := 0; i < r; i++ {
		w[i] = probs.At(i, 0)
	}
	return int(distuv.NewCategorical(w, src).Rand())
}
