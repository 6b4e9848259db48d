package rnn

import (
	"math/rand/v2"

	"github.com/manningwu07/charRNN/optimizations"
	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/mat"
)

// Weights groups the five tensors of a single-layer tanh RNN. The same
// layout is used for parameters, gradients and Adagrad memory.
type Weights struct {
	Wxh *mat.Dense // input to hidden (H x V)
	Whh *mat.Dense // hidden to hidden (H x H)
	Why *mat.Dense // hidden to output (V x H)
	Bh  *mat.Dense // hidden bias (H x 1)
	By  *mat.Dense // output bias (V x 1)
}

// Tensors returns the five tensors in a fixed order: Wxh, Whh, Why, Bh, By.
func (w *Weights) Tensors() []*mat.Dense {
	return []*mat.Dense{w.Wxh, w.Whh, w.Why, w.Bh, w.By}
}

func (w *Weights) HiddenSize() int {
	r, _ := w.Whh.Dims()
	return r
}

func (w *Weights) VocabSize() int {
	r, _ := w.Why.Dims()
	return r
}

// NewWeights allocates zero tensors for the given sizes.
func NewWeights(hidden, vocab int) *Weights {
	return &Weights{
		Wxh: mat.NewDense(hidden, vocab, nil),
		Whh: mat.NewDense(hidden, hidden, nil),
		Why: mat.NewDense(vocab, hidden, nil),
		Bh:  mat.NewDense(hidden, 1, nil),
		By:  mat.NewDense(vocab, 1, nil),
	}
}

func zerosLike(w *Weights) *Weights {
	return &Weights{
		Wxh: optimizations.ZerosLike(w.Wxh),
		Whh: optimizations.ZerosLike(w.Whh),
		Why: optimizations.ZerosLike(w.Why),
		Bh:  optimizations.ZerosLike(w.Bh),
		By:  optimizations.ZerosLike(w.By),
	}
}

// Clone deep-copies every tensor.
func (w *Weights) Clone() *Weights {
	return &Weights{
		Wxh: mat.DenseCopyOf(w.Wxh),
		Whh: mat.DenseCopyOf(w.Whh),
		Why: mat.DenseCopyOf(w.Why),
		Bh:  mat.DenseCopyOf(w.Bh),
		By:  mat.DenseCopyOf(w.By),
	}
}

// Store owns the parameters and their Adagrad memory. One Store per
// training stream; it is not safe for concurrent use.
type Store struct {
	Params *Weights
	Mem    *Weights
}

// NewStore draws every weight from N(0, scale^2) and zeroes biases and
// memory.
func NewStore(hidden, vocab int, scale float64, src rand.Source) *Store {
	p := &Weights{
		Wxh: mat.NewDense(hidden, vocab, utils.RandomNormal(hidden*vocab, scale, src)),
		Whh: mat.NewDense(hidden, hidden, utils.RandomNormal(hidden*hidden, scale, src)),
		Why: mat.NewDense(vocab, hidden, utils.RandomNormal(vocab*hidden, scale, src)),
		Bh:  mat.NewDense(hidden, 1, nil),
		By:  mat.NewDense(vocab, 1, nil),
	}
	return &Store{Params: p, Mem: zerosLike(p)}
}

// Update applies Adagrad once per tensor, each with its own memory.
func (s *Store) Update(grads *Weights, lr, eps float64) {
	ps, gs, ms := s.Params.Tensors(), grads.Tensors(), s.Mem.Tensors()
	for i := range ps {
		optimizations.AdagradUpdateInPlace(ps[i], gs[i], ms[i], lr, eps)
	}
}

// Model is the hand-derived training path: Step followed by Store.Update.
type Model struct {
	Store        *Store
	LearningRate float64
	Eps          float64
	Clip         float64
}

func NewModel(store *Store, lr, eps, clip float64) *Model {
	return &Model{Store: store, LearningRate: lr, Eps: eps, Clip: clip}
}

func (m *Model) HiddenSize() int { return m.Store.Params.HiddenSize() }
func (m *Model) VocabSize() int { return m.Store.Params.VocabSize() }
func (m *Model) Weights() *Weights { return m.Store.Params }

func (m *Model) TrainWindow(win Window, hprev *mat.Dense) (float64, *mat.Dense, error) {
	res, err := Step(m.Store.Params, win, hprev, m.Clip)
	if err != nil {
		return 0, nil, err
	}
	m.Store.Update(res.Grads, m.LearningRate, m.Eps)
	return res.Loss, res.Hidden, nil
}
