package rnn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/mat"
)

var ErrUnknownSymbol = errors.New("symbol id outside vocabulary")

// Sample generates n ids starting from hidden state h and seed id. Each id
// is drawn from the predicted distribution and fed back as the next input.
// h is not modified; nil means the zero state.
func Sample(w *Weights, h *mat.Dense, seed, n int, src rand.Source) ([]int, error) {
	if seed < 0 || seed >= w.VocabSize() {
		return nil, fmt.Errorf("%w: seed %d, vocab %d", ErrUnknownSymbol, seed, w.VocabSize())
	}
	if h == nil {
		h = mat.NewDense(w.HiddenSize(), 1, nil)
	}
	ids := make([]int, 0, n)
	id := seed
	for range n {
		var probs *mat.Dense
		h, probs = StepForward(w, id, h)
		id = utils.SampleCategorical(probs, src)
		ids = append(ids, id)
	}
	return ids, nil
}
