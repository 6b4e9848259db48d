package rnn

import (
	"errors"
	"fmt"
	"math"

	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/mat"
)

var ErrBadWindow = errors.New("malformed training window")

// Window is one training example: Targets[t] is the symbol following Inputs[t].
type Window struct {
	Inputs  []int
	Targets []int
}

// WindowAt slices the window starting at cursor p. The caller guarantees
// p+seqLen+1 <= len(ids).
func WindowAt(ids []int, p, seqLen int) Window {
	return Window{Inputs: ids[p : p+seqLen], Targets: ids[p+1 : p+seqLen+1]}
}

// StepState is the forward cache of one time step.
type StepState struct {
	X      *mat.Dense // one-hot input (V x 1)
	H      *mat.Dense // hidden state after this step (H x 1)
	Logits *mat.Dense // unnormalised log probabilities (V x 1)
	Probs  *mat.Dense // softmax(Logits)
}

// Result of one forward/backward pass over a window.
type Result struct {
	Loss   float64  // summed negative log-likelihood over the window
	Grads  *Weights // clipped gradients
	Hidden *mat.Dense
}

// StepForward runs one recurrence step from hidden state h on input id.
func StepForward(w *Weights, id int, h *mat.Dense) (hNext, probs *mat.Dense) {
	s := stepForward(w, utils.OneHot(w.VocabSize(), id), h)
	return s.H, s.Probs
}

func stepForward(w *Weights, x, hprev *mat.Dense) StepState {
	pre := utils.Add(utils.Add(utils.Dot(w.Wxh, x), utils.Dot(w.Whh, hprev)), w.Bh)
	h := utils.Apply(utils.TanhApply, pre)
	logits := utils.Add(utils.Dot(w.Why, h), w.By)
	return StepState{X: x, H: h, Logits: logits, Probs: utils.ColVectorSoftmax(logits)}
}

// Forward computes the hidden trajectory and total loss of the window.
// A nil hprev is the zero state.
func Forward(w *Weights, win Window, hprev *mat.Dense) (float64, []StepState, error) {
	hprev, err := checkWindow(w, win, hprev)
	if err != nil {
		return 0, nil, err
	}
	V := w.VocabSize()
	traj := make([]StepState, len(win.Inputs))
	loss := 0.0
	h := hprev
	for t, id := range win.Inputs {
		traj[t] = stepForward(w, utils.OneHot(V, id), h)
		h = traj[t].H
		loss += -math.Log(traj[t].Probs.At(win.Targets[t], 0))
	}
	return loss, traj, nil
}

// Backward walks the trajectory in reverse time order and accumulates the
// exact (unclipped) gradient of the window loss for every tensor.
func Backward(w *Weights, win Window, hprev *mat.Dense, traj []StepState) *Weights {
	H := w.HiddenSize()
	if hprev == nil {
		hprev = mat.NewDense(H, 1, nil)
	}
	g := zerosLike(w)
	dhnext := mat.NewDense(H, 1, nil)
	for t := len(traj) - 1; t >= 0; t-- {
		s := traj[t]
		// softmax + cross-entropy: dy = p - onehot(target)
		_, dy := utils.CrossEntropyWithIndex(s.Probs, win.Targets[t])
		g.Why.Add(g.Why, utils.Dot(dy, s.H.T()))
		g.By.Add(g.By, dy)

		dh := utils.Add(utils.Dot(w.Why.T(), dy), dhnext)
		// through tanh: (1 - h^2) * dh
		dhraw := mat.NewDense(H, 1, nil)
		dhraw.Apply(func(i, _ int, v float64) float64 {
			hv := s.H.At(i, 0)
			return (1 - hv*hv) * v
		}, dh)

		hPrev := hprev
		if t > 0 {
			hPrev = traj[t-1].H
		}
		g.Bh.Add(g.Bh, dhraw)
		g.Wxh.Add(g.Wxh, utils.Dot(dhraw, s.X.T()))
		g.Whh.Add(g.Whh, utils.Dot(dhraw, hPrev.T()))
		dhnext = utils.Dot(w.Whh.T(), dhraw)
	}
	return g
}

// Step runs Forward then Backward, clips every gradient element to
// [-clip, clip] and returns the last hidden state. w is not modified.
func Step(w *Weights, win Window, hprev *mat.Dense, clip float64) (Result, error) {
	loss, traj, err := Forward(w, win, hprev)
	if err != nil {
		return Result{}, err
	}
	grads := Backward(w, win, hprev, traj)
	utils.ClipInPlace(-clip, clip, grads.Tensors()...)
	return Result{Loss: loss, Grads: grads, Hidden: traj[len(traj)-1].H}, nil
}

func checkWindow(w *Weights, win Window, hprev *mat.Dense) (*mat.Dense, error) {
	H, V := w.HiddenSize(), w.VocabSize()
	if len(win.Inputs) == 0 || len(win.Inputs) != len(win.Targets) {
		return nil, fmt.Errorf("%w: %d inputs, %d targets", ErrBadWindow, len(win.Inputs), len(win.Targets))
	}
	for t := range win.Inputs {
		if win.Inputs[t] < 0 || win.Inputs[t] >= V || win.Targets[t] < 0 || win.Targets[t] >= V {
			return nil, fmt.Errorf("%w: id out of range at step %d (vocab %d)", ErrBadWindow, t, V)
		}
	}
	if hprev == nil {
		return mat.NewDense(H, 1, nil), nil
	}
	if r, c := hprev.Dims(); r != H || c != 1 {
		return nil, fmt.Errorf("%w: hidden state is %dx%d, want %dx1", ErrBadWindow, r, c, H)
	}
	return hprev, nil
}
