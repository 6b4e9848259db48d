// Package graph trains the same tanh RNN with gorgonia's reverse-mode
// autodiff. It exists to cross-check the hand-derived engine in package rnn
// and is selected with -engine=graph.
package graph

import (
	"fmt"

	"github.com/manningwu07/charRNN/rnn"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var _ rnn.Stepper = (*Engine)(nil)

// Engine holds one unrolled graph of SeqLen steps. Inputs, targets and the
// initial hidden state are rebound with Let before every window.
type Engine struct {
	g      *gorgonia.ExprGraph
	hidden int
	vocab  int
	seqLen int

	wxh, whh, why, bh, by *gorgonia.Node

	hprev   *gorgonia.Node
	inputs  []*gorgonia.Node
	targets []*gorgonia.Node
	cost    *gorgonia.Node
	lastVal gorgonia.Value // last hidden state, copied out before the backward pass

	vm     gorgonia.VM
	solver gorgonia.Solver
}

// New builds the graph from init, which is copied. eps is the Adagrad
// stabiliser and clip the elementwise gradient bound.
func New(init *rnn.Weights, seqLen int, lr, eps, clip float64) (*Engine, error) {
	if seqLen <= 0 {
		return nil, fmt.Errorf("graph: seq length %d", seqLen)
	}
	H, V := init.HiddenSize(), init.VocabSize()
	g := gorgonia.NewGraph()
	e := &Engine{g: g, hidden: H, vocab: V, seqLen: seqLen}

	e.wxh = matrixNode(g, "Wxh", init.Wxh)
	e.whh = matrixNode(g, "Whh", init.Whh)
	e.why = matrixNode(g, "Why", init.Why)
	e.bh = vectorNode(g, "bh", init.Bh)
	e.by = vectorNode(g, "by", init.By)

	e.hprev = gorgonia.NewVector(g, tensor.Float64, gorgonia.WithShape(H), gorgonia.WithName("hprev"),
		gorgonia.WithValue(tensor.New(tensor.WithShape(H), tensor.WithBacking(make([]float64, H)))))

	h := e.hprev
	var cost *gorgonia.Node
	for t := 0; t < seqLen; t++ {
		x := oneHotNode(g, fmt.Sprintf("x%d", t), V)
		y := oneHotNode(g, fmt.Sprintf("y%d", t), V)
		e.inputs = append(e.inputs, x)
		e.targets = append(e.targets, y)

		var err error
		h, err = e.cell(x, h)
		if err != nil {
			return nil, fmt.Errorf("graph: step %d: %w", t, err)
		}
		nll, err := e.stepLoss(h, y)
		if err != nil {
			return nil, fmt.Errorf("graph: loss %d: %w", t, err)
		}
		if cost == nil {
			cost = nll
		} else if cost, err = gorgonia.Add(cost, nll); err != nil {
			return nil, err
		}
	}
	e.cost = cost
	gorgonia.Read(h, &e.lastVal)

	learnables := e.learnables()
	if _, err := gorgonia.Grad(cost, learnables...); err != nil {
		return nil, fmt.Errorf("graph: symbolic gradient: %w", err)
	}
	e.vm = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...))
	e.solver = gorgonia.NewAdaGradSolver(
		gorgonia.WithLearnRate(lr),
		gorgonia.WithEps(eps),
		gorgonia.WithClip(clip),
	)
	return e, nil
}

// h = tanh(Wxh x + Whh h + bh)
func (e *Engine) cell(x, h *gorgonia.Node) (*gorgonia.Node, error) {
	xh, err := gorgonia.Mul(e.wxh, x)
	if err != nil {
		return nil, err
	}
	hh, err := gorgonia.Mul(e.whh, h)
	if err != nil {
		return nil, err
	}
	pre, err := gorgonia.Add(xh, hh)
	if err != nil {
		return nil, err
	}
	if pre, err = gorgonia.Add(pre, e.bh); err != nil {
		return nil, err
	}
	return gorgonia.Tanh(pre)
}

// -sum(y * log softmax(Why h + by))
func (e *Engine) stepLoss(h, y *gorgonia.Node) (*gorgonia.Node, error) {
	logits, err := gorgonia.Mul(e.why, h)
	if err != nil {
		return nil, err
	}
	if logits, err = gorgonia.Add(logits, e.by); err != nil {
		return nil, err
	}
	probs, err := gorgonia.SoftMax(logits)
	if err != nil {
		return nil, err
	}
	logp, err := gorgonia.Log(probs)
	if err != nil {
		return nil, err
	}
	picked, err := gorgonia.HadamardProd(y, logp)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Sum(picked)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(sum)
}

func (e *Engine) learnables() gorgonia.Nodes {
	return gorgonia.Nodes{e.wxh, e.whh, e.why, e.bh, e.by}
}

func (e *Engine) HiddenSize() int { return e.hidden }
func (e *Engine) VocabSize() int  { return e.vocab }

// TrainWindow runs the tape once and applies one Adagrad step.
func (e *Engine) TrainWindow(win rnn.Window, hprev *mat.Dense) (float64, *mat.Dense, error) {
	if err := e.bind(win, hprev); err != nil {
		return 0, nil, err
	}
	defer e.vm.Reset()
	if err := e.vm.RunAll(); err != nil {
		return 0, nil, fmt.Errorf("graph: run: %w", err)
	}
	loss, err := e.costValue()
	if err != nil {
		return 0, nil, err
	}
	if e.lastVal == nil {
		return 0, nil, fmt.Errorf("graph: last hidden state was not read")
	}
	last := vectorDense(e.lastVal)
	if err := e.solver.Step(gorgonia.NodesToValueGrads(e.learnables())); err != nil {
		return 0, nil, fmt.Errorf("graph: solver: %w", err)
	}
	return loss, last, nil
}

// Loss evaluates the window without touching the parameters.
func (e *Engine) Loss(win rnn.Window, hprev *mat.Dense) (float64, error) {
	if err := e.bind(win, hprev); err != nil {
		return 0, err
	}
	defer e.vm.Reset()
	if err := e.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("graph: run: %w", err)
	}
	return e.costValue()
}

func (e *Engine) costValue() (float64, error) {
	loss, ok := e.cost.Value().Data().(float64)
	if !ok {
		return 0, fmt.Errorf("graph: cost is %T", e.cost.Value().Data())
	}
	return loss, nil
}

func (e *Engine) bind(win rnn.Window, hprev *mat.Dense) error {
	if len(win.Inputs) != e.seqLen || len(win.Targets) != e.seqLen {
		return fmt.Errorf("%w: graph unrolled for %d steps, got %d", rnn.ErrBadWindow, e.seqLen, len(win.Inputs))
	}
	for t := 0; t < e.seqLen; t++ {
		if win.Inputs[t] < 0 || win.Inputs[t] >= e.vocab || win.Targets[t] < 0 || win.Targets[t] >= e.vocab {
			return fmt.Errorf("%w: id out of range at step %d", rnn.ErrBadWindow, t)
		}
		if err := gorgonia.Let(e.inputs[t], oneHotTensor(e.vocab, win.Inputs[t])); err != nil {
			return err
		}
		if err := gorgonia.Let(e.targets[t], oneHotTensor(e.vocab, win.Targets[t])); err != nil {
			return err
		}
	}
	h := make([]float64, e.hidden)
	if hprev != nil {
		if r, c := hprev.Dims(); r != e.hidden || c != 1 {
			return fmt.Errorf("%w: hidden state is %dx%d", rnn.ErrBadWindow, r, c)
		}
		for i := range h {
			h[i] = hprev.At(i, 0)
		}
	}
	return gorgonia.Let(e.hprev, tensor.New(tensor.WithShape(e.hidden), tensor.WithBacking(h)))
}

// Weights copies the current parameter values out of the graph.
func (e *Engine) Weights() *rnn.Weights {
	return &rnn.Weights{
		Wxh: matrixDense(e.wxh.Value()),
		Whh: matrixDense(e.whh.Value()),
		Why: matrixDense(e.why.Value()),
		Bh:  vectorDense(e.bh.Value()),
		By:  vectorDense(e.by.Value()),
	}
}

func (e *Engine) Close() error {
	return e.vm.Close()
}

func matrixNode(g *gorgonia.ExprGraph, name string, m *mat.Dense) *gorgonia.Node {
	r, c := m.Dims()
	data := mat.DenseCopyOf(m).RawMatrix().Data
	return gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(r, c), gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(r, c), tensor.WithBacking(data))))
}

func vectorNode(g *gorgonia.ExprGraph, name string, m *mat.Dense) *gorgonia.Node {
	r, _ := m.Dims()
	data := mat.DenseCopyOf(m).RawMatrix().Data
	return gorgonia.NewVector(g, tensor.Float64, gorgonia.WithShape(r), gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(r), tensor.WithBacking(data))))
}

func oneHotNode(g *gorgonia.ExprGraph, name string, n int) *gorgonia.Node {
	return gorgonia.NewVector(g, tensor.Float64, gorgonia.WithShape(n), gorgonia.WithName(name),
		gorgonia.WithValue(oneHotTensor(n, 0)))
}

func oneHotTensor(n, idx int) *tensor.Dense {
	b := make([]float64, n)
	b[idx] = 1
	return tensor.New(tensor.WithShape(n), tensor.WithBacking(b))
}

func matrixDense(v gorgonia.Value) *mat.Dense {
	s := v.Shape()
	data := append([]float64(nil), v.Data().([]float64)...)
	return mat.NewDense(s[0], s[1], data)
}

func vectorDense(v gorgonia.Value) *mat.Dense {
	data := append([]float64(nil), v.Data().([]float64)...)
	return mat.NewDense(len(data), 1, data)
}
