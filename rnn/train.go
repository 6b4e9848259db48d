package rnn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

var ErrNumericInstability = errors.New("non-finite loss")

// Stepper trains on one window: forward, backward and parameter update.
// It returns the window loss and the last hidden state.
type Stepper interface {
	HiddenSize() int
	VocabSize() int
	TrainWindow(win Window, hprev *mat.Dense) (float64, *mat.Dense, error)
	Weights() *Weights
}

// SmoothLoss is the exponential moving average used for progress reports.
func SmoothLoss(prev, sample float64) float64 {
	return prev*0.9 + sample*0.1
}

// InitialLoss is the window loss of a model predicting uniformly.
func InitialLoss(vocab, seqLen int) float64 {
	return -math.Log(1.0/float64(vocab)) * float64(seqLen)
}

// Trainer sweeps a window of SeqLen symbols left to right over the corpus.
// When the next window would run past the end, the cursor returns to 0 and
// the hidden state is zeroed; the partial tail window is dropped.
type Trainer struct {
	cfg     params.TrainingConfig
	ids     []int
	stepper Stepper
	logger  *logrus.Logger
	src     rand.Source
	decode  func([]int) string

	n        int // iterations done
	p        int // cursor of the next window
	start    int // cursor of the last window
	resets   int
	h        *mat.Dense
	next     int // symbol following the last window
	smooth   float64
	history  []float64
	unstable int
}

func NewTrainer(cfg params.TrainingConfig, ids []int, s Stepper, logger *logrus.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(ids) < cfg.SeqLen+1 {
		return nil, fmt.Errorf("%w: %d ids, need at least %d", ErrBadWindow, len(ids), cfg.SeqLen+1)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Trainer{
		cfg:     cfg,
		ids:     ids,
		stepper: s,
		logger:  logger,
		src:     rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d),
		smooth:  InitialLoss(s.VocabSize(), cfg.SeqLen),
	}, nil
}

// SetDecoder sets how sampled ids are rendered in progress logs.
func (t *Trainer) SetDecoder(fn func([]int) string) {
	t.decode = fn
}

// Next runs one training iteration.
func (t *Trainer) Next() error {
	seq := t.cfg.SeqLen
	if t.n == 0 || t.p+seq+1 > len(t.ids) {
		t.p = 0
		t.h = mat.NewDense(t.stepper.HiddenSize(), 1, nil)
		t.resets++
	}
	win := WindowAt(t.ids, t.p, seq)

	if t.cfg.SampleEvery > 0 && t.n%t.cfg.SampleEvery == 0 {
		t.logSample(win.Inputs[0])
	}

	loss, h, err := t.stepper.TrainWindow(win, t.h)
	if err != nil {
		return err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.unstable++
		t.logger.WithFields(logrus.Fields{
			"iter":          t.n,
			"cursor":        t.p,
			"loss":          loss,
			"params_finite": utils.AllFinite(t.stepper.Weights().Tensors()...),
		}).Warn("numeric instability: non-finite window loss")
		if t.cfg.StrictNumerics {
			return fmt.Errorf("%w: iteration %d, cursor %d", ErrNumericInstability, t.n, t.p)
		}
	}

	t.h = h
	t.next = win.Targets[len(win.Targets)-1]
	t.smooth = SmoothLoss(t.smooth, loss)
	if t.n%t.cfg.ReportEvery == 0 {
		t.history = append(t.history, t.smooth)
		t.logger.WithFields(logrus.Fields{
			"iter":   t.n,
			"loss":   t.smooth,
			"h_norm": utils.MatrixNorm(h),
		}).Info("progress")
	}
	t.logger.WithFields(logrus.Fields{
		"iter":   t.n,
		"cursor": t.p,
		"window": loss,
	}).Debug("step")

	t.start = t.p
	t.p += seq
	t.n++
	return nil
}

// Run performs the configured number of iterations and returns the recorded
// smoothed losses. A failed iteration aborts the run with no result.
func (t *Trainer) Run() ([]float64, error) {
	for t.n < t.cfg.Iterations {
		if err := t.Next(); err != nil {
			return nil, err
		}
	}
	return t.History(), nil
}

// Sample continues the corpus from the current hidden state.
func (t *Trainer) Sample(n int) ([]int, error) {
	return Sample(t.stepper.Weights(), t.h, t.next, n, t.src)
}

func (t *Trainer) logSample(seed int) {
	entry := t.logger.WithField("iter", t.n)
	ids, err := Sample(t.stepper.Weights(), t.h, seed, t.cfg.SampleLen, t.src)
	if err != nil {
		entry.WithError(err).Warn("sample failed")
		return
	}
	if t.decode != nil {
		entry.Infof("sample:\n----\n %s \n----", t.decode(ids))
		return
	}
	entry.Infof("sample ids: %v", ids)
}

func (t *Trainer) Iteration() int { return t.n }
func (t *Trainer) Cursor() int { return t.p }
func (t *Trainer) WindowStart() int { return t.start }
func (t *Trainer) Resets() int { return t.resets }
func (t *Trainer) Hidden() *mat.Dense { return t.h }
func (t *Trainer) NextSymbol() int { return t.next }
func (t *Trainer) Smoothed() float64 { return t.smooth }
func (t *Trainer) Unstable() int { return t.unstable }
func (t *Trainer) Source() rand.Source { return t.src }
func (t *Trainer) Weights() *Weights { return t.stepper.Weights() }
func (t *Trainer) History() []float64 { return append([]float64(nil), t.history...) }
