package params

import (
	"errors"
	"fmt"
)

// Character vocabulary: every distinct rune of the corpus gets a dense id.
type Vocabulary struct {
	TokenToID map[rune]int
	IDToToken []rune
}

// Size returns |V|.
func (v Vocabulary) Size() int {
	return len(v.IDToToken)
}

const (
	EngineManual = "manual" // hand-derived BPTT
	EngineGraph  = "graph"  // gorgonia autodiff, comparison only
)

var ErrInvalidConfig = errors.New("invalid training config")

type TrainingConfig struct {
	// Core RNN parameters
	HiddenSize int // size of hidden layer
	SeqLen     int // steps to unroll the RNN for

	// Optimization
	LearningRate float64
	InitScale    float64 // stddev of initial weights
	GradClip     float64 // elementwise clip bound
	AdagradEps   float64

	Iterations  int // total training iterations
	ReportEvery int // record smoothed loss every N iterations

	Seed           uint64 // 0 = seed from clock
	SampleEvery    int    // log a sample every N iterations (0 disables)
	SampleLen      int    // runes per logged sample
	Engine         string // EngineManual or EngineGraph
	StrictNumerics bool   // abort on non-finite loss instead of warning
	Debug          bool
}

// Defaults match the reference min-char-rnn benchmark.
var Config = TrainingConfig{
	HiddenSize: 50,
	SeqLen:     20,

	LearningRate: 1e-1,
	InitScale:    0.01,
	GradClip:     5,
	AdagradEps:   1e-8,

	Iterations:  5000,
	ReportEvery: 100,

	SampleEvery: 0,
	SampleLen:   200,
	Engine:      EngineManual,
}

func (c TrainingConfig) Validate() error {
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden size %d", ErrInvalidConfig, c.HiddenSize)
	case c.SeqLen <= 0:
		return fmt.Errorf("%w: seq length %d", ErrInvalidConfig, c.SeqLen)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate %g", ErrInvalidConfig, c.LearningRate)
	case c.InitScale <= 0:
		return fmt.Errorf("%w: init scale %g", ErrInvalidConfig, c.InitScale)
	case c.GradClip <= 0:
		return fmt.Errorf("%w: grad clip %g", ErrInvalidConfig, c.GradClip)
	case c.AdagradEps <= 0:
		return fmt.Errorf("%w: adagrad eps %g", ErrInvalidConfig, c.AdagradEps)
	case c.Iterations < 0:
		return fmt.Errorf("%w: iterations %d", ErrInvalidConfig, c.Iterations)
	case c.ReportEvery <= 0:
		return fmt.Errorf("%w: report interval %d", ErrInvalidConfig, c.ReportEvery)
	case c.SampleEvery < 0 || (c.SampleEvery > 0 && c.SampleLen <= 0):
		return fmt.Errorf("%w: sample every %d len %d", ErrInvalidConfig, c.SampleEvery, c.SampleLen)
	}
	if c.Engine != EngineManual && c.Engine != EngineGraph {
		return fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, c.Engine)
	}
	return nil
}
