package rnn

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/manningwu07/charRNN/params"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// recordingStepper trains nothing; it remembers what the trainer fed it.
type recordingStepper struct {
	hidden, vocab int
	loss          float64
	err           error
	starts        []int
	hprevs        []*mat.Dense
}

func (r *recordingStepper) HiddenSize() int   { return r.hidden }
func (r *recordingStepper) VocabSize() int    { return r.vocab }
func (r *recordingStepper) Weights() *Weights { return NewWeights(r.hidden, r.vocab) }

func (r *recordingStepper) TrainWindow(win Window, hprev *mat.Dense) (float64, *mat.Dense, error) {
	if r.err != nil {
		return 0, nil, r.err
	}
	r.starts = append(r.starts, win.Inputs[0])
	r.hprevs = append(r.hprevs, mat.DenseCopyOf(hprev))
	h := mat.NewDense(r.hidden, 1, nil)
	for i := 0; i < r.hidden; i++ {
		h.Set(i, 0, 1)
	}
	return r.loss, h, nil
}

func seqIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func testConfig() params.TrainingConfig {
	cfg := params.Config
	cfg.Seed = 7
	cfg.SampleEvery = 0
	return cfg
}

func TestSmoothLossStaysBetween(t *testing.T) {
	cases := [][2]float64{{10, 2}, {2, 10}, {5, 5}, {0, 100}}
	for _, c := range cases {
		got := SmoothLoss(c[0], c[1])
		lo, hi := math.Min(c[0], c[1]), math.Max(c[0], c[1])
		if got < lo || got > hi {
			t.Fatalf("SmoothLoss(%v, %v) = %v outside [%v, %v]", c[0], c[1], got, lo, hi)
		}
	}
	if got := SmoothLoss(10, 0); math.Abs(got-9) > 1e-12 {
		t.Fatalf("SmoothLoss(10, 0) = %v, want 9", got)
	}
}

func TestInitialLoss(t *testing.T) {
	if got, want := InitialLoss(2, 4), 4*math.Ln2; math.Abs(got-want) > 1e-12 {
		t.Fatalf("InitialLoss = %v, want %v", got, want)
	}
}

func TestCursorWraparound(t *testing.T) {
	cases := []struct {
		length, seq int
		resetAt     int // 0-based iteration that rewinds to the start
	}{
		{200, 4, 49},
		{23, 4, 5},
		{21, 4, 5},
		{22, 4, 5},
	}
	for _, c := range cases {
		cfg := testConfig()
		cfg.SeqLen = c.seq
		cfg.Iterations = c.resetAt + 2
		fake := &recordingStepper{hidden: 3, vocab: c.length, loss: 1}
		tr, err := NewTrainer(cfg, seqIDs(c.length), fake, quietLogger())
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i <= c.resetAt; i++ {
			if err := tr.Next(); err != nil {
				t.Fatal(err)
			}
		}
		if tr.WindowStart() != 0 || tr.Resets() != 2 {
			t.Fatalf("L=%d s=%d: start=%d resets=%d", c.length, c.seq, tr.WindowStart(), tr.Resets())
		}
		for i, p := range fake.starts[:c.resetAt] {
			if p != i*c.seq {
				t.Fatalf("L=%d s=%d: iteration %d started at %d", c.length, c.seq, i, p)
			}
			if p+c.seq+1 > c.length {
				t.Fatalf("window at %d runs past the corpus", p)
			}
		}
		if tr.Cursor() != c.seq || tr.NextSymbol() != c.seq {
			t.Fatalf("after rewind: cursor=%d next=%d", tr.Cursor(), tr.NextSymbol())
		}
		if mat.Min(tr.Hidden()) != 1 {
			t.Fatal("trainer did not keep the stepper's last hidden state")
		}
		// carried state between windows, zero state after a rewind
		if mat.Max(fake.hprevs[1]) != 1 {
			t.Fatal("hidden state not carried to the second window")
		}
		last := fake.hprevs[c.resetAt]
		if mat.Max(last) != 0 || mat.Min(last) != 0 {
			t.Fatal("hidden state not zeroed on rewind")
		}
	}
}

func TestTrainerRecordsHistory(t *testing.T) {
	cfg := testConfig()
	cfg.SeqLen = 3
	cfg.Iterations = 25
	cfg.ReportEvery = 10
	fake := &recordingStepper{hidden: 2, vocab: 4, loss: 0}
	tr, err := NewTrainer(cfg, []int{0, 1, 2, 3, 0, 1, 2, 3, 0, 1}, fake, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	hist, err := tr.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("recorded %d losses, want 3 (iterations 0, 10, 20)", len(hist))
	}
	want := InitialLoss(4, 3) * 0.9
	if math.Abs(hist[0]-want) > 1e-12 {
		t.Fatalf("first record = %v, want %v", hist[0], want)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i] >= hist[i-1] {
			t.Fatalf("smoothed loss did not decay toward 0: %v", hist)
		}
	}
	if tr.Iteration() != 25 || len(fake.starts) != 25 {
		t.Fatalf("ran %d iterations", tr.Iteration())
	}
}

func TestTrainerNonFiniteLoss(t *testing.T) {
	cfg := testConfig()
	cfg.SeqLen = 2
	cfg.Iterations = 4
	ids := []int{0, 1, 0, 1, 0, 1}

	fake := &recordingStepper{hidden: 2, vocab: 2, loss: math.NaN()}
	tr, err := NewTrainer(cfg, ids, fake, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Run(); err != nil {
		t.Fatalf("non-strict run failed: %v", err)
	}
	if tr.Unstable() != 4 {
		t.Fatalf("unstable = %d, want 4", tr.Unstable())
	}

	cfg.StrictNumerics = true
	tr, _ = NewTrainer(cfg, ids, fake, quietLogger())
	hist, err := tr.Run()
	if !errors.Is(err, ErrNumericInstability) || hist != nil {
		t.Fatalf("strict run: hist=%v err=%v", hist, err)
	}
}

func TestTrainerPropagatesStepperError(t *testing.T) {
	boom := errors.New("boom")
	cfg := testConfig()
	cfg.SeqLen = 2
	tr, err := NewTrainer(cfg, []int{0, 1, 0}, &recordingStepper{hidden: 2, vocab: 2, err: boom}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if hist, err := tr.Run(); !errors.Is(err, boom) || hist != nil {
		t.Fatalf("hist=%v err=%v", hist, err)
	}
}

func TestNewTrainerRejects(t *testing.T) {
	cfg := testConfig()
	cfg.SeqLen = 4
	if _, err := NewTrainer(cfg, []int{0, 1, 0, 1}, &recordingStepper{hidden: 2, vocab: 2}, nil); !errors.Is(err, ErrBadWindow) {
		t.Fatalf("short corpus: err = %v", err)
	}
	cfg.LearningRate = 0
	if _, err := NewTrainer(cfg, seqIDs(10), &recordingStepper{hidden: 2, vocab: 10}, nil); !errors.Is(err, params.ErrInvalidConfig) {
		t.Fatalf("bad config: err = %v", err)
	}
}

func TestAdagradMemoryGrowsDuringTraining(t *testing.T) {
	cfg := testConfig()
	cfg.HiddenSize = 6
	cfg.SeqLen = 5
	ids := []int{0, 1, 2, 0, 2, 1, 1, 0, 2, 2, 1, 0, 0, 1, 2, 1, 0}
	store := NewStore(cfg.HiddenSize, 3, cfg.InitScale, rand.NewPCG(1, 2))
	model := NewModel(store, cfg.LearningRate, cfg.AdagradEps, cfg.GradClip)
	tr, err := NewTrainer(cfg, ids, model, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	prev := store.Mem.Clone()
	for i := 0; i < 20; i++ {
		if err := tr.Next(); err != nil {
			t.Fatal(err)
		}
		for k, m := range store.Mem.Tensors() {
			p := prev.Tensors()[k]
			r, c := m.Dims()
			for a := 0; a < r; a++ {
				for b := 0; b < c; b++ {
					if m.At(a, b) < p.At(a, b) {
						t.Fatalf("iteration %d: memory tensor %d decreased at (%d,%d)", i, k, a, b)
					}
				}
			}
		}
		prev = store.Mem.Clone()
	}
}

func TestTrainAlternatingCorpus(t *testing.T) {
	ids := make([]int, 0, 200)
	for range 100 {
		ids = append(ids, 0, 1)
	}
	cfg := testConfig()
	cfg.HiddenSize = 8
	cfg.SeqLen = 4
	cfg.LearningRate = 0.1
	cfg.Iterations = 500
	cfg.ReportEvery = 100
	cfg.Seed = 42

	store := NewStore(cfg.HiddenSize, 2, cfg.InitScale, rand.NewPCG(cfg.Seed, cfg.Seed))
	model := NewModel(store, cfg.LearningRate, cfg.AdagradEps, cfg.GradClip)
	tr, err := NewTrainer(cfg, ids, model, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	tr.SetDecoder(func(ids []int) string {
		var b strings.Builder
		for _, id := range ids {
			b.WriteByte("ab"[id])
		}
		return b.String()
	})
	hist, err := tr.Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 5 {
		t.Fatalf("recorded %d losses, want 5", len(hist))
	}
	if tr.Smoothed() >= InitialLoss(2, 4) {
		t.Fatalf("smoothed loss %v not below the uniform loss", tr.Smoothed())
	}
	for i := 1; i < len(hist); i++ {
		if hist[i] >= hist[i-1] {
			t.Fatalf("smoothed loss not strictly decreasing: %v", hist)
		}
	}
	if tr.Smoothed() > 0.5 {
		t.Fatalf("smoothed loss %v, want < 0.5", tr.Smoothed())
	}

	out, err := tr.Sample(20)
	if err != nil {
		t.Fatal(err)
	}
	alt := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[i-1] {
			alt++
		}
	}
	if frac := float64(alt) / float64(len(out)-1); frac < 0.8 {
		t.Fatalf("sample %v alternates %.2f of the time", out, frac)
	}
}

func TestTrainerLogsPeriodicSamples(t *testing.T) {
	ids := make([]int, 0, 40)
	for range 20 {
		ids = append(ids, 0, 1)
	}
	cfg := testConfig()
	cfg.HiddenSize = 4
	cfg.SeqLen = 4
	cfg.Iterations = 10
	cfg.SampleEvery = 5
	cfg.SampleLen = 12

	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})

	store := NewStore(cfg.HiddenSize, 2, cfg.InitScale, rand.NewPCG(3, 3))
	tr, err := NewTrainer(cfg, ids, NewModel(store, cfg.LearningRate, cfg.AdagradEps, cfg.GradClip), log)
	if err != nil {
		t.Fatal(err)
	}
	var decoded [][]int
	tr.SetDecoder(func(ids []int) string {
		decoded = append(decoded, append([]int(nil), ids...))
		return strings.Repeat("x", len(ids))
	})
	if _, err := tr.Run(); err != nil {
		t.Fatal(err)
	}

	// iterations 0 and 5
	if len(decoded) != 2 {
		t.Fatalf("decoder called %d times, want 2", len(decoded))
	}
	for _, d := range decoded {
		if len(d) != cfg.SampleLen {
			t.Fatalf("sample of %d ids, want %d", len(d), cfg.SampleLen)
		}
	}
	out := buf.String()
	if n := strings.Count(out, "sample:"); n != 2 {
		t.Fatalf("logged %d samples, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, strings.Repeat("x", cfg.SampleLen)) {
		t.Fatalf("decoded text missing from log:\n%s", out)
	}

	// without a decoder the raw ids are logged
	buf.Reset()
	tr, _ = NewTrainer(cfg, ids, NewModel(store, cfg.LearningRate, cfg.AdagradEps, cfg.GradClip), log)
	if _, err := tr.Run(); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "sample ids:"); n != 2 {
		t.Fatalf("logged %d raw samples, want 2", n)
	}
}
