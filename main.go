package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/manningwu07/charRNN/IO"
	"github.com/manningwu07/charRNN/graph"
	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/rnn"
	"github.com/sirupsen/logrus"
)

var (
	corpusPath  string
	outPath     string
	cliFlag     bool
	plotFlag    bool
	compareFlag string
)

func init() {
	cfg := &params.Config
	flag.StringVar(&corpusPath, "corpus", "input.txt", "Plain-text training corpus")
	flag.StringVar(&outPath, "out", "result.txt", "Where to write losses and run times")
	flag.IntVar(&cfg.HiddenSize, "hidden", cfg.HiddenSize, "Hidden layer size")
	flag.IntVar(&cfg.SeqLen, "seq", cfg.SeqLen, "Steps to unroll the RNN for")
	flag.Float64Var(&cfg.LearningRate, "lr", cfg.LearningRate, "Adagrad learning rate")
	flag.IntVar(&cfg.Iterations, "iters", cfg.Iterations, "Training iterations")
	flag.IntVar(&cfg.ReportEvery, "every", cfg.ReportEvery, "Record the smoothed loss every N iterations")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "Random seed (0 = from clock)")
	flag.StringVar(&cfg.Engine, "engine", cfg.Engine, "Training engine: manual or graph")
	flag.IntVar(&cfg.SampleEvery, "sample-every", cfg.SampleEvery, "Log a sample every N iterations (0 = never)")
	flag.IntVar(&cfg.SampleLen, "sample-len", cfg.SampleLen, "Characters per sample")
	flag.BoolVar(&cfg.StrictNumerics, "strict", false, "Abort on a non-finite loss")
	flag.BoolVar(&cfg.Debug, "debug", false, "Log every iteration")
	flag.BoolVar(&cliFlag, "cli", false, "Sample interactively after training")
	flag.BoolVar(&plotFlag, "plot", false, "Print an ASCII plot of the recorded losses")
	flag.StringVar(&compareFlag, "compare", "", "Compare two result files a,b and exit")
}

func main() {
	flag.Parse()
	cfg := params.Config
	log := newLogger(cfg.Debug)

	if compareFlag != "" {
		if err := compareResults(compareFlag); err != nil {
			log.Fatal(err)
		}
		return
	}

	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	t0 := time.Now()
	corpus, err := IO.LoadCorpus(corpusPath)
	if err != nil {
		log.Fatal(err)
	}
	vocab, ids, err := IO.Encode(corpus, cfg.SeqLen)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("data has %d characters, %d unique.", len(ids), vocab.Size())

	stepper, closeStepper, err := newStepper(cfg, vocab.Size())
	if err != nil {
		log.Fatal(err)
	}
	// log.Fatal skips deferred calls, so the engine is closed by hand on
	// every exit path from here on.
	fatal := func(err error) {
		closeEngine(log, closeStepper)
		log.Fatal(err)
	}
	trainer, err := rnn.NewTrainer(cfg, ids, stepper, log)
	if err != nil {
		fatal(err)
	}
	trainer.SetDecoder(func(ids []int) string { return IO.Decode(vocab, ids) })
	prepare := time.Since(t0)

	t1 := time.Now()
	losses, err := trainer.Run()
	if err != nil {
		fatal(err)
	}
	loop := time.Since(t1)

	res := IO.Results{
		Unit:    fmt.Sprintf("%d iteration", cfg.ReportEvery),
		Losses:  losses,
		Prepare: prepare,
		Loop:    loop,
	}
	if err := IO.WriteResults(outPath, res); err != nil {
		fatal(err)
	}
	log.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"prepare":  prepare,
		"loop":     loop,
		"resets":   trainer.Resets(),
		"unstable": trainer.Unstable(),
		"out":      outPath,
	}).Info("training finished")

	if plotFlag {
		lossPlot(losses)
	}
	if cliFlag {
		SampleCLI(trainer, vocab, cfg.SampleLen)
	}
	closeEngine(log, closeStepper)
}

// closeEngine releases the training engine and logs a failure to do so.
func closeEngine(log *logrus.Logger, closeFn func() error) error {
	err := closeFn()
	if err != nil {
		log.WithError(err).Error("closing training engine")
	}
	return err
}

func newLogger(debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// newStepper initialises parameters from the seed and wraps them in the
// selected engine. The returned func releases engine resources.
func newStepper(cfg params.TrainingConfig, vocab int) (rnn.Stepper, func() error, error) {
	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	store := rnn.NewStore(cfg.HiddenSize, vocab, cfg.InitScale, src)
	switch cfg.Engine {
	case params.EngineGraph:
		e, err := graph.New(store.Params, cfg.SeqLen, cfg.LearningRate, cfg.AdagradEps, cfg.GradClip)
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	default:
		m := rnn.NewModel(store, cfg.LearningRate, cfg.AdagradEps, cfg.GradClip)
		return m, func() error { return nil }, nil
	}
}

func compareResults(arg string) error {
	paths := strings.Split(arg, ",")
	if len(paths) != 2 {
		return fmt.Errorf("-compare wants two result files, got %q", arg)
	}
	a, err := IO.ReadResults(paths[0])
	if err != nil {
		return fmt.Errorf("%s: %w", paths[0], err)
	}
	b, err := IO.ReadResults(paths[1])
	if err != nil {
		return fmt.Errorf("%s: %w", paths[1], err)
	}
	printComparison(paths[0], a, paths[1], b)
	return nil
}
