package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/manningwu07/charRNN/IO"
	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/rnn"
	"gonum.org/v1/gonum/mat"
)

// SampleCLI reads prompts from stdin and prints n sampled characters for
// each. The prompt is run through the network to build the hidden state and
// its last known character seeds the sample. An empty line continues from
// where training stopped.
func SampleCLI(tr *rnn.Trainer, vocab params.Vocabulary, n int) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Sampling CLI. Empty line continues the training text. Type 'exit' to quit.")
	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return
		}
		input = strings.TrimRight(input, "\r\n")
		if input == "exit" {
			break
		}

		var ids []int
		if input == "" {
			ids, err = tr.Sample(n)
		} else {
			h, seed, ok := primeHidden(tr.Weights(), vocab, input)
			if !ok {
				fmt.Println("None of those characters are in the vocabulary.")
				continue
			}
			ids, err = rnn.Sample(tr.Weights(), h, seed, n, tr.Source())
		}
		if err != nil {
			fmt.Println("Error:", err)
			continue
		}
		fmt.Println("RNN:", input+IO.Decode(vocab, ids))
	}
}

// primeHidden feeds every known rune of prompt except the last through the
// recurrence and returns the resulting state and the last known id.
// Unknown runes are skipped.
func primeHidden(w *rnn.Weights, vocab params.Vocabulary, prompt string) (*mat.Dense, int, bool) {
	var known []int
	for _, r := range prompt {
		if id, ok := IO.VocabLookup(vocab, r); ok {
			known = append(known, id)
		}
	}
	if len(known) == 0 {
		return nil, 0, false
	}
	h := mat.NewDense(w.HiddenSize(), 1, nil)
	for _, id := range known[:len(known)-1] {
		h, _ = rnn.StepForward(w, id, h)
	}
	return h, known[len(known)-1], true
}
