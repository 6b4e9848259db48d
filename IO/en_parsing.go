package IO

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/manningwu07/charRNN/params"
)

var (
	ErrEmptyCorpus          = errors.New("empty corpus")
	ErrInsufficientCorpus   = errors.New("corpus shorter than one training window")
	ErrDegenerateVocabulary = errors.New("vocabulary needs at least two symbols")
)

// LoadCorpus reads the whole corpus into memory.
func LoadCorpus(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read corpus: %w", err)
	}
	return string(b), nil
}

// BuildVocabulary assigns ids to the distinct runes of corpus in ascending
// rune order, so the mapping is stable for a given corpus.
func BuildVocabulary(corpus string) params.Vocabulary {
	seen := make(map[rune]struct{})
	for _, r := range corpus {
		seen[r] = struct{}{}
	}
	idToToken := make([]rune, 0, len(seen))
	for r := range seen {
		idToToken = append(idToToken, r)
	}
	slices.Sort(idToToken)
	tok2id := make(map[rune]int, len(idToToken))
	for i, r := range idToToken {
		tok2id[r] = i
	}
	return params.Vocabulary{TokenToID: tok2id, IDToToken: idToToken}
}

// Encode builds the vocabulary and rewrites the corpus as ids. The corpus
// must hold at least one window of seqLen inputs plus the shifted target.
func Encode(corpus string, seqLen int) (params.Vocabulary, []int, error) {
	if len(corpus) == 0 {
		return params.Vocabulary{}, nil, fmt.Errorf("%w: need at least %d symbols", ErrEmptyCorpus, seqLen+1)
	}
	runes := []rune(corpus)
	if len(runes) < seqLen+1 {
		return params.Vocabulary{}, nil, fmt.Errorf("%w: %d symbols, need %d",
			ErrInsufficientCorpus, len(runes), seqLen+1)
	}
	v := BuildVocabulary(corpus)
	if v.Size() < 2 {
		return params.Vocabulary{}, nil, fmt.Errorf("%w: got %d", ErrDegenerateVocabulary, v.Size())
	}
	ids := make([]int, len(runes))
	for i, r := range runes {
		ids[i] = v.TokenToID[r]
	}
	return v, ids, nil
}

func VocabLookup(v params.Vocabulary, r rune) (int, bool) {
	id, ok := v.TokenToID[r]
	return id, ok
}

// Decode maps ids back to text. Unknown ids are skipped.
func Decode(v params.Vocabulary, ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id >= 0 && id < len(v.IDToToken) {
			sb.WriteRune(v.IDToToken[id])
		}
	}
	return sb.String()
}
