package stats

import (
	"strings"
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k_base encoding when its data
// is available, falling back to a char/word heuristic with a density bonus
// for symbol-heavy text like code.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return heuristicTokens(text)
}

func heuristicTokens(text string) int {
	charTokens := float64(len(text)) / 4
	wordTokens := float64(len(strings.Fields(text))) * 1.3

	symbols := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			symbols++
		}
	}
	densityBonus := float64(symbols) / float64(len(text)) * 2

	return int((charTokens + wordTokens) / 2 * (1 + densityBonus))
}
