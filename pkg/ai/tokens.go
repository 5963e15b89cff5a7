package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens returns the o200k_base token count of text. It is an estimate
// for models with other tokenizers, good enough for sizing context windows
// and logging.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("o200k_base")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
