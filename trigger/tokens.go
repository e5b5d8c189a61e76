package trigger

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter estimates token counts for the depth-gate counters. It uses
// a real BPE encoding when available and falls back to a bytes/4 heuristic
// when the encoding cannot be loaded (e.g. offline first run). An estimate
// is all the depth gate needs; it never has to be exact.
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	return &tokenCounter{}
}

func (c *tokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}
