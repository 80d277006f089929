// Package tokens estimates token counts for requests and responses
// whose backends do not report usage.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/modelroute/gateway/internal/domain"
)

// Estimator counts tokens with tiktoken when the model is recognized
// and falls back to a bytes/4 heuristic otherwise. Safe for concurrent
// use.
type Estimator struct {
	mu     sync.Mutex
	codecs map[string]tokenizer.Codec
}

func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[string]tokenizer.Codec)}
}

func (e *Estimator) codec(model string) (tokenizer.Codec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.codecs[model]; ok {
		return c, c != nil
	}
	c, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		c, err = tokenizer.Get(tokenizer.Cl100kBase)
	}
	if err != nil {
		// Cache the miss so we do not retry on every request.
		e.codecs[model] = nil
		return nil, false
	}
	e.codecs[model] = c
	return c, true
}

// EstimateText returns the token count of a single string.
func (e *Estimator) EstimateText(model, text string) int {
	if c, ok := e.codec(model); ok {
		if ids, _, err := c.Encode(text); err == nil {
			return len(ids)
		}
	}
	return heuristic(text)
}

// EstimateMessages approximates prompt tokens for a chat request,
// including the small per-message framing overhead.
func (e *Estimator) EstimateMessages(model string, msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4 // framing tokens per message
		total += e.EstimateText(model, m.Role)
		total += e.EstimateText(model, m.Content)
	}
	total += 2 // reply priming
	return total
}

func heuristic(text string) int {
	n := len(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
