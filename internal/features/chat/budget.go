package chat

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenBudget is the context-window ceiling; history is trimmed from the
// oldest turn until the conversation fits under it.
const TokenBudget = 4096

// Tokenizer counts model tokens in a text.
type Tokenizer interface {
	Count(text string) int
}

// NewModelTokenizer returns a Tokenizer backed by the tiktoken encoding for
// the given model.
func NewModelTokenizer(model string) (Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &tiktokenCounter{enc: enc}, nil
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Budgeter trims conversation histories to the token budget.
type Budgeter struct {
	tok Tokenizer
}

func NewBudgeter(tok Tokenizer) *Budgeter {
	return &Budgeter{tok: tok}
}

// Trim drops turns from the head until the history counts under the budget
// or nothing is left. Removed turns are gone for good. Trim is idempotent
// once the history fits.
func (b *Budgeter) Trim(turns []Turn) []Turn {
	for len(turns) > 0 {
		if b.count(turns) < TokenBudget {
			break
		}
		turns = turns[1:]
	}
	return turns
}

func (b *Budgeter) count(turns []Turn) int {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = t.Content
	}
	return b.tok.Count(strings.Join(parts, "/n"))
}
