package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// charCounter counts one token per character, which makes budget math in
// tests exact without a real encoding.
type charCounter struct{}

func (charCounter) Count(text string) int { return len(text) }

func turnsOf(sizes ...int) []Turn {
	turns := make([]Turn, len(sizes))
	for i, n := range sizes {
		turns[i] = Turn{Role: RoleUser, Content: strings.Repeat("a", n)}
	}
	return turns
}

func TestTrimDropsOldestUntilUnderBudget(t *testing.T) {
	b := NewBudgeter(charCounter{})

	// 5 turns of 1000 chars join to 5008 tokens; dropping the first brings
	// the count to 4006, under the 4096 ceiling.
	history := turnsOf(1000, 1000, 1000, 1000, 1000)
	history[0].Content = strings.Repeat("x", 1000)

	trimmed := b.Trim(history)
	require.Len(t, trimmed, 4)
	assert.NotContains(t, trimmed[0].Content, "x", "oldest turn should be the one removed")
}

func TestTrimIdempotentUnderBudget(t *testing.T) {
	b := NewBudgeter(charCounter{})

	history := turnsOf(100, 100, 100)
	once := b.Trim(history)
	require.Len(t, once, 3)

	twice := b.Trim(once)
	assert.Equal(t, once, twice)
}

func TestTrimCanEmptyHistory(t *testing.T) {
	b := NewBudgeter(charCounter{})

	// A single turn at the ceiling can never fit, so everything goes.
	trimmed := b.Trim(turnsOf(5000))
	assert.Empty(t, trimmed)
}

func TestTrimKeepsEmptyHistory(t *testing.T) {
	b := NewBudgeter(charCounter{})
	assert.Empty(t, b.Trim(nil))
}
