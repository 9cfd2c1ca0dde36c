package lines

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoemLoopWraps(t *testing.T) {
	src := NewPoemLoop("a", []string{"one", "two"})

	for _, want := range []string{"one", "two", "one", "two", "one"} {
		next, ok := src.GetNextLine()
		require.True(t, ok)
		require.Equal(t, want, next.Line)
		require.Equal(t, "a", next.Author)
	}
}

func TestPoemLoopEmpty(t *testing.T) {
	src := NewPoemLoop("a", nil)
	_, ok := src.GetNextLine()
	require.False(t, ok)
}

func TestOnceExhausts(t *testing.T) {
	src := NewOnce("b", []string{"only"})

	next, ok := src.GetNextLine()
	require.True(t, ok)
	require.Equal(t, "only", next.Line)

	_, ok = src.GetNextLine()
	require.False(t, ok)
	_, ok = src.GetNextLine()
	require.False(t, ok)
}

func TestNullNeverProduces(t *testing.T) {
	_, ok := Null{}.GetNextLine()
	require.False(t, ok)
}
