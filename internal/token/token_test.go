package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsDirective(t *testing.T) {
	require.True(t, IsDirective(".line"))
	require.True(t, IsDirective(".local"))
	require.True(t, IsDirective(".end"))
	require.False(t, IsDirective(".restart"))
	require.False(t, IsDirective("line"))
}

func TestPosition(t *testing.T) {
	p := Position{Line: 7, Column: 3, Char: 3}
	require.Equal(t, "7:4", p.String())
	require.Equal(t, Position{Line: 7, Column: 5, Char: 5}, p.Advance(2))
	require.Equal(t, "column 1", Position{}.String())
}
