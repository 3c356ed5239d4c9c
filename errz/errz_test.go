package errz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := New(ErrSizeOverflow, "too many catch handlers")
	require.Equal(t, "size overflow: too many catch handlers", err.Error())
	require.True(t, err.IsFatal())

	err = Newf(ErrDebugMismatch, "position %d", 3).
		WithLocation(Location{Address: 0x10, Line: 7, Register: -1}).
		WithMethod("LFoo;->bar()V")
	require.Equal(t, "debug info mismatch: position 3 (address 0010, line 7) in LFoo;->bar()V", err.Error())
}

func TestUnwrapAndIs(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("assembling: %w", New(ErrChainExhausted, "method too long").WithCause(cause))
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, New(ErrChainExhausted, ""))
	require.False(t, errors.Is(err, New(ErrSizeOverflow, "")))

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, ErrChainExhausted, kind)

	_, ok = KindOf(cause)
	require.False(t, ok)
}

func TestInvariantfPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*AssemblyError)
		require.True(t, ok)
		require.Equal(t, ErrInvariant, err.Kind)
		require.Equal(t, "not prepared", err.Message)
	}()
	Invariantf("not %s", "prepared")
}

func TestLocationString(t *testing.T) {
	require.True(t, NoLocation.IsZero())
	require.Equal(t, "address 0004, v3", Location{Address: 4, Line: -1, Register: 3}.String())
}
