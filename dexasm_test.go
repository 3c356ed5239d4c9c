package dexasm

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
)

func mustMethod(t *testing.T, s string) cst.MethodRef {
	t.Helper()
	ref, err := cst.ParseMethodRef(s)
	require.NoError(t, err)
	return ref
}

// constMethod returns "static int name() { return value; }" with a line
// number on each instruction.
func constMethod(t *testing.T, name string, value int64) Method {
	t.Helper()
	b := code.NewBuilder()
	v0 := code.Reg(0, cst.Int)
	b.SetLine(10)
	b.Const(v0, value)
	b.SetLine(11)
	b.Return(v0)
	block, err := b.Build()
	require.NoError(t, err)
	return Method{
		Ref:       mustMethod(t, "LFoo;->"+name+"()I"),
		Static:    true,
		Registers: 1,
		Block:     block,
	}
}

func TestAssembleAll(t *testing.T) {
	methods := []Method{
		constMethod(t, "a", 1),
		constMethod(t, "b", 1000),
		constMethod(t, "c", 3),
	}
	unit := NewUnit(WithDebugBase(0x100), WithValidation(true), WithConcurrency(2))
	require.NotEqual(t, uuid.Nil, unit.ID())

	items, err := unit.AssembleAll(context.Background(), methods)
	require.NoError(t, err)
	require.Len(t, items, 3)

	off := uint32(0x100)
	for i, item := range items {
		require.Equal(t, methods[i].Ref, item.Method)
		require.NotEmpty(t, item.DebugInfo)
		require.Equal(t, off, item.DebugInfoOff, "method %s", item.Method)
		off += uint32(len(item.DebugInfo))
	}
	require.Equal(t, int(off-0x100), len(unit.DebugInfo()))
	require.Equal(t, items[0].DebugInfo, unit.DebugInfo()[:len(items[0].DebugInfo)])

	// const/4 for 1, const/16 for 1000
	require.Equal(t, uint32(2), items[0].InsnsSize)
	require.Equal(t, uint32(3), items[1].InsnsSize)

	idx, ok := unit.Pool().Find(mustMethod(t, "LFoo;->b()I"))
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestAssembleAllOnce(t *testing.T) {
	unit := NewUnit()
	_, err := unit.AssembleAll(context.Background(), []Method{constMethod(t, "a", 1)})
	require.NoError(t, err)
	_, err = unit.AssembleAll(context.Background(), []Method{constMethod(t, "b", 2)})
	require.ErrorIs(t, err, ErrUnitUsed)
}

func TestAssembleWithoutPositions(t *testing.T) {
	_, items, err := Assemble(context.Background(),
		[]Method{constMethod(t, "a", 1)},
		WithPositions(code.PositionsNone))
	require.NoError(t, err)
	require.Nil(t, items[0].DebugInfo)
	require.Zero(t, items[0].DebugInfoOff)
}

func TestAssembleAllError(t *testing.T) {
	bad := constMethod(t, "bad", 1)
	bad.Ref = mustMethod(t, "LFoo;->bad(JJ)I")
	_, _, err := Assemble(context.Background(), []Method{constMethod(t, "a", 1), bad})
	require.Error(t, err)
	require.Contains(t, err.Error(), "LFoo;->bad(JJ)I: 1 registers cannot hold 4 argument words")
}

func TestAssembleAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Assemble(ctx, []Method{constMethod(t, "a", 1)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCodeItems(t *testing.T) {
	_, items, err := Assemble(context.Background(), []Method{
		constMethod(t, "a", 1),
		constMethod(t, "b", 2),
	}, WithPositions(code.PositionsNone))
	require.NoError(t, err)

	data, offsets := CodeItems(items)
	// Each item is a 16 byte header and two code units.
	require.Equal(t, []int{0, 20}, offsets)
	require.Len(t, data, 40)
	require.Equal(t, items[1].Bytes(), data[20:])
}

func TestCodeItemsAlignment(t *testing.T) {
	_, items, err := Assemble(context.Background(), []Method{
		constMethod(t, "a", 1000),
		constMethod(t, "b", 2),
	}, WithPositions(code.PositionsNone))
	require.NoError(t, err)

	data, offsets := CodeItems(items)
	require.Equal(t, []int{0, 24}, offsets)
	require.Equal(t, []byte{0, 0}, data[22:24])
}

func TestDescribe(t *testing.T) {
	_, items, err := Assemble(context.Background(), []Method{constMethod(t, "a", 1)})
	require.NoError(t, err)
	require.Equal(t, "LFoo;->a()I: registers=1 ins=0 outs=0 tries=0 insns=2 debug=6",
		Describe(items[0]))
}

func TestGuard(t *testing.T) {
	err := guard(func() error {
		errz.Invariantf("broken %d", 1)
		return nil
	})
	kind, ok := errz.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errz.ErrInvariant, kind)

	want := errors.New("plain")
	require.Equal(t, want, guard(func() error { return want }))

	require.Panics(t, func() {
		_ = guard(func() error { panic("other") })
	})
}

func TestCollectOptionsSkipsNil(t *testing.T) {
	cfg := collectOptions(nil, WithAlign64Bits(true), nil)
	require.True(t, cfg.align64)
	require.Equal(t, code.PositionsLines, cfg.positions)
}
