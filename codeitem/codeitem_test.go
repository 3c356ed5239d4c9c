package codeitem

import (
	"testing"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/op"
	"github.com/deepnoodle-ai/dexasm/section"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, m Method, cfg Config) (*Item, *section.Pool) {
	t.Helper()
	pool := section.NewPool()
	a := New(m, cfg)
	a.Collect(pool)
	pool.Prepare()
	item, err := a.Assemble(pool)
	require.NoError(t, err)
	return item, pool
}

func mustMethod(t *testing.T, s string) cst.MethodRef {
	t.Helper()
	ref, err := cst.ParseMethodRef(s)
	require.NoError(t, err)
	return ref
}

func build(t *testing.T, fn func(b *code.Builder)) *code.Block {
	t.Helper()
	b := code.NewBuilder()
	fn(b)
	block, err := b.Build()
	require.NoError(t, err)
	return block
}

func TestAssembleSimpleMethod(t *testing.T) {
	block := build(t, func(b *code.Builder) {
		v0 := code.Reg(0, cst.Int)
		b.Const(v0, 42)
		b.Return(v0)
	})
	item, _ := assemble(t, Method{
		Ref:       mustMethod(t, "LFoo;->answer()I"),
		Static:    true,
		Registers: 1,
		Block:     block,
	}, Config{})

	require.Equal(t, Header{RegistersSize: 1, InsnsSize: 3}, item.Header)
	require.Nil(t, item.Table)
	require.Nil(t, item.DebugInfo)
	require.Equal(t, []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00,
		0x13, 0x00, 0x2a, 0x00, 0x0f, 0x00,
	}, item.Bytes())
	require.Equal(t, len(item.Bytes()), item.Size())
}

func TestAssembleWithTries(t *testing.T) {
	block := build(t, func(b *code.Builder) {
		start, end, handler := b.NewLabel(), b.NewLabel(), b.NewLabel()
		b.Mark(start)
		b.ConstString(code.Reg(0, cst.StringT), "x")
		b.Mark(end)
		b.Return()
		b.Mark(handler)
		b.Add(code.Simple(op.MoveException, code.Reg(0, cst.Type("LE;"))))
		b.Return()
		b.Try(start, end, []code.Catch{{Type: "LE;", Handler: handler}}, code.NoLabel)
	})
	item, pool := assemble(t, Method{
		Ref:       mustMethod(t, "LFoo;->f()V"),
		Static:    true,
		Registers: 1,
		Block:     block,
	}, Config{})

	require.Equal(t, 4, pool.IndexOf(cst.String("x")))
	require.Equal(t, 0, pool.IndexOf(cst.Type("LE;")))
	require.Equal(t, uint16(1), item.TriesSize)
	require.Equal(t, uint32(5), item.InsnsSize)
	require.Equal(t, []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00,
		// const-string v0, "x"; return-void; move-exception v0; return-void
		0x1a, 0x00, 0x04, 0x00, 0x0e, 0x00, 0x0d, 0x00, 0x0e, 0x00,
		// padding
		0x00, 0x00,
		// try 0000..0002 -> list at 1
		0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01, 0x00,
		// one list: LE; at 0003
		0x01, 0x01, 0x00, 0x03,
	}, item.Bytes())
	require.Equal(t, 40, item.Size())
}

func TestAssembleDebugInfo(t *testing.T) {
	block := build(t, func(b *code.Builder) {
		this := code.Reg(1, "LFoo;").WithLocal(code.LocalItem{Name: "this", Type: "LFoo;"})
		n := code.Reg(2, cst.Int).WithLocal(code.LocalItem{Name: "n", Type: cst.Int})
		sum := code.Reg(0, cst.Int).WithLocal(code.LocalItem{Name: "sum", Type: cst.Int})
		b.StartLocal(this)
		b.StartLocal(n)
		b.SetLine(3)
		b.Add(code.Literal(op.AddIntLit8, 1, sum, n))
		b.StartLocal(sum)
		b.SetLine(4)
		b.Invoke(op.InvokeVirtual, mustMethod(t, "LFoo;->use(I)V"), this, sum)
		b.Return()
	})

	var placed []byte
	placer := DebugPlacerFunc(func(_ cst.MethodRef, data []byte) uint32 {
		placed = data
		return 0x1234
	})
	item, pool := assemble(t, Method{
		Ref:       mustMethod(t, "LFoo;->inc(I)V"),
		Registers: 3,
		Block:     block,
	}, Config{Positions: code.PositionsLines, Validate: true, Placer: placer})

	require.NotEmpty(t, item.DebugInfo)
	require.Equal(t, item.DebugInfo, placed)
	require.Equal(t, uint32(0x1234), item.DebugInfoOff)
	require.Equal(t, uint16(2), item.InsSize)
	require.Equal(t, uint16(2), item.OutsSize)
	_, ok := pool.Find(cst.String("sum"))
	require.True(t, ok)
}

func TestAssembleWithoutPositions(t *testing.T) {
	block := build(t, func(b *code.Builder) {
		b.SetLine(3)
		b.Return()
	})
	item, _ := assemble(t, Method{Ref: mustMethod(t, "LFoo;->f()V"), Static: true, Block: block}, Config{})
	require.Nil(t, item.DebugInfo)
	require.Zero(t, item.DebugInfoOff)
}

func TestAssembleErrors(t *testing.T) {
	t.Run("too few registers", func(t *testing.T) {
		block := build(t, func(b *code.Builder) { b.Return() })
		a := New(Method{Ref: mustMethod(t, "LFoo;->f(J)V"), Registers: 2, Block: block}, Config{})
		pool := section.NewPool()
		a.Collect(pool)
		pool.Prepare()
		_, err := a.Assemble(pool)
		require.Error(t, err)
		require.Contains(t, err.Error(), "cannot hold 3 argument words")
	})
	t.Run("try range too long", func(t *testing.T) {
		block := build(t, func(b *code.Builder) {
			start, end, handler := b.NewLabel(), b.NewLabel(), b.NewLabel()
			b.Mark(start)
			for i := 0; i < 0x10000; i++ {
				b.Add(code.Simple(op.Nop))
			}
			b.Mark(end)
			b.Mark(handler)
			b.Return()
			b.Try(start, end, nil, handler)
		})
		a := New(Method{Ref: mustMethod(t, "LFoo;->big()V"), Static: true, Block: block}, Config{})
		pool := section.NewPool()
		a.Collect(pool)
		pool.Prepare()
		_, err := a.Assemble(pool)
		require.ErrorIs(t, err, errz.New(errz.ErrSizeOverflow, ""))
		require.Contains(t, err.Error(), "in LFoo;->big()V")
	})
}
