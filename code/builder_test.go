package code

import (
	"testing"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/op"
	"github.com/stretchr/testify/require"
)

func TestBuilderLabels(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.Mark(l)
	requireInvariant(t, "marked twice", func() { b.Mark(l) })
	requireInvariant(t, "unknown label", func() { b.Mark(Label(42)) })
}

func TestBuilderUnmarkedTarget(t *testing.T) {
	b := NewBuilder()
	b.Goto(b.NewLabel())
	requireInvariant(t, "unpaired branch", func() { _, _ = b.Build() })
}

func TestBuilderConditionalFallThrough(t *testing.T) {
	b := NewBuilder()
	end := b.NewLabel()
	b.If(op.IfEqz, end, Reg(0, cst.Int))
	b.Add(Branch(op.IfNez, end, Reg(0, cst.Int)))
	b.Mark(end)
	b.Return()

	block, err := b.Build()
	require.NoError(t, err)
	insns := block.Insns()
	require.Len(t, insns, 6)
	for _, i := range []int{1, 3} {
		require.True(t, insns[i].IsMarker())
		require.NotEqual(t, end, insns[i].Label())
	}
	require.Equal(t, 3, block.LabelCount())
}

func TestBuilderIfRequiresConditional(t *testing.T) {
	b := NewBuilder()
	requireInvariant(t, "not a conditional branch", func() {
		b.If(op.Goto, b.NewLabel())
	})
}

func TestBuilderStartLocalRequiresItem(t *testing.T) {
	b := NewBuilder()
	requireInvariant(t, "without a local item", func() {
		b.StartLocal(Reg(0, cst.Int))
	})
}

func TestBuilderInheritsLine(t *testing.T) {
	b := NewBuilder()
	b.SetLine(3)
	b.Const(Reg(0, cst.Int), 1)
	b.Add(Simple(op.Nop).WithPosition(Position{Line: 9}))
	b.SetLine(0)
	b.Return()

	block, err := b.Build()
	require.NoError(t, err)
	insns := block.Insns()
	require.Equal(t, 3, insns[0].Position().Line)
	require.Equal(t, 9, insns[1].Position().Line)
	require.False(t, insns[2].Position().Known())
}

func TestBuilderMoveKinds(t *testing.T) {
	b := NewBuilder()
	b.Move(Reg(0, cst.Int), Reg(1, cst.Int))
	b.Move(Reg(0, cst.Long), Reg(2, cst.Long))
	b.Move(Reg(0, cst.Object), Reg(1, cst.Object))
	b.MoveResult(Reg(0, cst.Double))
	b.Return(Reg(0, cst.StringT))

	block, err := b.Build()
	require.NoError(t, err)
	var ops []op.Code
	for _, insn := range block.Insns() {
		ops = append(ops, insn.Op())
	}
	require.Equal(t, []op.Code{op.Move, op.MoveWide, op.MoveObject, op.MoveResultWide, op.ReturnObject}, ops)
}

func TestBuilderSparseSwitchValidation(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.SparseSwitch(Reg(0, cst.Int), []int32{5, 1}, []Label{l, l})
	b.Mark(l)
	_, err := b.Build()
	require.Error(t, err)
	require.Contains(t, err.Error(), "sorted")
}

func TestBlockConstants(t *testing.T) {
	b := NewBuilder()
	start, end, handler := b.NewLabel(), b.NewLabel(), b.NewLabel()
	b.Mark(start)
	b.ConstString(Reg(0, cst.StringT), "hi")
	b.Mark(end)
	b.Return()
	b.Mark(handler)
	b.Return()
	b.Try(start, end, []Catch{{Type: cst.Throwable, Handler: handler}}, NoLabel)

	block, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, []cst.Constant{cst.String("hi"), cst.Throwable}, block.Constants())
	require.Len(t, block.Tries(), 1)
}

func TestMakeMove(t *testing.T) {
	tests := []struct {
		dest, src Register
		want      op.Code
	}{
		{Reg(1, cst.Int), Reg(2, cst.Int), op.Move},
		{Reg(1, cst.Int), Reg(20, cst.Int), op.MoveFrom16},
		{Reg(300, cst.Int), Reg(2, cst.Int), op.Move16},
		{Reg(2, cst.Long), Reg(4, cst.Long), op.MoveWide},
		{Reg(2, cst.Double), Reg(400, cst.Double), op.MoveWideFrom16},
		{Reg(256, cst.Object), Reg(0, cst.Object), op.MoveObject16},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			require.Equal(t, tt.want, MakeMove(NoPosition, tt.dest, tt.src).Op())
		})
	}
}
