package code

import (
	"testing"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/op"
	"github.com/stretchr/testify/require"
)

type resolverFunc func(cst.Constant) int

func (f resolverFunc) IndexOf(c cst.Constant) int { return f(c) }

func requireInvariant(t *testing.T, msg string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(*errz.AssemblyError)
		require.True(t, ok)
		require.Equal(t, errz.ErrInvariant, err.Kind)
		require.Contains(t, err.Message, msg)
	}()
	fn()
}

func finish(t *testing.T, b *Builder, params FinishParams) *Finished {
	t.Helper()
	block, err := b.Build()
	require.NoError(t, err)
	f, err := Finish(block, params)
	require.NoError(t, err)
	return f
}

func realOps(f *Finished) []op.Code {
	var ops []op.Code
	for _, insn := range f.Insns() {
		if insn.IsReal() {
			ops = append(ops, insn.Op())
		}
	}
	return ops
}

func TestFinishSimple(t *testing.T) {
	b := NewBuilder()
	v0 := Reg(0, cst.Int)
	b.Const(v0, 5)
	b.Return(v0)

	f := finish(t, b, FinishParams{Unreserved: 1})
	require.Equal(t, []op.Code{op.Const4, op.Return}, realOps(f))
	require.Equal(t, 0, f.Reserved())
	require.Equal(t, 1, f.RegisterCount())
	require.Equal(t, 2, f.CodeSize())
	require.Equal(t, []uint16{0x5012, 0x000f}, f.Encode(nil))
}

func TestFinishWidensConstants(t *testing.T) {
	tests := []struct {
		name  string
		reg   Register
		value int64
		want  op.Code
	}{
		{"nibble", Reg(0, cst.Int), -8, op.Const4},
		{"short", Reg(0, cst.Int), 1000, op.Const16},
		{"high16", Reg(0, cst.Int), 0x12340000, op.ConstHigh16},
		{"int", Reg(0, cst.Int), 0x12345, op.Const},
		{"wide short", Reg(0, cst.Long), -2, op.ConstWide16},
		{"wide int", Reg(0, cst.Long), 0x12345, op.ConstWide32},
		{"wide", Reg(0, cst.Long), 0x123456789, op.ConstWide},
		{"wide high16", Reg(0, cst.Long), 0x1234 << 48, op.ConstWideHigh16},
		{"large register", Reg(200, cst.Int), 1, op.Const16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			b.Const(tt.reg, tt.value)
			f := finish(t, b, FinishParams{Unreserved: 256})
			require.Equal(t, []op.Code{tt.want}, realOps(f))
			require.Equal(t, 0, f.Reserved())
		})
	}
}

func TestFinishExpandsHighRegister(t *testing.T) {
	tests := []struct {
		name  string
		add   func(b *Builder)
		want  []string
		units []uint16
	}{
		{
			name: "check-cast",
			add: func(b *Builder) {
				b.CheckCast(Reg(300, cst.Object), cst.Type("LFoo;"))
			},
			want: []string{
				"0000: move-object/from16 v0, v301",
				"0002: check-cast v0, v0, LFoo;",
				"0004: move-object/16 v301, v0",
			},
			units: []uint16{0x0008, 0x012d, 0x001f, 0x0000, 0x0009, 0x012d, 0x0000},
		},
		{
			name: "neg-int",
			add: func(b *Builder) {
				v300 := Reg(300, cst.Int)
				b.Add(Simple(op.NegInt, v300, v300))
			},
			want: []string{
				"0000: move/from16 v0, v301",
				"0002: neg-int v0, v0",
				"0003: move/16 v301, v0",
			},
			units: []uint16{0x0002, 0x012d, 0x007b, 0x0003, 0x012d, 0x0000},
		},
		{
			name: "array-length",
			add: func(b *Builder) {
				b.Add(Simple(op.ArrayLength, Reg(300, cst.Int), Reg(300, cst.Type("[I"))))
			},
			want: []string{
				"0000: move-object/from16 v0, v301",
				"0002: array-length v0, v0",
				"0003: move/16 v301, v0",
			},
			units: []uint16{0x0008, 0x012d, 0x0021, 0x0003, 0x012d, 0x0000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.add(b)

			f := finish(t, b, FinishParams{Unreserved: 301})
			require.GreaterOrEqual(t, f.Reserved(), 1)
			require.Equal(t, 302, f.RegisterCount())

			var got []string
			for _, insn := range f.Insns() {
				got = append(got, insn.String())
			}
			require.Equal(t, tt.want, got)

			units := f.Encode(resolverFunc(func(cst.Constant) int { return 0 }))
			require.Equal(t, len(tt.units), f.CodeSize())
			require.Equal(t, tt.units, units)
		})
	}
}

func TestFinishExpandsNonContiguousInvoke(t *testing.T) {
	b := NewBuilder()
	m := cst.MethodRef{Class: "LFoo;", Name: "six", Proto: "(IIIIII)V"}
	var args []Register
	for i := 0; i < 6; i++ {
		args = append(args, Reg(2*i, cst.Int))
	}
	b.Invoke(op.InvokeStatic, m, args...)

	f := finish(t, b, FinishParams{Unreserved: 20})
	require.Equal(t, 6, f.Reserved())
	require.Equal(t, 26, f.RegisterCount())
	ops := realOps(f)
	require.Len(t, ops, 7)
	require.Equal(t, op.InvokeStaticRange, ops[6])
	for _, code := range ops[:5] {
		require.Equal(t, op.Move, code)
	}
	// v16 no longer fits a nibble.
	require.Equal(t, op.MoveFrom16, ops[5])
	last := f.Insns()[len(f.Insns())-1]
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, last.Registers().Words())
	require.Equal(t, 6, f.OutsSize())
}

func TestReservationTraceIsMonotonic(t *testing.T) {
	b := NewBuilder()
	m := cst.MethodRef{Class: "LFoo;", Name: "f", Proto: "(JJ)V"}
	b.Invoke(op.InvokeStatic, m, Reg(14, cst.Long), Reg(16, cst.Long))
	b.CheckCast(Reg(260, cst.Object), cst.Object)
	b.Return()

	f := finish(t, b, FinishParams{Unreserved: 261})
	trace := f.ReservationTrace()
	require.NotEmpty(t, trace)
	for i := 1; i < len(trace); i++ {
		require.GreaterOrEqual(t, trace[i], trace[i-1])
	}
	require.Equal(t, f.Reserved(), trace[len(trace)-1])
	require.Equal(t, 1, f.Reserved())
}

func TestFinishRewritesLongConditional(t *testing.T) {
	b := NewBuilder()
	far := b.NewLabel()
	b.If(op.IfEqz, far, Reg(0, cst.Int))
	for i := 0; i < 32768; i++ {
		b.Add(Simple(op.Nop))
	}
	b.Mark(far)
	b.Return()

	f := finish(t, b, FinishParams{Unreserved: 1})
	insns := f.Insns()
	require.Equal(t, op.IfNez, insns[0].Op())
	require.Equal(t, op.Goto32, insns[1].Op())
	require.True(t, insns[2].IsMarker())
	require.Equal(t, insns[2].Label(), insns[0].Target())
	require.Equal(t, 5, f.Address(insns[0].Target()))
	require.Equal(t, far, insns[1].Target())
	require.Equal(t, 5+32768, f.Address(far))
	require.Equal(t, 5+32768+1, f.CodeSize())
	require.Equal(t, 3, f.BranchPasses())

	units := f.Encode(nil)
	require.Equal(t, []uint16{0x0039, 5, 0x002a, 32771, 0}, units[:5])
}

func TestFinishUnpairedConditional(t *testing.T) {
	b := NewBuilder()
	far := b.NewLabel()
	b.If(op.IfEqz, far, Reg(0, cst.Int))
	for i := 0; i < 32768; i++ {
		b.Add(Simple(op.Nop))
	}
	b.Mark(far)
	b.Return()
	block, err := b.Build()
	require.NoError(t, err)
	// Drop the fall-through marker the builder placed after the branch.
	block.insns = append(block.insns[:1], block.insns[2:]...)

	requireInvariant(t, "unpaired conditional branch", func() {
		_, _ = Finish(block, FinishParams{Unreserved: 1})
	})
}

func TestFinishWidensGoto(t *testing.T) {
	tests := []struct {
		name string
		nops int
		want op.Code
	}{
		{"byte", 10, op.Goto},
		{"short", 200, op.Goto16},
		{"int", 40000, op.Goto32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			end := b.NewLabel()
			b.Goto(end)
			for i := 0; i < tt.nops; i++ {
				b.Add(Simple(op.Nop))
			}
			b.Mark(end)
			b.Return()
			f := finish(t, b, FinishParams{})
			require.Equal(t, tt.want, f.Insns()[0].Op())
		})
	}
}

func TestGotoToItselfUsesWideForm(t *testing.T) {
	b := NewBuilder()
	loop := b.NewLabel()
	b.Mark(loop)
	b.Goto(loop)

	f := finish(t, b, FinishParams{})
	require.Equal(t, []op.Code{op.Goto32}, realOps(f))
	require.Equal(t, []uint16{0x002a, 0, 0}, f.Encode(nil))
}

func TestAssignAddressesIsIdempotent(t *testing.T) {
	b := NewBuilder()
	b.Const(Reg(0, cst.Int), 100000)
	b.PackedSwitch(Reg(0, cst.Int), 0)
	b.Return()
	block, err := b.Build()
	require.NoError(t, err)

	first, size1 := AssignAddresses(block.Insns())
	second, size2 := AssignAddresses(first)
	require.Equal(t, size1, size2)
	require.Equal(t, first, second)
}

func TestFinishPackedSwitch(t *testing.T) {
	b := NewBuilder()
	one := b.NewLabel()
	two := b.NewLabel()
	b.PackedSwitch(Reg(0, cst.Int), 0, one, two)
	b.Mark(one)
	b.Return()
	b.Mark(two)
	b.Return()

	f := finish(t, b, FinishParams{Unreserved: 1})
	require.Equal(t, 14, f.CodeSize())
	require.Equal(t, []uint16{
		0x002b, 6, 0, // packed-switch v0, +6
		0x000e, 0x000e,
		0x0000, // alignment
		0x0100, 2, 0, 0, 3, 0, 4, 0,
	}, f.Encode(nil))
}

func TestFinishSwitchOnHighRegisterKeepsUserAddress(t *testing.T) {
	b := NewBuilder()
	one := b.NewLabel()
	b.SparseSwitch(Reg(300, cst.Int), []int32{7}, []Label{one})
	b.Mark(one)
	b.Return()

	f := finish(t, b, FinishParams{Unreserved: 301})
	require.Equal(t, 1, f.Reserved())
	insns := f.Insns()
	require.Equal(t, op.MoveFrom16, insns[0].Op())
	require.True(t, insns[1].IsMarker())
	require.Equal(t, op.SparseSwitch, insns[2].Op())

	units := f.Encode(nil)
	// The payload follows the switch at 2 (3 units), the return at 5 and
	// no spacer at the even address 6.
	require.Equal(t, []uint16{0x0002, 301}, units[:2])
	require.Equal(t, []uint16{0x002c, 4, 0}, units[2:5])
	require.Equal(t, []uint16{0x0200, 1, 7, 0, 3, 0}, units[6:])
}

func TestFinishFillArrayData(t *testing.T) {
	b := NewBuilder()
	b.FillArrayData(Reg(0, cst.Type("[B")), 1, []int64{1, 2, 3})
	b.Return()

	f := finish(t, b, FinishParams{Unreserved: 1})
	require.Equal(t, []uint16{
		0x0026, 4, 0,
		0x000e,
		0x0300, 1, 3, 0, 0x0201, 0x0003,
	}, f.Encode(nil))
}

func TestAlignWideRegisters(t *testing.T) {
	t.Run("locals", func(t *testing.T) {
		b := NewBuilder()
		b.Const(Reg(1, cst.Long), 1)
		b.Return()
		f := finish(t, b, FinishParams{Unreserved: 3, Align64Bits: true})
		require.Equal(t, 1, f.Reserved())
		require.Equal(t, 0, f.ReservedParams())
		require.Equal(t, 4, f.RegisterCount())
		require.Equal(t, 2, f.Insns()[0].Registers()[0].Num)
	})
	t.Run("parameters", func(t *testing.T) {
		b := NewBuilder()
		b.Return(Reg(1, cst.Long))
		f := finish(t, b, FinishParams{Unreserved: 3, ParamSize: 2, Align64Bits: true})
		require.Equal(t, 0, f.Reserved())
		require.Equal(t, 1, f.ReservedParams())
		require.Equal(t, 4, f.RegisterCount())
		require.Equal(t, 2, f.Insns()[0].Registers()[0].Num)
	})
	t.Run("aligned", func(t *testing.T) {
		b := NewBuilder()
		b.Const(Reg(0, cst.Long), 1)
		b.Return()
		f := finish(t, b, FinishParams{Unreserved: 2, Align64Bits: true})
		require.Equal(t, 0, f.Reserved())
		require.Equal(t, 2, f.RegisterCount())
	})
	t.Run("disabled", func(t *testing.T) {
		b := NewBuilder()
		b.Const(Reg(1, cst.Long), 1)
		b.Return()
		f := finish(t, b, FinishParams{Unreserved: 3})
		require.Equal(t, 0, f.Reserved())
	})
}

func TestFinishIndexOverflow(t *testing.T) {
	b := NewBuilder()
	b.CheckCast(Reg(0, cst.Object), cst.Type("LBig;"))
	block, err := b.Build()
	require.NoError(t, err)

	_, err = Finish(block, FinishParams{
		Unreserved: 1,
		Resolver:   resolverFunc(func(cst.Constant) int { return 70000 }),
	})
	require.Error(t, err)
	kind, ok := errz.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errz.ErrSizeOverflow, kind)
}

func TestConstStringJumbo(t *testing.T) {
	b := NewBuilder()
	b.ConstString(Reg(0, cst.StringT), "big")
	resolver := resolverFunc(func(cst.Constant) int { return 0x12345 })
	block, err := b.Build()
	require.NoError(t, err)
	f, err := Finish(block, FinishParams{Unreserved: 1, Resolver: resolver})
	require.NoError(t, err)
	require.Equal(t, []op.Code{op.ConstStringJumbo}, realOps(f))
	require.Equal(t, []uint16{0x001b, 0x2345, 0x0001}, f.Encode(resolver))
}

func TestOutsSize(t *testing.T) {
	b := NewBuilder()
	m := cst.MethodRef{Class: "LFoo;", Name: "bar", Proto: "(IJ)V"}
	b.Invoke(op.InvokeStatic, m, Reg(0, cst.Int), Reg(1, cst.Long))
	b.Return()

	f := finish(t, b, FinishParams{Unreserved: 3})
	require.Equal(t, 3, f.OutsSize())
	require.Equal(t, []uint16{0x3071, 0, 0x0210, 0x000e}, f.Encode(nil))
}

func TestPositions(t *testing.T) {
	b := NewBuilder()
	v0 := Reg(0, cst.Int)
	target := b.NewLabel()
	b.SetLine(10)
	b.Const(v0, 1)
	b.Const(v0, 2)
	b.Mark(target)
	b.SetLine(12)
	b.Const(v0, 3)
	b.SetLine(13)
	b.Return(v0)

	f := finish(t, b, FinishParams{Unreserved: 1})
	require.Nil(t, f.Positions(PositionsNone))
	require.Equal(t, []PositionEntry{
		{Address: 0, Line: 10},
		{Address: 2, Line: 12},
		{Address: 3, Line: 13},
	}, f.Positions(PositionsLines))
	require.Equal(t, []PositionEntry{{Address: 2, Line: 12}}, f.Positions(PositionsImportant))
}

func TestParsePositionPolicy(t *testing.T) {
	p, ok := ParsePositionPolicy("important")
	require.True(t, ok)
	require.Equal(t, PositionsImportant, p)
	_, ok = ParsePositionPolicy("everything")
	require.False(t, ok)
}

func TestExpansionKeepsPosition(t *testing.T) {
	b := NewBuilder()
	b.SetLine(42)
	b.CheckCast(Reg(300, cst.Object), cst.Object)

	f := finish(t, b, FinishParams{Unreserved: 301})
	for _, insn := range f.Insns() {
		require.Equal(t, 42, insn.Position().Line)
	}
	require.Equal(t, []PositionEntry{{Address: 0, Line: 42}}, f.Positions(PositionsLines))
}
