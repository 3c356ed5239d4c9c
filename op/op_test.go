package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(MoveFrom16)
	require.Equal(t, "move/from16", info.Name)
	require.Equal(t, Format22x, info.Format)
	require.Equal(t, Move16, info.Next)
	require.Equal(t, Move, info.Family)
	require.True(t, info.HasResult)
}

func TestGetInfoTable(t *testing.T) {
	tests := []struct {
		code   Code
		name   string
		format Format
		result bool
	}{
		{Nop, "nop", Format10x, false},
		{Const4, "const/4", Format11n, true},
		{ConstWideHigh16, "const-wide/high16", Format21h, true},
		{AgetWide, "aget-wide", Format23x, true},
		{AputShort, "aput-short", Format23x, false},
		{IgetObject, "iget-object", Format22c, true},
		{SputBoolean, "sput-boolean", Format21c, false},
		{IntToShort, "int-to-short", Format12x, true},
		{UshrLong, "ushr-long", Format23x, true},
		{RemDouble2Addr, "rem-double/2addr", Format12x, true},
		{RsubIntLit8, "rsub-int/lit8", Format22b, true},
		{InvokeInterfaceRange, "invoke-interface/range", Format3rc, false},
		{InvokePolymorphic, "invoke-polymorphic", Format45cc, false},
		{IfLez, "if-lez", Format21t, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetInfo(tt.code)
			require.True(t, info.Valid())
			require.Equal(t, tt.name, info.Name)
			require.Equal(t, tt.format, info.Format)
			require.Equal(t, tt.result, info.HasResult)
			require.Equal(t, tt.name, tt.code.String())
		})
	}
}

func TestUnknownOpcode(t *testing.T) {
	require.False(t, GetInfo(0x3e).Valid())
	require.False(t, GetInfo(Invalid).Valid())
	require.Equal(t, "invalid", Code(0x73).String())
}

func TestChains(t *testing.T) {
	tests := []struct {
		name  string
		chain []Code
	}{
		{"move", []Code{Move, MoveFrom16, Move16}},
		{"const", []Code{Const4, Const16, ConstHigh16, Const}},
		{"const-wide", []Code{ConstWide16, ConstWideHigh16, ConstWide32, ConstWide}},
		{"goto", []Code{Goto, Goto16, Goto32}},
		{"string", []Code{ConstString, ConstStringJumbo}},
		{"invoke", []Code{InvokeStatic, InvokeStaticRange}},
		{"binop", []Code{AddInt2Addr, AddInt}},
		{"lit", []Code{MulIntLit8, MulIntLit16}},
		{"shift", []Code{ShlIntLit8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Code
			for c := tt.chain[0]; c != Invalid; c = Next(c) {
				got = append(got, c)
				require.Equal(t, tt.chain[0], GetInfo(c).Family)
			}
			require.Equal(t, tt.chain, got)
		})
	}
}

func TestOpposites(t *testing.T) {
	require.Equal(t, IfNe, GetInfo(IfEq).Opposite)
	require.Equal(t, IfLt, GetInfo(IfGe).Opposite)
	require.Equal(t, IfGtz, GetInfo(IfLez).Opposite)
	require.True(t, GetInfo(IfGt).IsConditional())
	require.False(t, GetInfo(Goto16).IsConditional())
	require.True(t, GetInfo(Goto32).IsGoto())
}

func TestIndexKinds(t *testing.T) {
	require.Equal(t, IndexString, GetInfo(ConstStringJumbo).Index)
	require.Equal(t, IndexField, GetInfo(SgetChar).Index)
	require.Equal(t, IndexMethod, GetInfo(InvokeSuper).Index)
	require.Equal(t, IndexMethodAndProto, GetInfo(InvokePolymorphicRange).Index)
	require.Equal(t, IndexNone, GetInfo(AddInt).Index)
	require.True(t, GetInfo(InvokeDirectRange).Invoke)
	require.False(t, GetInfo(FilledNewArray).Invoke)
	require.True(t, GetInfo(ConstWide32).Wide)
}

func TestFormatCodeUnits(t *testing.T) {
	require.Equal(t, 1, Format12x.CodeUnits())
	require.Equal(t, 2, Format21c.CodeUnits())
	require.Equal(t, 3, Format35c.CodeUnits())
	require.Equal(t, 4, Format4rcc.CodeUnits())
	require.Equal(t, 5, Format51l.CodeUnits())
	require.Equal(t, 0, FormatSpecial.CodeUnits())
	require.Equal(t, "22x", Format22x.String())
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want Code
		ok   bool
	}{
		{"const/4", Const4, true},
		{"invoke-static/range", InvokeStaticRange, true},
		{"add-int/2addr", AddInt2Addr, true},
		{"iget-wide", IgetWide, true},
		{"if-nez", IfNez, true},
		{"invalid", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.name)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormatOperands(t *testing.T) {
	tests := []struct {
		format  Format
		literal bool
		list    bool
		regs    int
	}{
		{Format10x, false, false, 0},
		{Format11n, true, false, 1},
		{Format12x, false, false, 2},
		{Format21c, false, false, 1},
		{Format22s, true, false, 2},
		{Format23x, false, false, 3},
		{Format35c, false, true, -1},
		{Format4rcc, false, true, -1},
		{Format51l, true, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			require.Equal(t, tt.literal, tt.format.HasLiteral())
			require.Equal(t, tt.list, tt.format.IsRegisterList())
			require.Equal(t, tt.regs, tt.format.RegisterCount())
		})
	}
}
