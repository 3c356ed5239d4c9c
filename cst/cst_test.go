package cst

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeCategory(t *testing.T) {
	require.Equal(t, 2, Long.Category())
	require.Equal(t, 2, Double.Category())
	require.Equal(t, 1, Int.Category())
	require.Equal(t, 1, Object.Category())
	require.Equal(t, 0, Void.Category())
	require.True(t, Type("[I").IsReference())
	require.False(t, Float.IsReference())
}

func TestTypeValid(t *testing.T) {
	valid := []Type{"I", "J", "[[J", "Ljava/lang/String;", "[Lfoo/Bar;", "V"}
	for _, typ := range valid {
		require.True(t, typ.Valid(), typ)
	}
	invalid := []Type{"", "X", "[V", "Lfoo", "L;", "II", "Lfoo;bar;"}
	for _, typ := range invalid {
		require.False(t, typ.Valid(), typ)
	}
}

func TestProtoParse(t *testing.T) {
	ret, params, err := Proto("(IJ[Ljava/lang/String;D)Z").Parse()
	require.Nil(t, err)
	require.Equal(t, Boolean, ret)
	require.Equal(t, []Type{Int, Long, "[Ljava/lang/String;", Double}, params)
	require.Equal(t, 6, Proto("(IJ[Ljava/lang/String;D)Z").ParamWords())
	require.Equal(t, "ZIJLD", Proto("(IJ[Ljava/lang/String;D)Z").Shorty())

	for _, bad := range []Proto{"", "()", "(V)V", "(I", "(Lfoo)V", "(I)X"} {
		_, _, err := bad.Parse()
		require.Error(t, err, bad)
	}
}

func TestParseRefs(t *testing.T) {
	m, err := ParseMethodRef("Lfoo/Bar;->baz(I)V")
	require.Nil(t, err)
	require.Equal(t, MethodRef{Class: "Lfoo/Bar;", Name: "baz", Proto: "(I)V"}, m)
	require.Equal(t, "Lfoo/Bar;->baz(I)V", m.String())

	f, err := ParseFieldRef("Lfoo/Bar;->count:J")
	require.Nil(t, err)
	require.Equal(t, FieldRef{Class: "Lfoo/Bar;", Name: "count", Type: Long}, f)

	_, err = ParseMethodRef("Lfoo/Bar;.baz()V")
	require.Error(t, err)
	_, err = ParseFieldRef("Lfoo/Bar;->count")
	require.Error(t, err)
}
