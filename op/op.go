// Package op defines the Dalvik opcodes understood by the assembler.
//
// Every opcode belongs to exactly one format and may name a wider successor.
// Following the successors from any opcode walks the operation's widen chain,
// narrowest encoding first.
package op

// Code is a Dalvik opcode.
type Code uint16

// Invalid marks the absence of an opcode, e.g. the end of a widen chain or an
// instruction whose chain was exhausted and needs expansion.
const Invalid Code = 0xffff

const (
	Nop                  Code = 0x00
	Move                 Code = 0x01
	MoveFrom16           Code = 0x02
	Move16               Code = 0x03
	MoveWide             Code = 0x04
	MoveWideFrom16       Code = 0x05
	MoveWide16           Code = 0x06
	MoveObject           Code = 0x07
	MoveObjectFrom16     Code = 0x08
	MoveObject16         Code = 0x09
	MoveResult           Code = 0x0a
	MoveResultWide       Code = 0x0b
	MoveResultObject     Code = 0x0c
	MoveException        Code = 0x0d
	ReturnVoid           Code = 0x0e
	Return               Code = 0x0f
	ReturnWide           Code = 0x10
	ReturnObject         Code = 0x11
	Const4               Code = 0x12
	Const16              Code = 0x13
	Const                Code = 0x14
	ConstHigh16          Code = 0x15
	ConstWide16          Code = 0x16
	ConstWide32          Code = 0x17
	ConstWide            Code = 0x18
	ConstWideHigh16      Code = 0x19
	ConstString          Code = 0x1a
	ConstStringJumbo     Code = 0x1b
	ConstClass           Code = 0x1c
	MonitorEnter         Code = 0x1d
	MonitorExit          Code = 0x1e
	CheckCast            Code = 0x1f
	InstanceOf           Code = 0x20
	ArrayLength          Code = 0x21
	NewInstance          Code = 0x22
	NewArray             Code = 0x23
	FilledNewArray       Code = 0x24
	FilledNewArrayRange  Code = 0x25
	FillArrayData        Code = 0x26
	Throw                Code = 0x27
	Goto                 Code = 0x28
	Goto16               Code = 0x29
	Goto32               Code = 0x2a
	PackedSwitch         Code = 0x2b
	SparseSwitch         Code = 0x2c
	CmplFloat            Code = 0x2d
	CmpgFloat            Code = 0x2e
	CmplDouble           Code = 0x2f
	CmpgDouble           Code = 0x30
	CmpLong              Code = 0x31
	IfEq                 Code = 0x32
	IfNe                 Code = 0x33
	IfLt                 Code = 0x34
	IfGe                 Code = 0x35
	IfGt                 Code = 0x36
	IfLe                 Code = 0x37
	IfEqz                Code = 0x38
	IfNez                Code = 0x39
	IfLtz                Code = 0x3a
	IfGez                Code = 0x3b
	IfGtz                Code = 0x3c
	IfLez                Code = 0x3d
	Aget                 Code = 0x44
	AgetWide             Code = 0x45
	AgetObject           Code = 0x46
	AgetBoolean          Code = 0x47
	AgetByte             Code = 0x48
	AgetChar             Code = 0x49
	AgetShort            Code = 0x4a
	Aput                 Code = 0x4b
	AputWide             Code = 0x4c
	AputObject           Code = 0x4d
	AputBoolean          Code = 0x4e
	AputByte             Code = 0x4f
	AputChar             Code = 0x50
	AputShort            Code = 0x51
	Iget                 Code = 0x52
	IgetWide             Code = 0x53
	IgetObject           Code = 0x54
	IgetBoolean          Code = 0x55
	IgetByte             Code = 0x56
	IgetChar             Code = 0x57
	IgetShort            Code = 0x58
	Iput                 Code = 0x59
	IputWide             Code = 0x5a
	IputObject           Code = 0x5b
	IputBoolean          Code = 0x5c
	IputByte             Code = 0x5d
	IputChar             Code = 0x5e
	IputShort            Code = 0x5f
	Sget                 Code = 0x60
	SgetWide             Code = 0x61
	SgetObject           Code = 0x62
	SgetBoolean          Code = 0x63
	SgetByte             Code = 0x64
	SgetChar             Code = 0x65
	SgetShort            Code = 0x66
	Sput                 Code = 0x67
	SputWide             Code = 0x68
	SputObject           Code = 0x69
	SputBoolean          Code = 0x6a
	SputByte             Code = 0x6b
	SputChar             Code = 0x6c
	SputShort            Code = 0x6d
	InvokeVirtual        Code = 0x6e
	InvokeSuper          Code = 0x6f
	InvokeDirect         Code = 0x70
	InvokeStatic         Code = 0x71
	InvokeInterface      Code = 0x72
	InvokeVirtualRange   Code = 0x74
	InvokeSuperRange     Code = 0x75
	InvokeDirectRange    Code = 0x76
	InvokeStaticRange    Code = 0x77
	InvokeInterfaceRange Code = 0x78
	NegInt               Code = 0x7b
	NotInt               Code = 0x7c
	NegLong              Code = 0x7d
	NotLong              Code = 0x7e
	NegFloat             Code = 0x7f
	NegDouble            Code = 0x80
	IntToLong            Code = 0x81
	IntToFloat           Code = 0x82
	IntToDouble          Code = 0x83
	LongToInt            Code = 0x84
	LongToFloat          Code = 0x85
	LongToDouble         Code = 0x86
	FloatToInt           Code = 0x87
	FloatToLong          Code = 0x88
	FloatToDouble        Code = 0x89
	DoubleToInt          Code = 0x8a
	DoubleToLong         Code = 0x8b
	DoubleToFloat        Code = 0x8c
	IntToByte            Code = 0x8d
	IntToChar            Code = 0x8e
	IntToShort           Code = 0x8f

	AddInt    Code = 0x90
	SubInt    Code = 0x91
	MulInt    Code = 0x92
	DivInt    Code = 0x93
	RemInt    Code = 0x94
	AndInt    Code = 0x95
	OrInt     Code = 0x96
	XorInt    Code = 0x97
	ShlInt    Code = 0x98
	ShrInt    Code = 0x99
	UshrInt   Code = 0x9a
	AddLong   Code = 0x9b
	SubLong   Code = 0x9c
	MulLong   Code = 0x9d
	DivLong   Code = 0x9e
	RemLong   Code = 0x9f
	AndLong   Code = 0xa0
	OrLong    Code = 0xa1
	XorLong   Code = 0xa2
	ShlLong   Code = 0xa3
	ShrLong   Code = 0xa4
	UshrLong  Code = 0xa5
	AddFloat  Code = 0xa6
	SubFloat  Code = 0xa7
	MulFloat  Code = 0xa8
	DivFloat  Code = 0xa9
	RemFloat  Code = 0xaa
	AddDouble Code = 0xab
	SubDouble Code = 0xac
	MulDouble Code = 0xad
	DivDouble Code = 0xae
	RemDouble Code = 0xaf

	// The /2addr forms are 0x20 above their three-register counterparts.
	AddInt2Addr    Code = 0xb0
	SubInt2Addr    Code = 0xb1
	MulInt2Addr    Code = 0xb2
	DivInt2Addr    Code = 0xb3
	RemInt2Addr    Code = 0xb4
	AndInt2Addr    Code = 0xb5
	OrInt2Addr     Code = 0xb6
	XorInt2Addr    Code = 0xb7
	ShlInt2Addr    Code = 0xb8
	ShrInt2Addr    Code = 0xb9
	UshrInt2Addr   Code = 0xba
	AddLong2Addr   Code = 0xbb
	SubLong2Addr   Code = 0xbc
	MulLong2Addr   Code = 0xbd
	DivLong2Addr   Code = 0xbe
	RemLong2Addr   Code = 0xbf
	AndLong2Addr   Code = 0xc0
	OrLong2Addr    Code = 0xc1
	XorLong2Addr   Code = 0xc2
	ShlLong2Addr   Code = 0xc3
	ShrLong2Addr   Code = 0xc4
	UshrLong2Addr  Code = 0xc5
	AddFloat2Addr  Code = 0xc6
	SubFloat2Addr  Code = 0xc7
	MulFloat2Addr  Code = 0xc8
	DivFloat2Addr  Code = 0xc9
	RemFloat2Addr  Code = 0xca
	AddDouble2Addr Code = 0xcb
	SubDouble2Addr Code = 0xcc
	MulDouble2Addr Code = 0xcd
	DivDouble2Addr Code = 0xce
	RemDouble2Addr Code = 0xcf

	AddIntLit16 Code = 0xd0
	RsubInt     Code = 0xd1
	MulIntLit16 Code = 0xd2
	DivIntLit16 Code = 0xd3
	RemIntLit16 Code = 0xd4
	AndIntLit16 Code = 0xd5
	OrIntLit16  Code = 0xd6
	XorIntLit16 Code = 0xd7
	AddIntLit8  Code = 0xd8
	RsubIntLit8 Code = 0xd9
	MulIntLit8  Code = 0xda
	DivIntLit8  Code = 0xdb
	RemIntLit8  Code = 0xdc
	AndIntLit8  Code = 0xdd
	OrIntLit8   Code = 0xde
	XorIntLit8  Code = 0xdf
	ShlIntLit8  Code = 0xe0
	ShrIntLit8  Code = 0xe1
	UshrIntLit8 Code = 0xe2

	InvokePolymorphic      Code = 0xfa
	InvokePolymorphicRange Code = 0xfb
	ConstMethodType        Code = 0xff
)

// IndexKind describes which constant pool an instruction's index operand
// refers to.
type IndexKind uint8

const (
	IndexNone IndexKind = iota
	IndexString
	IndexType
	IndexField
	IndexMethod
	IndexProto
	// IndexMethodAndProto is used by invoke-polymorphic, which carries a
	// method index and a proto index.
	IndexMethodAndProto
)

// Info contains information about an opcode.
type Info struct {
	Code   Code
	Name   string
	Format Format
	// Family is the narrowest member of the opcode's widen chain. All
	// members of a chain share a family.
	Family Code
	// Next is the next wider encoding of the same operation, or Invalid.
	Next Code
	// Opposite is the negated form of a conditional branch, or Invalid.
	Opposite Code
	// HasResult is true when the first register operand is written.
	HasResult bool
	// Wide is true for opcodes whose literal is 64 bits.
	Wide  bool
	Index IndexKind
	// Invoke marks call instructions, which determine a method's outs size.
	Invoke bool
}

// Valid reports whether the info describes a known opcode.
func (i Info) Valid() bool {
	return i.Format != FormatNone
}

// IsConditional reports whether the opcode is a conditional branch.
func (i Info) IsConditional() bool {
	return i.Opposite != Invalid
}

// IsGoto reports whether the opcode is an unconditional jump.
func (i Info) IsGoto() bool {
	return i.Family == Goto
}

var infos = make([]Info, 256)

func init() {
	for i := range infos {
		infos[i] = Info{Code: Code(i), Family: Invalid, Next: Invalid, Opposite: Invalid}
	}
	type opInfo struct {
		op     Code
		name   string
		format Format
		next   Code
		result bool
	}
	ops := []opInfo{
		{Nop, "nop", Format10x, Invalid, false},
		{Move, "move", Format12x, MoveFrom16, true},
		{MoveFrom16, "move/from16", Format22x, Move16, true},
		{Move16, "move/16", Format32x, Invalid, true},
		{MoveWide, "move-wide", Format12x, MoveWideFrom16, true},
		{MoveWideFrom16, "move-wide/from16", Format22x, MoveWide16, true},
		{MoveWide16, "move-wide/16", Format32x, Invalid, true},
		{MoveObject, "move-object", Format12x, MoveObjectFrom16, true},
		{MoveObjectFrom16, "move-object/from16", Format22x, MoveObject16, true},
		{MoveObject16, "move-object/16", Format32x, Invalid, true},
		{MoveResult, "move-result", Format11x, Invalid, true},
		{MoveResultWide, "move-result-wide", Format11x, Invalid, true},
		{MoveResultObject, "move-result-object", Format11x, Invalid, true},
		{MoveException, "move-exception", Format11x, Invalid, true},
		{ReturnVoid, "return-void", Format10x, Invalid, false},
		{Return, "return", Format11x, Invalid, false},
		{ReturnWide, "return-wide", Format11x, Invalid, false},
		{ReturnObject, "return-object", Format11x, Invalid, false},
		{Const4, "const/4", Format11n, Const16, true},
		{Const16, "const/16", Format21s, ConstHigh16, true},
		{ConstHigh16, "const/high16", Format21h, Const, true},
		{Const, "const", Format31i, Invalid, true},
		{ConstWide16, "const-wide/16", Format21s, ConstWideHigh16, true},
		{ConstWideHigh16, "const-wide/high16", Format21h, ConstWide32, true},
		{ConstWide32, "const-wide/32", Format31i, ConstWide, true},
		{ConstWide, "const-wide", Format51l, Invalid, true},
		{ConstString, "const-string", Format21c, ConstStringJumbo, true},
		{ConstStringJumbo, "const-string/jumbo", Format31c, Invalid, true},
		{ConstClass, "const-class", Format21c, Invalid, true},
		{MonitorEnter, "monitor-enter", Format11x, Invalid, false},
		{MonitorExit, "monitor-exit", Format11x, Invalid, false},
		{CheckCast, "check-cast", Format21c, Invalid, true},
		{InstanceOf, "instance-of", Format22c, Invalid, true},
		{ArrayLength, "array-length", Format12x, Invalid, true},
		{NewInstance, "new-instance", Format21c, Invalid, true},
		{NewArray, "new-array", Format22c, Invalid, true},
		{FilledNewArray, "filled-new-array", Format35c, FilledNewArrayRange, false},
		{FilledNewArrayRange, "filled-new-array/range", Format3rc, Invalid, false},
		{FillArrayData, "fill-array-data", Format31t, Invalid, false},
		{Throw, "throw", Format11x, Invalid, false},
		{Goto, "goto", Format10t, Goto16, false},
		{Goto16, "goto/16", Format20t, Goto32, false},
		{Goto32, "goto/32", Format30t, Invalid, false},
		{PackedSwitch, "packed-switch", Format31t, Invalid, false},
		{SparseSwitch, "sparse-switch", Format31t, Invalid, false},
		{CmplFloat, "cmpl-float", Format23x, Invalid, true},
		{CmpgFloat, "cmpg-float", Format23x, Invalid, true},
		{CmplDouble, "cmpl-double", Format23x, Invalid, true},
		{CmpgDouble, "cmpg-double", Format23x, Invalid, true},
		{CmpLong, "cmp-long", Format23x, Invalid, true},
		{IfEq, "if-eq", Format22t, Invalid, false},
		{IfNe, "if-ne", Format22t, Invalid, false},
		{IfLt, "if-lt", Format22t, Invalid, false},
		{IfGe, "if-ge", Format22t, Invalid, false},
		{IfGt, "if-gt", Format22t, Invalid, false},
		{IfLe, "if-le", Format22t, Invalid, false},
		{IfEqz, "if-eqz", Format21t, Invalid, false},
		{IfNez, "if-nez", Format21t, Invalid, false},
		{IfLtz, "if-ltz", Format21t, Invalid, false},
		{IfGez, "if-gez", Format21t, Invalid, false},
		{IfGtz, "if-gtz", Format21t, Invalid, false},
		{IfLez, "if-lez", Format21t, Invalid, false},
		{InvokeVirtual, "invoke-virtual", Format35c, InvokeVirtualRange, false},
		{InvokeSuper, "invoke-super", Format35c, InvokeSuperRange, false},
		{InvokeDirect, "invoke-direct", Format35c, InvokeDirectRange, false},
		{InvokeStatic, "invoke-static", Format35c, InvokeStaticRange, false},
		{InvokeInterface, "invoke-interface", Format35c, InvokeInterfaceRange, false},
		{InvokeVirtualRange, "invoke-virtual/range", Format3rc, Invalid, false},
		{InvokeSuperRange, "invoke-super/range", Format3rc, Invalid, false},
		{InvokeDirectRange, "invoke-direct/range", Format3rc, Invalid, false},
		{InvokeStaticRange, "invoke-static/range", Format3rc, Invalid, false},
		{InvokeInterfaceRange, "invoke-interface/range", Format3rc, Invalid, false},
		{AddIntLit16, "add-int/lit16", Format22s, Invalid, true},
		{RsubInt, "rsub-int", Format22s, Invalid, true},
		{MulIntLit16, "mul-int/lit16", Format22s, Invalid, true},
		{DivIntLit16, "div-int/lit16", Format22s, Invalid, true},
		{RemIntLit16, "rem-int/lit16", Format22s, Invalid, true},
		{AndIntLit16, "and-int/lit16", Format22s, Invalid, true},
		{OrIntLit16, "or-int/lit16", Format22s, Invalid, true},
		{XorIntLit16, "xor-int/lit16", Format22s, Invalid, true},
		{AddIntLit8, "add-int/lit8", Format22b, AddIntLit16, true},
		{RsubIntLit8, "rsub-int/lit8", Format22b, RsubInt, true},
		{MulIntLit8, "mul-int/lit8", Format22b, MulIntLit16, true},
		{DivIntLit8, "div-int/lit8", Format22b, DivIntLit16, true},
		{RemIntLit8, "rem-int/lit8", Format22b, RemIntLit16, true},
		{AndIntLit8, "and-int/lit8", Format22b, AndIntLit16, true},
		{OrIntLit8, "or-int/lit8", Format22b, OrIntLit16, true},
		{XorIntLit8, "xor-int/lit8", Format22b, XorIntLit16, true},
		{ShlIntLit8, "shl-int/lit8", Format22b, Invalid, true},
		{ShrIntLit8, "shr-int/lit8", Format22b, Invalid, true},
		{UshrIntLit8, "ushr-int/lit8", Format22b, Invalid, true},
		{InvokePolymorphic, "invoke-polymorphic", Format45cc, InvokePolymorphicRange, false},
		{InvokePolymorphicRange, "invoke-polymorphic/range", Format4rcc, Invalid, false},
		{ConstMethodType, "const-method-type", Format21c, Invalid, true},
	}

	// Array and field accessors come in groups of seven typed variants.
	kinds := []string{"", "-wide", "-object", "-boolean", "-byte", "-char", "-short"}
	groups := []struct {
		base   Code
		name   string
		format Format
		result bool
	}{
		{Aget, "aget", Format23x, true},
		{Aput, "aput", Format23x, false},
		{Iget, "iget", Format22c, true},
		{Iput, "iput", Format22c, false},
		{Sget, "sget", Format21c, true},
		{Sput, "sput", Format21c, false},
	}
	for _, g := range groups {
		for i, k := range kinds {
			ops = append(ops, opInfo{g.base + Code(i), g.name + k, g.format, Invalid, g.result})
		}
	}

	unary := []string{
		"neg-int", "not-int", "neg-long", "not-long", "neg-float", "neg-double",
		"int-to-long", "int-to-float", "int-to-double", "long-to-int",
		"long-to-float", "long-to-double", "float-to-int", "float-to-long",
		"float-to-double", "double-to-int", "double-to-long", "double-to-float",
		"int-to-byte", "int-to-char", "int-to-short",
	}
	for i, name := range unary {
		ops = append(ops, opInfo{NegInt + Code(i), name, Format12x, Invalid, true})
	}

	binary := []string{
		"add-int", "sub-int", "mul-int", "div-int", "rem-int", "and-int",
		"or-int", "xor-int", "shl-int", "shr-int", "ushr-int",
		"add-long", "sub-long", "mul-long", "div-long", "rem-long", "and-long",
		"or-long", "xor-long", "shl-long", "shr-long", "ushr-long",
		"add-float", "sub-float", "mul-float", "div-float", "rem-float",
		"add-double", "sub-double", "mul-double", "div-double", "rem-double",
	}
	for i, name := range binary {
		code := AddInt + Code(i)
		ops = append(ops,
			opInfo{code, name, Format23x, Invalid, true},
			opInfo{code + 0x20, name + "/2addr", Format12x, code, true},
		)
	}

	for _, o := range ops {
		infos[o.op] = Info{
			Code:      o.op,
			Name:      o.name,
			Format:    o.format,
			Next:      o.next,
			Family:    Invalid,
			Opposite:  Invalid,
			HasResult: o.result,
		}
	}

	// Families: walk each chain from its head.
	for i := range infos {
		info := &infos[i]
		if !info.Valid() || info.Family != Invalid {
			continue
		}
		if isChainMember(Code(i)) {
			continue
		}
		for c := Code(i); c != Invalid; c = infos[c].Next {
			infos[c].Family = Code(i)
		}
	}

	opposites := [][2]Code{
		{IfEq, IfNe}, {IfLt, IfGe}, {IfGt, IfLe},
		{IfEqz, IfNez}, {IfLtz, IfGez}, {IfGtz, IfLez},
	}
	for _, pair := range opposites {
		infos[pair[0]].Opposite = pair[1]
		infos[pair[1]].Opposite = pair[0]
	}

	for _, c := range []Code{ConstWide16, ConstWideHigh16, ConstWide32, ConstWide} {
		infos[c].Wide = true
	}

	indexed := map[Code]IndexKind{
		ConstString: IndexString, ConstStringJumbo: IndexString,
		ConstClass: IndexType, CheckCast: IndexType, InstanceOf: IndexType,
		NewInstance: IndexType, NewArray: IndexType,
		FilledNewArray: IndexType, FilledNewArrayRange: IndexType,
		InvokePolymorphic: IndexMethodAndProto, InvokePolymorphicRange: IndexMethodAndProto,
		ConstMethodType: IndexProto,
	}
	for c := Iget; c <= SputShort; c++ {
		indexed[c] = IndexField
	}
	for c := InvokeVirtual; c <= InvokeInterfaceRange; c++ {
		if c == 0x73 {
			continue
		}
		indexed[c] = IndexMethod
		infos[c].Invoke = true
	}
	infos[InvokePolymorphic].Invoke = true
	infos[InvokePolymorphicRange].Invoke = true
	for c, kind := range indexed {
		infos[c].Index = kind
	}
}

// isChainMember reports whether some other opcode names c as its successor.
func isChainMember(c Code) bool {
	for _, info := range infos {
		if info.Valid() && info.Next == c {
			return true
		}
	}
	return false
}

// GetInfo returns information about the given opcode. Unknown opcodes yield
// an Info whose Valid method returns false.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{Code: op, Family: Invalid, Next: Invalid, Opposite: Invalid}
	}
	return infos[op]
}

// Next returns the next wider encoding of op, or Invalid.
func Next(op Code) Code {
	return GetInfo(op).Next
}

// String returns the Dalvik mnemonic of the opcode.
func (c Code) String() string {
	if info := GetInfo(c); info.Valid() {
		return info.Name
	}
	return "invalid"
}

var byName = map[string]Code{}

func init() {
	for _, info := range infos {
		if info.Valid() {
			byName[info.Name] = info.Code
		}
	}
}

// Lookup returns the opcode with the given mnemonic.
func Lookup(name string) (Code, bool) {
	c, ok := byName[name]
	return c, ok
}
