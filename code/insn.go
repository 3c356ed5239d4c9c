package code

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/op"
)

// Kind distinguishes real instructions from the zero-size and variable-size
// pseudo-instructions that share the instruction list.
type Kind uint8

const (
	// KindPlain is an opcode instruction without a branch target.
	KindPlain Kind = iota
	// KindBranch is an opcode instruction that refers to a label: goto,
	// conditional branches, switches and fill-array-data.
	KindBranch
	// KindMarker marks the position of a label.
	KindMarker
	// KindLocalStart starts a local variable in its register.
	KindLocalStart
	// KindLocalEnd ends the local variable held by its register.
	KindLocalEnd
	// KindSpacer is a nop emitted only at odd addresses, to align payloads.
	KindSpacer
	// KindPayload holds switch or array data.
	KindPayload
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindBranch:
		return "branch"
	case KindMarker:
		return "marker"
	case KindLocalStart:
		return "local-start"
	case KindLocalEnd:
		return "local-end"
	case KindSpacer:
		return "spacer"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Label identifies a code address. Labels are handles into the builder's
// label arena; two labels are the same address exactly when they are equal.
type Label int32

// NoLabel is the absent label.
const NoLabel Label = -1

func (l Label) String() string {
	if l == NoLabel {
		return "<none>"
	}
	return fmt.Sprintf("L%d", int32(l))
}

// Position is the source position attached to an instruction. A zero line
// means no information.
type Position struct {
	Line int
}

// NoPosition carries no source information.
var NoPosition = Position{}

// Known reports whether the position carries a line.
func (p Position) Known() bool { return p.Line > 0 }

// Insn is an instruction or pseudo-instruction. Insn values are immutable:
// every With method returns a modified copy and leaves the receiver as is.
type Insn struct {
	kind    Kind
	op      op.Code
	regs    RegisterList
	literal int64
	consts  []cst.Constant
	target  Label
	label   Label
	pos     Position
	payload *Payload
	address int
}

// Simple returns an instruction made of an opcode and registers only.
func Simple(code op.Code, regs ...Register) Insn {
	return Insn{kind: KindPlain, op: code, regs: regs, target: NoLabel, label: NoLabel, address: -1}
}

// Literal returns an instruction carrying an immediate value.
func Literal(code op.Code, lit int64, regs ...Register) Insn {
	insn := Simple(code, regs...)
	insn.literal = lit
	return insn
}

// Constant returns an instruction referring to one constant.
func Constant(code op.Code, c cst.Constant, regs ...Register) Insn {
	insn := Simple(code, regs...)
	insn.consts = []cst.Constant{c}
	return insn
}

// Constants returns an instruction referring to several constants, e.g.
// invoke-polymorphic's method and proto.
func Constants(code op.Code, cs []cst.Constant, regs ...Register) Insn {
	insn := Simple(code, regs...)
	insn.consts = append([]cst.Constant(nil), cs...)
	return insn
}

// Branch returns an instruction targeting a label.
func Branch(code op.Code, target Label, regs ...Register) Insn {
	insn := Simple(code, regs...)
	insn.kind = KindBranch
	insn.target = target
	return insn
}

func marker(l Label) Insn {
	return Insn{kind: KindMarker, op: op.Invalid, target: NoLabel, label: l, address: -1}
}

func localMarker(kind Kind, r Register) Insn {
	return Insn{kind: kind, op: op.Invalid, regs: RegisterList{r}, target: NoLabel, label: NoLabel, address: -1}
}

func spacer() Insn {
	return Insn{kind: KindSpacer, op: op.Nop, target: NoLabel, label: NoLabel, address: -1}
}

func payloadInsn(p *Payload) Insn {
	return Insn{kind: KindPayload, op: op.Invalid, target: NoLabel, label: NoLabel, payload: p, address: -1}
}

func (i Insn) Kind() Kind                { return i.kind }
func (i Insn) Op() op.Code               { return i.op }
func (i Insn) Registers() RegisterList   { return i.regs }
func (i Insn) Literal() int64            { return i.literal }
func (i Insn) Constants() []cst.Constant { return i.consts }
func (i Insn) Target() Label             { return i.target }
func (i Insn) Position() Position        { return i.pos }
func (i Insn) Payload() *Payload         { return i.payload }

// Label returns the label of a marker instruction.
func (i Insn) Label() Label { return i.label }

// Address returns the instruction's address in code units, or -1 before
// address assignment.
func (i Insn) Address() int { return i.address }

// Info returns the opcode information of a real instruction.
func (i Insn) Info() op.Info { return op.GetInfo(i.op) }

// IsReal reports whether the instruction carries an opcode that is subject to
// format selection.
func (i Insn) IsReal() bool {
	return i.kind == KindPlain || i.kind == KindBranch
}

// IsMarker reports whether the instruction is a label marker.
func (i Insn) IsMarker() bool { return i.kind == KindMarker }

// HasResult reports whether the first register is written by the instruction.
func (i Insn) HasResult() bool {
	return i.IsReal() && i.Info().HasResult
}

// ZeroSize reports whether the instruction never occupies code units.
func (i Insn) ZeroSize() bool {
	switch i.kind {
	case KindMarker, KindLocalStart, KindLocalEnd:
		return true
	}
	return false
}

// CodeUnits returns the size of the instruction when placed at address.
func (i Insn) CodeUnits(address int) int {
	switch i.kind {
	case KindPlain, KindBranch:
		return i.Info().Format.CodeUnits()
	case KindSpacer:
		return address & 1
	case KindPayload:
		return i.payload.CodeUnits()
	default:
		return 0
	}
}

// WithOp returns the instruction with a different opcode.
func (i Insn) WithOp(code op.Code) Insn {
	i.op = code
	return i
}

// WithRegisters returns the instruction with a different register list.
func (i Insn) WithRegisters(regs RegisterList) Insn {
	i.regs = regs
	return i
}

// WithRegisterOffset returns the instruction with every register shifted.
func (i Insn) WithRegisterOffset(delta int) Insn {
	i.regs = i.regs.WithOffset(delta)
	return i
}

// WithMapper returns the instruction with every register renumbered by fn.
func (i Insn) WithMapper(fn func(int) int) Insn {
	i.regs = i.regs.WithMapper(fn)
	return i
}

// WithTarget returns a branch with a different target.
func (i Insn) WithTarget(target Label) Insn {
	i.target = target
	return i
}

// WithPosition returns the instruction with a source position.
func (i Insn) WithPosition(pos Position) Insn {
	i.pos = pos
	return i
}

func (i Insn) withAddress(address int) Insn {
	i.address = address
	return i
}

// LowRegVersion returns the instruction with all registers packed from v0,
// the result register sharing v0 with the first source.
func (i Insn) LowRegVersion() Insn {
	return i.WithRegisters(i.regs.WithExpanded(0, i.HasResult(), nil))
}

// ExpandedPrefix returns the moves that stage incompatible source registers
// into scratch registers, or nil.
func (i Insn) ExpandedPrefix(compat []bool) []Insn {
	exclude := append([]bool(nil), compat...)
	for len(exclude) < len(i.regs) {
		exclude = append(exclude, false)
	}
	if i.HasResult() && len(exclude) > 0 {
		exclude[0] = true
	}
	sources := i.regs.Subset(exclude)
	if len(sources) == 0 {
		return nil
	}
	moves := make([]Insn, 0, len(sources))
	outAt := 0
	for _, src := range sources {
		moves = append(moves, MakeMove(i.pos, src.WithNum(outAt), src))
		outAt += src.Category()
	}
	return moves
}

// ExpandedSuffix returns the move that copies a scratch result back into the
// real destination, or nil when the result register is compatible.
func (i Insn) ExpandedSuffix(compat []bool) []Insn {
	if !i.HasResult() || (len(compat) > 0 && compat[0]) {
		return nil
	}
	dest := i.regs[0]
	return []Insn{MakeMove(i.pos, dest, dest.WithNum(0))}
}

// ExpandedVersion returns the instruction rewritten onto scratch registers.
func (i Insn) ExpandedVersion(compat []bool) Insn {
	return i.WithRegisters(i.regs.WithExpanded(0, i.HasResult(), compat))
}

// MinimumRegisterRequirement returns how many scratch registers an expansion
// needs: enough for every incompatible source, or for an incompatible
// result, whichever is larger.
func (i Insn) MinimumRegisterRequirement(compat []bool) int {
	hasResult := i.HasResult()
	result, sources := 0, 0
	isCompat := func(n int) bool { return n < len(compat) && compat[n] }
	if hasResult && len(i.regs) > 0 && !isCompat(0) {
		result = i.regs[0].Category()
	}
	start := 0
	if hasResult {
		start = 1
	}
	for n := start; n < len(i.regs); n++ {
		if !isCompat(n) {
			sources += i.regs[n].Category()
		}
	}
	return max(result, sources)
}

// MakeMove returns the narrowest move copying src into dest.
func MakeMove(pos Position, dest, src Register) Insn {
	var code op.Code
	switch {
	case (src.Num | dest.Num) < 16:
		code = moveOp(dest, op.Move, op.MoveWide, op.MoveObject)
	case dest.Num < 256:
		code = moveOp(dest, op.MoveFrom16, op.MoveWideFrom16, op.MoveObjectFrom16)
	default:
		code = moveOp(dest, op.Move16, op.MoveWide16, op.MoveObject16)
	}
	return Simple(code, dest, src).WithPosition(pos)
}

func moveOp(dest Register, narrow, wide, object op.Code) op.Code {
	switch {
	case dest.IsReference():
		return object
	case dest.Category() == 2:
		return wide
	default:
		return narrow
	}
}

func (i Insn) String() string {
	var sb strings.Builder
	if i.address >= 0 {
		fmt.Fprintf(&sb, "%04x: ", i.address)
	}
	switch i.kind {
	case KindMarker:
		fmt.Fprintf(&sb, "%s:", i.label)
		return sb.String()
	case KindLocalStart:
		fmt.Fprintf(&sb, ".local %s", i.regs[0])
		if l := i.regs[0].Local; l != nil {
			fmt.Fprintf(&sb, " %s %s", l.Name, l.Type)
		}
		return sb.String()
	case KindLocalEnd:
		fmt.Fprintf(&sb, ".end local %s", i.regs[0])
		return sb.String()
	case KindSpacer:
		sb.WriteString("spacer")
		return sb.String()
	case KindPayload:
		sb.WriteString(i.payload.Kind.String())
		return sb.String()
	}
	sb.WriteString(i.op.String())
	var operands []string
	for _, r := range i.regs {
		operands = append(operands, r.String())
	}
	if i.hasLiteralFormat() {
		operands = append(operands, fmt.Sprintf("#%d", i.literal))
	}
	for _, c := range i.consts {
		operands = append(operands, c.String())
	}
	if i.kind == KindBranch {
		operands = append(operands, i.target.String())
	}
	if len(operands) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(operands, ", "))
	}
	return sb.String()
}

func (i Insn) hasLiteralFormat() bool {
	switch i.Info().Format {
	case op.Format11n, op.Format21s, op.Format21h, op.Format31i, op.Format51l,
		op.Format22b, op.Format22s:
		return true
	}
	return false
}
