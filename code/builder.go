package code

import (
	"fmt"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/op"
)

type labelInfo struct {
	bound  bool
	marked bool
}

// Catch is one typed handler of a try block.
type Catch struct {
	Type    cst.Type
	Handler Label
}

// TryBlock covers the instructions between the Start and End labels. Its
// handlers are tried in order; CatchAll handles every other exception and
// is NoLabel when absent.
type TryBlock struct {
	Start    Label
	End      Label
	Catches  []Catch
	CatchAll Label
}

// Builder collects the abstract instruction list of one method. Instructions
// can only be appended; labels are allocated from an arena owned by the
// builder and referenced by handle.
type Builder struct {
	insns    []Insn
	labels   []labelInfo
	tries    []TryBlock
	payloads []pendingPayload
	pos      Position
}

type pendingPayload struct {
	label   Label
	payload *Payload
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// NewLabel allocates a label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, labelInfo{})
	return Label(len(b.labels) - 1)
}

// NewBoundLabel allocates a label bound closely to the instruction that
// follows its marker. If that instruction is expanded, the label moves past
// the expansion prefix so it still resolves to the instruction itself.
func (b *Builder) NewBoundLabel() Label {
	l := b.NewLabel()
	b.labels[l].bound = true
	return l
}

// Mark places l at the current end of the instruction list.
func (b *Builder) Mark(l Label) {
	if l < 0 || int(l) >= len(b.labels) {
		errz.Invariantf("unknown label %s", l)
	}
	if b.labels[l].marked {
		errz.Invariantf("label %s marked twice", l)
	}
	b.labels[l].marked = true
	b.insns = append(b.insns, marker(l))
}

// SetLine sets the source line attached to subsequently added instructions.
// Zero clears it.
func (b *Builder) SetLine(line int) {
	b.pos = Position{Line: line}
}

// Add appends an instruction. Instructions without a position inherit the
// builder's current line. A conditional branch is followed by a fresh
// fall-through label.
func (b *Builder) Add(insn Insn) {
	if !insn.pos.Known() {
		insn.pos = b.pos
	}
	b.insns = append(b.insns, insn)
	if insn.kind == KindBranch && insn.Info().IsConditional() {
		b.Mark(b.NewLabel())
	}
}

// Len returns the number of instructions added so far.
func (b *Builder) Len() int { return len(b.insns) }

// Move copies src into dest.
func (b *Builder) Move(dest, src Register) {
	b.Add(Simple(moveOp(dest, op.Move, op.MoveWide, op.MoveObject), dest, src))
}

// MoveResult stores the result of the preceding invoke into dest.
func (b *Builder) MoveResult(dest Register) {
	b.Add(Simple(moveOp(dest, op.MoveResult, op.MoveResultWide, op.MoveResultObject), dest))
}

// Const loads a literal; the narrowest encoding is chosen when finishing.
func (b *Builder) Const(dest Register, value int64) {
	if dest.Category() == 2 {
		b.Add(Literal(op.ConstWide16, value, dest))
		return
	}
	b.Add(Literal(op.Const4, value, dest))
}

// ConstString loads a string constant.
func (b *Builder) ConstString(dest Register, s string) {
	b.Add(Constant(op.ConstString, cst.String(s), dest))
}

// CheckCast casts reg in place. The register is listed as both result and
// source so an expansion moves the value in and out of scratch.
func (b *Builder) CheckCast(reg Register, t cst.Type) {
	b.Add(Constant(op.CheckCast, t, reg, reg))
}

// Invoke calls m with args. The range form is chosen when finishing if the
// arguments do not fit the short form.
func (b *Builder) Invoke(code op.Code, m cst.MethodRef, args ...Register) {
	b.Add(Constant(code, m, args...))
}

// Goto jumps to target.
func (b *Builder) Goto(target Label) {
	b.Add(Branch(op.Goto, target))
}

// If adds a conditional branch followed by its fall-through label.
func (b *Builder) If(code op.Code, target Label, regs ...Register) {
	if !op.GetInfo(code).IsConditional() {
		errz.Invariantf("%s is not a conditional branch", code)
	}
	b.Add(Branch(code, target, regs...))
}

// Return returns reg, or nothing when called without a register.
func (b *Builder) Return(regs ...Register) {
	if len(regs) == 0 {
		b.Add(Simple(op.ReturnVoid))
		return
	}
	b.Add(Simple(moveOp(regs[0], op.Return, op.ReturnWide, op.ReturnObject), regs[0]))
}

// PackedSwitch dispatches on reg to targets[reg-firstKey].
func (b *Builder) PackedSwitch(reg Register, firstKey int32, targets ...Label) {
	b.addPayloadUser(op.PackedSwitch, reg, &Payload{
		Kind:     PackedSwitchPayload,
		FirstKey: firstKey,
		Targets:  append([]Label(nil), targets...),
	})
}

// SparseSwitch dispatches on reg to the target of the matching key.
func (b *Builder) SparseSwitch(reg Register, keys []int32, targets []Label) {
	b.addPayloadUser(op.SparseSwitch, reg, &Payload{
		Kind:    SparseSwitchPayload,
		Keys:    append([]int32(nil), keys...),
		Targets: append([]Label(nil), targets...),
	})
}

// FillArrayData fills the array in reg with values of the given width.
func (b *Builder) FillArrayData(reg Register, elementWidth int, values []int64) {
	b.addPayloadUser(op.FillArrayData, reg, &Payload{
		Kind:         ArrayPayload,
		ElementWidth: elementWidth,
		Values:       append([]int64(nil), values...),
	})
}

func (b *Builder) addPayloadUser(code op.Code, reg Register, p *Payload) {
	user := b.NewBoundLabel()
	data := b.NewLabel()
	p.User = user
	b.Mark(user)
	b.Add(Branch(code, data, reg))
	b.payloads = append(b.payloads, pendingPayload{label: data, payload: p})
}

// StartLocal declares that reg holds the local variable in reg.Local from
// this point on.
func (b *Builder) StartLocal(reg Register) {
	if reg.Local == nil {
		errz.Invariantf("local start on %s without a local item", reg)
	}
	b.insns = append(b.insns, localMarker(KindLocalStart, reg))
}

// EndLocal declares that the local variable in reg goes out of scope.
func (b *Builder) EndLocal(reg Register) {
	b.insns = append(b.insns, localMarker(KindLocalEnd, reg))
}

// Try registers a try block.
func (b *Builder) Try(start, end Label, catches []Catch, catchAll Label) {
	b.tries = append(b.tries, TryBlock{
		Start:    start,
		End:      end,
		Catches:  append([]Catch(nil), catches...),
		CatchAll: catchAll,
	})
}

// Build appends the pending payloads after the body and returns the
// finished instruction list. Every label referenced by a branch, payload or
// try block must have been marked.
func (b *Builder) Build() (*Block, error) {
	insns := append([]Insn(nil), b.insns...)
	labels := append([]labelInfo(nil), b.labels...)
	for _, pp := range b.payloads {
		if err := pp.payload.validate(); err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		insns = append(insns, spacer(), marker(pp.label), payloadInsn(pp.payload))
		labels[pp.label].marked = true
	}
	block := &Block{insns: insns, labels: labels, tries: append([]TryBlock(nil), b.tries...)}
	block.checkLabels()
	return block, nil
}

// Block is a built instruction list together with its label arena and try
// blocks. It is the input of Finish.
type Block struct {
	insns  []Insn
	labels []labelInfo
	tries  []TryBlock
}

// Insns returns the instruction list.
func (b *Block) Insns() []Insn { return b.insns }

// Tries returns the try blocks.
func (b *Block) Tries() []TryBlock { return b.tries }

// LabelCount returns the size of the label arena.
func (b *Block) LabelCount() int { return len(b.labels) }

// Constants returns every constant referenced by the block, in order of
// first reference and with repeats.
func (b *Block) Constants() []cst.Constant {
	var out []cst.Constant
	for _, insn := range b.insns {
		out = append(out, insn.consts...)
	}
	for _, t := range b.tries {
		for _, c := range t.Catches {
			out = append(out, c.Type)
		}
	}
	return out
}

func (b *Block) checkLabels() {
	check := func(l Label, what string) {
		if l < 0 || int(l) >= len(b.labels) {
			errz.Invariantf("%s refers to unknown label %s", what, l)
		}
		if !b.labels[l].marked {
			errz.Invariantf("unpaired %s: label %s is never marked", what, l)
		}
	}
	for _, insn := range b.insns {
		if insn.kind == KindBranch {
			check(insn.target, "branch")
		}
		if insn.kind == KindPayload {
			check(insn.payload.User, "payload")
			for _, t := range insn.payload.Targets {
				check(t, "switch")
			}
		}
	}
	for _, t := range b.tries {
		check(t.Start, "try start")
		check(t.End, "try end")
		for _, c := range t.Catches {
			check(c.Handler, "catch handler")
		}
		if t.CatchAll != NoLabel {
			check(t.CatchAll, "catch-all handler")
		}
	}
}
