package code

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/op"
)

// FinishParams configures Finish.
type FinishParams struct {
	// Unreserved is the number of registers the method body uses, parameters
	// included.
	Unreserved int
	// ParamSize is the number of trailing registers holding parameters,
	// counting "this" for instance methods.
	ParamSize int
	// Resolver maps constants to pool indices. It may be nil when the block
	// references no constants.
	Resolver cst.Resolver
	// Align64Bits enables the register alignment pass for wide values.
	Align64Bits bool
	Logger      zerolog.Logger
}

// Finished is the result of Finish: the final instruction list with
// addresses, and the register bookkeeping needed for the code item header.
type Finished struct {
	insns          []Insn
	labelAddrs     []int
	tries          []TryBlock
	unreserved     int
	reserved       int
	reservedParams int
	paramSize      int
	codeSize       int
	trace          []int
	branchPasses   int
}

// Insns returns the final instruction list. Every instruction has its
// address set.
func (f *Finished) Insns() []Insn { return f.insns }

// Tries returns the try blocks of the original block.
func (f *Finished) Tries() []TryBlock { return f.tries }

// Reserved returns the number of low scratch registers reserved, including
// any reserved for alignment.
func (f *Finished) Reserved() int { return f.reserved }

// ReservedParams returns the number of slots inserted before the parameter
// window for alignment.
func (f *Finished) ReservedParams() int { return f.reservedParams }

// RegisterCount returns the total register count of the method.
func (f *Finished) RegisterCount() int {
	return f.unreserved + f.reserved + f.reservedParams
}

// ParamSize returns the size of the parameter window.
func (f *Finished) ParamSize() int { return f.paramSize }

// CodeSize returns the size of the instruction stream in code units.
func (f *Finished) CodeSize() int { return f.codeSize }

// ReservationTrace returns the reserved register count after each
// iteration of the reservation loop, in order.
func (f *Finished) ReservationTrace() []int { return f.trace }

// BranchPasses returns how many address assignment passes were needed.
func (f *Finished) BranchPasses() int { return f.branchPasses }

// Address returns the resolved address of a label.
func (f *Finished) Address(l Label) int {
	if l < 0 || int(l) >= len(f.labelAddrs) || f.labelAddrs[l] < 0 {
		errz.Invariantf("label %s has no address", l)
	}
	return f.labelAddrs[l]
}

// OutsSize returns the largest number of argument words passed by any
// invoke instruction.
func (f *Finished) OutsSize() int {
	outs := 0
	for _, insn := range f.insns {
		if insn.IsReal() && insn.Info().Invoke {
			outs = max(outs, insn.regs.WordCount())
		}
	}
	return outs
}

// Encode returns the instruction stream as code units.
func (f *Finished) Encode(resolver cst.Resolver) []uint16 {
	units := make([]uint16, 0, f.codeSize)
	for _, insn := range f.insns {
		units = encodeInsn(units, insn, resolver, f.Address)
	}
	if len(units) != f.codeSize {
		errz.Invariantf("encoded %d code units, expected %d", len(units), f.codeSize)
	}
	return units
}

type finisher struct {
	insns          []Insn
	labels         []labelInfo
	params         FinishParams
	reserved       int
	reservedParams int
	trace          []int
	log            zerolog.Logger
}

// Finish turns a built block into a legal, address-resolved instruction
// list. It selects an encoding for every instruction, reserves scratch
// registers and expands instructions whose registers do not fit any
// encoding, optionally realigns wide registers, assigns addresses and
// rewrites branches whose displacement does not fit.
func Finish(block *Block, params FinishParams) (*Finished, error) {
	f := &finisher{
		insns:  append([]Insn(nil), block.insns...),
		labels: append([]labelInfo(nil), block.labels...),
		params: params,
		log:    params.Logger,
	}
	ops := f.makeOpcodes()
	if _, err := f.reserveRegisters(ops); err != nil {
		return nil, err
	}
	if params.Align64Bits {
		if err := f.align64Bits(ops); err != nil {
			return nil, err
		}
	}
	if err := f.massageInstructions(ops); err != nil {
		return nil, err
	}
	passes, err := f.assignAddressesAndFixBranches()
	if err != nil {
		return nil, err
	}

	result := &Finished{
		insns:          f.insns,
		tries:          block.tries,
		unreserved:     params.Unreserved,
		reserved:       f.reserved,
		reservedParams: f.reservedParams,
		paramSize:      params.ParamSize,
		trace:          f.trace,
		branchPasses:   passes,
	}
	result.labelAddrs, result.codeSize = f.labelAddresses()
	f.log.Debug().
		Int("reserved", f.reserved).
		Int("reserved_params", f.reservedParams).
		Int("code_units", result.codeSize).
		Int("branch_passes", passes).
		Msg("finished instructions")
	return result, nil
}

func (f *finisher) makeOpcodes() []op.Code {
	ops := make([]op.Code, len(f.insns))
	for i, insn := range f.insns {
		if insn.IsReal() {
			ops[i] = insn.op
		} else {
			ops[i] = op.Invalid
		}
	}
	return ops
}

func (f *finisher) findOpcode(insn Insn, guess op.Code) op.Code {
	return FindOpcode(insn, guess, f.params.Resolver)
}

// findExpandedOpcode selects the encoding used once insn is rewritten onto
// scratch registers.
func (f *finisher) findExpandedOpcode(insn Insn) (op.Code, error) {
	code := f.findOpcode(insn.LowRegVersion(), insn.op)
	if code == op.Invalid {
		return op.Invalid, errz.Newf(errz.ErrSizeOverflow, "no encoding for %s", insn)
	}
	return code, nil
}

// reserveRegisters grows the reserved register count until every
// instruction either fits an encoding or can be expanded within the
// reservation. It reports whether the count grew.
//
// Invariant: f.reserved never decreases. Each iteration that does not exit
// strictly increases it, and it is bounded by the largest register
// footprint of a single instruction, so the loop terminates.
func (f *finisher) reserveRegisters(ops []op.Code) (bool, error) {
	expanded := false
	old := f.reserved
	for iteration := 1; ; iteration++ {
		reserve, err := f.calculateReservedCount(ops)
		if err != nil {
			return false, err
		}
		f.trace = append(f.trace, max(reserve, old))
		if old >= reserve {
			break
		}
		expanded = true
		delta := reserve - old
		for i, insn := range f.insns {
			if !insn.IsMarker() {
				f.insns[i] = insn.WithRegisterOffset(delta)
			}
		}
		f.log.Debug().Int("iteration", iteration).Int("reserved", reserve).Msg("reserving registers")
		old = reserve
	}
	f.reserved = old
	return expanded, nil
}

// calculateReservedCount runs opcode selection over every instruction and
// returns the scratch register requirement. Instructions whose chain is
// exhausted are recorded as op.Invalid in ops.
func (f *finisher) calculateReservedCount(ops []op.Code) (int, error) {
	reserve := f.reserved
	for i, insn := range f.insns {
		if !insn.IsReal() {
			continue
		}
		original := ops[i]
		code := op.Invalid
		if original != op.Invalid {
			code = f.findOpcode(insn, original)
		}
		if code == op.Invalid {
			expandedOp, err := f.findExpandedOpcode(insn)
			if err != nil {
				return 0, err
			}
			compat := CompatibleRegs(expandedOp, insn)
			reserve = max(reserve, insn.MinimumRegisterRequirement(compat))
		}
		ops[i] = code
	}
	return reserve, nil
}

// align64Bits shifts registers by one when that makes more wide register
// accesses even-numbered. Parameters and other registers are counted
// separately because parameters can be moved on their own. Ties leave the
// registers unchanged.
func (f *finisher) align64Bits(ops []op.Code) error {
	for {
		var alignedRegs, misalignedRegs, alignedParams, misalignedParams int
		lastParameter := f.params.Unreserved + f.reserved + f.reservedParams
		firstParameter := lastParameter - f.params.ParamSize
		for _, insn := range f.insns {
			for _, r := range insn.regs {
				if r.Category() != 2 {
					continue
				}
				isParam := r.Num >= firstParameter
				switch {
				case r.IsEven() && isParam:
					alignedParams++
				case r.IsEven():
					alignedRegs++
				case isParam:
					misalignedParams++
				default:
					misalignedRegs++
				}
			}
		}

		switch {
		case misalignedParams > alignedParams && misalignedRegs > alignedRegs:
			f.addReservedRegisters(1)
		case misalignedParams > alignedParams:
			f.addReservedParameters(1)
		case misalignedRegs > alignedRegs:
			f.addReservedRegisters(1)
			// Shifting everything flipped the parameters too; shift them back
			// into alignment if they were mostly aligned before.
			if f.params.ParamSize != 0 && alignedParams > misalignedParams {
				f.addReservedParameters(1)
			}
		default:
			return nil
		}
		f.log.Debug().
			Int("reserved", f.reserved).
			Int("reserved_params", f.reservedParams).
			Msg("aligning wide registers")

		grew, err := f.reserveRegisters(ops)
		if err != nil {
			return err
		}
		if !grew {
			return nil
		}
	}
}

func (f *finisher) addReservedRegisters(delta int) {
	for i, insn := range f.insns {
		if !insn.IsMarker() {
			f.insns[i] = insn.WithRegisterOffset(delta)
		}
	}
	f.reserved += delta
}

func (f *finisher) addReservedParameters(delta int) {
	lastParameter := f.params.Unreserved + f.reserved + f.reservedParams
	firstParameter := lastParameter - f.params.ParamSize
	mapper := func(r int) int {
		if r >= firstParameter {
			return r + delta
		}
		return r
	}
	for i, insn := range f.insns {
		if !insn.IsMarker() {
			f.insns[i] = insn.WithMapper(mapper)
		}
	}
	f.reservedParams += delta
}

// massageInstructions applies the selected opcodes, expanding instructions
// whose chain was exhausted.
func (f *finisher) massageInstructions(ops []op.Code) error {
	needsExpansion := false
	for i, insn := range f.insns {
		if insn.IsReal() && ops[i] == op.Invalid {
			needsExpansion = true
			break
		}
	}
	if !needsExpansion {
		for i, insn := range f.insns {
			if insn.IsReal() && insn.op != ops[i] {
				f.insns[i] = insn.WithOp(ops[i])
			}
		}
		return nil
	}
	expanded, err := f.performExpansion(ops)
	if err != nil {
		return err
	}
	f.insns = expanded
	return nil
}

// performExpansion builds a new instruction list in which every instruction
// needing expansion is replaced by its prefix moves, its scratch-register
// version and its suffix move. Closely bound markers are held back and
// placed directly before the next instruction body, after its prefix.
func (f *finisher) performExpansion(ops []op.Code) ([]Insn, error) {
	result := make([]Insn, 0, len(f.insns)*2)
	var bound []Insn
	for i, insn := range f.insns {
		if insn.IsMarker() && f.labels[insn.label].bound {
			bound = append(bound, insn)
			continue
		}
		var prefix, suffix []Insn
		code := ops[i]
		if insn.IsReal() && code == op.Invalid {
			expandedOp, err := f.findExpandedOpcode(insn)
			if err != nil {
				return nil, err
			}
			compat := CompatibleRegs(expandedOp, insn)
			prefix = insn.ExpandedPrefix(compat)
			suffix = insn.ExpandedSuffix(compat)
			insn = insn.ExpandedVersion(compat)
			code = expandedOp
		}
		result = append(result, prefix...)
		if !insn.ZeroSize() && len(bound) > 0 {
			result = append(result, bound...)
			bound = nil
		}
		if insn.IsReal() && code != insn.op {
			insn = insn.WithOp(code)
		}
		result = append(result, insn)
		result = append(result, suffix...)
	}
	return append(result, bound...), nil
}

// assignAddresses gives every instruction its address and returns the total
// size in code units.
func (f *finisher) assignAddresses() int {
	var size int
	f.insns, size = AssignAddresses(f.insns)
	return size
}

// AssignAddresses returns a copy of insns with addresses assigned as the
// running sum of instruction sizes, and the total size in code units.
func AssignAddresses(insns []Insn) ([]Insn, int) {
	out := make([]Insn, len(insns))
	address := 0
	for i, insn := range insns {
		out[i] = insn.withAddress(address)
		address += insn.CodeUnits(address)
	}
	return out, address
}

func (f *finisher) labelAddresses() ([]int, int) {
	addrs := make([]int, len(f.labels))
	for i := range addrs {
		addrs[i] = -1
	}
	size := 0
	for _, insn := range f.insns {
		if insn.IsMarker() {
			addrs[insn.label] = insn.address
		}
		size = insn.address + insn.CodeUnits(insn.address)
	}
	return addrs, size
}

// assignAddressesAndFixBranches alternates address assignment and branch
// fixing until every branch fits.
//
// Each fixing pass either widens a goto along its finite chain or turns a
// conditional branch into a short negated branch plus a goto, which is never
// rewritten again, so the number of passes is bounded by the number of
// branches times the goto chain length.
func (f *finisher) assignAddressesAndFixBranches() (int, error) {
	for pass := 1; ; pass++ {
		f.assignAddresses()
		fixed, err := f.fixBranches()
		if err != nil {
			return pass, err
		}
		if !fixed {
			return pass, nil
		}
		f.log.Debug().Int("pass", pass).Msg("fixed branches")
	}
}

func (f *finisher) fixBranches() (bool, error) {
	addrs, _ := f.labelAddresses()
	anyFixed := false
	out := make([]Insn, 0, len(f.insns))
	for i := 0; i < len(f.insns); i++ {
		insn := f.insns[i]
		if insn.kind != KindBranch {
			out = append(out, insn)
			continue
		}
		offset := addrs[insn.target] - insn.address
		if BranchFits(insn.op, offset) {
			out = append(out, insn)
			continue
		}
		anyFixed = true
		info := insn.Info()
		if info.IsGoto() {
			code := insn.op
			for code != op.Invalid && !BranchFits(code, offset) {
				code = op.Next(code)
			}
			if code == op.Invalid {
				return false, errz.New(errz.ErrChainExhausted, "method too long").WithAddress(insn.address)
			}
			out = append(out, insn.WithOp(code))
			continue
		}
		if !info.IsConditional() {
			return false, errz.Newf(errz.ErrChainExhausted, "branch %s does not fit", insn).WithAddress(insn.address)
		}

		// Branch around a goto: the negated condition skips to the
		// fall-through label after the goto, which jumps to the original
		// target.
		if i+1 >= len(f.insns) || !f.insns[i+1].IsMarker() {
			errz.Invariantf("unpaired conditional branch %s", insn)
		}
		fallThrough := f.insns[i+1].label
		reversed := insn.WithOp(info.Opposite).WithTarget(fallThrough)
		jump := Branch(op.Goto, insn.target).WithPosition(insn.pos)
		out = append(out, reversed, jump)
	}
	f.insns = out
	return anyFixed, nil
}

// String describes the finished list for debugging.
func (f *Finished) String() string {
	return fmt.Sprintf("finished(%d insns, %d code units, %d registers)",
		len(f.insns), f.codeSize, f.RegisterCount())
}
