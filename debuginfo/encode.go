// Package debuginfo encodes, decodes and validates the debug_info_item
// stream that maps a method's addresses to source lines and local
// variables.
package debuginfo

import (
	"sort"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/internal/dexio"
)

// EncodeParams describes the method whose debug information is encoded.
type EncodeParams struct {
	Positions []code.PositionEntry
	Locals    []code.LocalEntry
	// CodeSize is the size of the instruction stream in code units.
	CodeSize int
	// RegisterSize is the method's total register count.
	RegisterSize int
	// ParamTypes lists the declared parameter types, without "this".
	ParamTypes []cst.Type
	Static     bool
	// Resolver maps names, types and signatures to pool indices.
	Resolver cst.Resolver
}

// paramBase returns the first parameter register, "this" included.
func paramBase(registerSize int, paramTypes []cst.Type, static bool) int {
	base := registerSize
	for _, t := range paramTypes {
		base -= t.Category()
	}
	if !static {
		base--
	}
	return base
}

type encoder struct {
	EncodeParams
	w         *dexio.Writer
	address   int
	line      int
	lastEntry map[int]*code.LocalEntry
}

// Encode returns the debug_info_item for the method.
func Encode(params EncodeParams) ([]byte, error) {
	e := &encoder{
		EncodeParams: params,
		w:            dexio.NewWriter(),
		line:         1,
		lastEntry:    map[int]*code.LocalEntry{},
	}
	for _, l := range params.Locals {
		if l.Reg.Num < 0 || l.Reg.Num >= params.RegisterSize {
			return nil, errz.Newf(errz.ErrInvariant, "local register v%d out of range", l.Reg.Num).
				WithAddress(l.Address)
		}
	}
	positions := append([]code.PositionEntry(nil), params.Positions...)
	sort.SliceStable(positions, func(i, j int) bool { return positions[i].Address < positions[j].Address })

	e.emitHeader(positions, e.methodArguments())
	_ = e.w.WriteByte(opSetPrologueEnd)

	var posIdx, localIdx int
	for {
		localIdx = e.emitLocalsAtAddress(localIdx)
		posIdx = e.emitPositionsAtAddress(posIdx, positions)

		next := -1
		if posIdx < len(positions) {
			next = positions[posIdx].Address
		}
		if localIdx < len(e.Locals) && (next < 0 || e.Locals[localIdx].Address < next) {
			next = e.Locals[localIdx].Address
		}
		if next < 0 {
			break
		}
		if posIdx < len(positions) && positions[posIdx].Address == next {
			e.emitPosition(positions[posIdx])
			posIdx++
		} else {
			e.emitAdvancePC(next - e.address)
		}
	}
	_ = e.w.WriteByte(opEndSequence)
	return e.w.Bytes(), nil
}

// methodArguments returns the first local entry of each parameter register,
// in register order. These are described by the header.
func (e *encoder) methodArguments() []*code.LocalEntry {
	base := paramBase(e.RegisterSize, e.ParamTypes, e.Static)
	seen := map[int]bool{}
	var out []*code.LocalEntry
	for i := range e.Locals {
		reg := e.Locals[i].Reg.Num
		if reg < base || seen[reg] {
			continue
		}
		seen[reg] = true
		out = append(out, &e.Locals[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Reg.Num < out[j].Reg.Num })
	return out
}

func (e *encoder) emitHeader(positions []code.PositionEntry, args []*code.LocalEntry) {
	if len(positions) > 0 {
		e.line = positions[0].Line
	}
	e.w.WriteULEB128(uint32(e.line))

	findArg := func(reg int) *code.LocalEntry {
		for _, a := range args {
			if a.Reg.Num == reg {
				return a
			}
		}
		return nil
	}

	cur := paramBase(e.RegisterSize, e.ParamTypes, e.Static)
	var recorded []int
	if !e.Static {
		if a := findArg(cur); a != nil {
			e.lastEntry[cur] = a
			recorded = append(recorded, cur)
		}
		cur++
	}
	e.w.WriteULEB128(uint32(len(e.ParamTypes)))
	for _, t := range e.ParamTypes {
		a := findArg(cur)
		switch {
		case a == nil:
			e.emitStringIndex("")
		case a.Reg.Local != nil && a.Reg.Local.Signature != "":
			e.emitStringIndex("")
		default:
			e.emitStringIndex(localName(a))
		}
		if a != nil {
			e.lastEntry[cur] = a
			recorded = append(recorded, cur)
		}
		cur += t.Category()
	}
	for _, reg := range recorded {
		a := e.lastEntry[reg]
		if a.Reg.Local != nil && a.Reg.Local.Signature != "" {
			e.emitLocalStart(a)
		}
	}
}

func localName(entry *code.LocalEntry) string {
	if entry.Reg.Local == nil {
		return ""
	}
	return entry.Reg.Local.Name
}

func (e *encoder) emitLocalsAtAddress(idx int) int {
	for idx < len(e.Locals) && e.Locals[idx].Address == e.address {
		entry := &e.Locals[idx]
		idx++
		reg := entry.Reg.Num
		prev := e.lastEntry[reg]
		if prev == entry {
			continue
		}
		e.lastEntry[reg] = entry
		if entry.IsStart() {
			if prev != nil && !prev.IsStart() && entry.Matches(*prev) {
				e.emitRestart(entry)
			} else {
				e.emitLocalStart(entry)
			}
		} else if entry.Disposition != code.EndReplaced {
			e.emitLocalEnd(entry)
		}
	}
	return idx
}

func (e *encoder) emitPositionsAtAddress(idx int, positions []code.PositionEntry) int {
	for idx < len(positions) && positions[idx].Address == e.address {
		e.emitPosition(positions[idx])
		idx++
	}
	return idx
}

func (e *encoder) emitStringIndex(s string) {
	if s == "" || e.Resolver == nil {
		e.w.WriteULEB128(0)
		return
	}
	e.w.WriteULEB128(uint32(e.Resolver.IndexOf(cst.String(s)) + 1))
}

func (e *encoder) emitTypeIndex(t cst.Type) {
	if t == "" || e.Resolver == nil {
		e.w.WriteULEB128(0)
		return
	}
	e.w.WriteULEB128(uint32(e.Resolver.IndexOf(t) + 1))
}

func (e *encoder) emitLocalStart(entry *code.LocalEntry) {
	local := entry.Reg.Local
	if local == nil {
		local = &code.LocalItem{}
	}
	if local.Signature != "" {
		_ = e.w.WriteByte(opStartLocalExtended)
	} else {
		_ = e.w.WriteByte(opStartLocal)
	}
	e.w.WriteULEB128(uint32(entry.Reg.Num))
	e.emitStringIndex(local.Name)
	e.emitTypeIndex(local.Type)
	if local.Signature != "" {
		e.emitStringIndex(local.Signature)
	}
}

func (e *encoder) emitRestart(entry *code.LocalEntry) {
	_ = e.w.WriteByte(opRestartLocal)
	e.w.WriteULEB128(uint32(entry.Reg.Num))
}

func (e *encoder) emitLocalEnd(entry *code.LocalEntry) {
	_ = e.w.WriteByte(opEndLocal)
	e.w.WriteULEB128(uint32(entry.Reg.Num))
}

func (e *encoder) emitAdvancePC(delta int) {
	if delta < 0 {
		errz.Invariantf("debug address moves backwards by %d", -delta)
	}
	_ = e.w.WriteByte(opAdvancePC)
	e.w.WriteULEB128(uint32(delta))
	e.address += delta
}

func (e *encoder) emitAdvanceLine(delta int) {
	_ = e.w.WriteByte(opAdvanceLine)
	e.w.WriteSLEB128(int32(delta))
	e.line += delta
}

// emitPosition moves to the entry's address and line with one special
// opcode, advancing line or address explicitly first when a delta is out of
// the special range.
func (e *encoder) emitPosition(entry code.PositionEntry) {
	deltaLine := entry.Line - e.line
	deltaAddress := entry.Address - e.address
	if deltaAddress < 0 {
		errz.Invariantf("position at %04x precedes current address %04x", entry.Address, e.address)
	}
	if deltaLine < lineBase || deltaLine > lineBase+lineRange-1 {
		e.emitAdvanceLine(deltaLine)
		deltaLine = 0
	}
	opcode := specialOpcode(deltaLine, deltaAddress)
	if opcode > 0xff {
		e.emitAdvancePC(deltaAddress)
		deltaAddress = 0
		opcode = specialOpcode(deltaLine, deltaAddress)
		if opcode > 0xff {
			e.emitAdvanceLine(deltaLine)
			deltaLine = 0
			opcode = specialOpcode(deltaLine, deltaAddress)
		}
	}
	_ = e.w.WriteByte(byte(opcode))
	e.line += deltaLine
	e.address += deltaAddress
}
