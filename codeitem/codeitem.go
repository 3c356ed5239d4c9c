// Package codeitem assembles the code_item of one method: the finished
// instruction stream, its register header, the exception handler table and
// the debug information.
package codeitem

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/dexasm/catches"
	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/debuginfo"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/internal/dexio"
	"github.com/deepnoodle-ai/dexasm/section"
)

// HeaderSize is the size in bytes of the code_item header.
const HeaderSize = 16

// DebugPlacer decides where the debug_info_item of a method lives and
// returns its file offset.
type DebugPlacer interface {
	PlaceDebugInfo(method cst.MethodRef, data []byte) uint32
}

// DebugPlacerFunc adapts a function to DebugPlacer.
type DebugPlacerFunc func(method cst.MethodRef, data []byte) uint32

func (f DebugPlacerFunc) PlaceDebugInfo(method cst.MethodRef, data []byte) uint32 {
	return f(method, data)
}

// Config controls how methods are assembled.
type Config struct {
	Align64Bits bool
	Positions   code.PositionPolicy
	// Validate decodes every debug stream after encoding it and compares
	// the result with its input.
	Validate bool
	Placer   DebugPlacer
	Logger   zerolog.Logger
}

// Method is the input of an Assembler.
type Method struct {
	Ref    cst.MethodRef
	Static bool
	// Registers is the number of registers the body uses, parameters
	// included. Parameters occupy the last registers.
	Registers int
	Block     *code.Block
}

// InsSize returns the number of argument words, "this" included.
func (m Method) InsSize() int {
	words := m.Ref.Proto.ParamWords()
	if !m.Static {
		words++
	}
	return words
}

// Header holds the fixed fields of a code_item.
type Header struct {
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	TriesSize     uint16
	DebugInfoOff  uint32
	InsnsSize     uint32
}

// Item is an assembled code_item.
type Item struct {
	Header
	Method    cst.MethodRef
	Insns     []uint16
	Table     *catches.Table
	DebugInfo []byte
	Finished  *code.Finished
}

// Assembler assembles one method. It is not safe for concurrent use; the
// pool it is given may be shared with other assemblers.
type Assembler struct {
	method Method
	cfg    Config
	log    zerolog.Logger
}

// New returns an assembler for m.
func New(m Method, cfg Config) *Assembler {
	return &Assembler{
		method: m,
		cfg:    cfg,
		log:    cfg.Logger.With().Str("method", m.Ref.String()).Logger(),
	}
}

// Collect interns every constant the method refers to: the method itself,
// instruction constants, caught types and local variable names, types and
// signatures.
func (a *Assembler) Collect(pool *section.Pool) {
	pool.Intern(a.method.Ref)
	for _, c := range a.method.Block.Constants() {
		pool.Intern(c)
	}
	for _, insn := range a.method.Block.Insns() {
		if insn.Kind() != code.KindLocalStart {
			continue
		}
		local := insn.Registers()[0].Local
		if local.Name != "" {
			pool.Intern(cst.String(local.Name))
		}
		if local.Type != "" {
			pool.Intern(local.Type)
		}
		if local.Signature != "" {
			pool.Intern(cst.String(local.Signature))
		}
	}
}

// Assemble finishes the instructions and lays out the code item. The pool
// must have been prepared.
func (a *Assembler) Assemble(pool *section.Pool) (*Item, error) {
	item, err := a.assemble(pool)
	if err != nil {
		var ae *errz.AssemblyError
		if errors.As(err, &ae) && ae.Method == "" {
			ae.WithMethod(a.method.Ref.String())
		}
		return nil, err
	}
	return item, nil
}

func (a *Assembler) assemble(pool *section.Pool) (*Item, error) {
	m := a.method
	ins := m.InsSize()
	if m.Registers < ins {
		return nil, fmt.Errorf("%s: %d registers cannot hold %d argument words", m.Ref, m.Registers, ins)
	}
	f, err := code.Finish(m.Block, code.FinishParams{
		Unreserved:  m.Registers,
		ParamSize:   ins,
		Resolver:    pool,
		Align64Bits: a.cfg.Align64Bits,
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}
	if f.RegisterCount() > 0xffff {
		return nil, errz.Newf(errz.ErrSizeOverflow, "%d registers do not fit a code item", f.RegisterCount())
	}

	item := &Item{
		Method:   m.Ref,
		Insns:    f.Encode(pool),
		Finished: f,
	}
	item.RegistersSize = uint16(f.RegisterCount())
	item.InsSize = uint16(ins)
	item.OutsSize = uint16(f.OutsSize())
	item.InsnsSize = uint32(len(item.Insns))

	if ranges := catches.RangesOf(f); len(ranges) > 0 {
		table, err := catches.Build(ranges, pool)
		if err != nil {
			return nil, err
		}
		item.Table = table
		item.TriesSize = uint16(table.TriesSize())
	}

	positions := f.Positions(a.cfg.Positions)
	locals := f.Locals()
	if len(positions) > 0 || len(locals) > 0 {
		params := debuginfo.EncodeParams{
			Positions:    positions,
			Locals:       locals,
			CodeSize:     f.CodeSize(),
			RegisterSize: f.RegisterCount(),
			ParamTypes:   m.Ref.Proto.ParamTypes(),
			Static:       m.Static,
			Resolver:     pool,
		}
		data, err := debuginfo.Encode(params)
		if err != nil {
			return nil, err
		}
		if a.cfg.Validate {
			decode := debuginfo.DecodeParams{
				RegisterSize: params.RegisterSize,
				ParamTypes:   params.ParamTypes,
				Static:       m.Static,
				ThisIndex:    debuginfo.ThisIndex(pool),
			}
			if err := debuginfo.Validate(data, positions, locals, decode, pool); err != nil {
				return nil, err
			}
		}
		item.DebugInfo = data
		item.PlaceDebugInfo(a.cfg.Placer)
	}

	a.log.Debug().
		Int("registers", int(item.RegistersSize)).
		Int("ins", int(item.InsSize)).
		Int("outs", int(item.OutsSize)).
		Int("tries", int(item.TriesSize)).
		Int("code_units", int(item.InsnsSize)).
		Int("debug_bytes", len(item.DebugInfo)).
		Msg("assembled code item")
	return item, nil
}

// PlaceDebugInfo asks p for the offset of the item's debug information. It
// does nothing when p is nil or the item has no debug information.
func (it *Item) PlaceDebugInfo(p DebugPlacer) {
	if p == nil || len(it.DebugInfo) == 0 {
		return
	}
	it.DebugInfoOff = p.PlaceDebugInfo(it.Method, it.DebugInfo)
}

// WriteTo writes the code item: header, instructions, a padding unit when
// the instruction count is odd and tries follow, then the tries and their
// handler payload.
func (it *Item) WriteTo(w *dexio.Writer) {
	w.WriteU16(it.RegistersSize)
	w.WriteU16(it.InsSize)
	w.WriteU16(it.OutsSize)
	w.WriteU16(it.TriesSize)
	w.WriteU32(it.DebugInfoOff)
	w.WriteU32(it.InsnsSize)
	for _, u := range it.Insns {
		w.WriteU16(u)
	}
	if it.Table == nil {
		return
	}
	if len(it.Insns)%2 == 1 {
		w.WriteU16(0)
	}
	it.Table.WriteTo(w)
}

// Bytes returns the serialized code item.
func (it *Item) Bytes() []byte {
	w := dexio.NewWriter()
	it.WriteTo(w)
	return w.Bytes()
}

// Size returns the serialized size in bytes.
func (it *Item) Size() int {
	size := HeaderSize + 2*len(it.Insns)
	if it.Table != nil {
		if len(it.Insns)%2 == 1 {
			size += 2
		}
		size += it.Table.Size()
	}
	return size
}
