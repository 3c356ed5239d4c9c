package debuginfo

import (
	"fmt"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/internal/dexio"
)

// DecodeParams describes the method a debug stream belongs to.
type DecodeParams struct {
	RegisterSize int
	ParamTypes   []cst.Type
	Static       bool
	// ThisIndex is the string index of "this", or -1 when the pool has no
	// such string.
	ThisIndex int
}

// Finder looks up constants that may be absent from a pool.
type Finder interface {
	Find(c cst.Constant) (int, bool)
}

// ThisIndex returns the string index of "this" in f, or -1.
func ThisIndex(f Finder) int {
	if idx, ok := f.Find(cst.String("this")); ok {
		return idx
	}
	return -1
}

// Local is a decoded local variable event. Indices are -1 when absent.
type Local struct {
	Address        int
	Start          bool
	Reg            int
	NameIndex      int
	TypeIndex      int
	SignatureIndex int
	// Header is set for the entries implied by the stream header: "this"
	// and the declared parameters.
	Header bool
}

func (l Local) String() string {
	kind := "end"
	if l.Start {
		kind = "start"
	}
	return fmt.Sprintf("%04x %s v%d name=%d type=%d", l.Address, kind, l.Reg, l.NameIndex, l.TypeIndex)
}

// Decoded is the content of a debug stream.
type Decoded struct {
	Line      int
	Positions []code.PositionEntry
	Locals    []Local
}

// Decode parses a debug_info_item.
func Decode(data []byte, params DecodeParams) (*Decoded, error) {
	r := dexio.NewReader(data)
	line, err := r.ReadULEB128()
	if err != nil {
		return nil, fmt.Errorf("debug info header: %w", err)
	}
	count, err := r.ReadULEB128()
	if err != nil {
		return nil, fmt.Errorf("debug info header: %w", err)
	}
	if int(count) != len(params.ParamTypes) {
		return nil, fmt.Errorf("mismatch between parameters: stream has %d, method has %d", count, len(params.ParamTypes))
	}

	d := &Decoded{Line: int(line)}
	last := map[int]Local{}
	record := func(l Local) {
		d.Locals = append(d.Locals, l)
		last[l.Reg] = l
	}

	reg := paramBase(params.RegisterSize, params.ParamTypes, params.Static)
	if !params.Static {
		record(Local{Start: true, Reg: reg, NameIndex: params.ThisIndex, TypeIndex: -1, SignatureIndex: -1, Header: true})
		reg++
	}
	for _, t := range params.ParamTypes {
		name, err := readIndex(r)
		if err != nil {
			return nil, fmt.Errorf("debug info header: %w", err)
		}
		record(Local{Start: true, Reg: reg, NameIndex: name, TypeIndex: -1, SignatureIndex: -1, Header: true})
		reg += t.Category()
	}

	address, curLine := 0, int(line)
	for {
		opcode, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("debug info at offset %d: %w", r.Pos(), err)
		}
		switch opcode {
		case opEndSequence:
			return d, nil
		case opAdvancePC:
			delta, err := r.ReadULEB128()
			if err != nil {
				return nil, err
			}
			address += int(delta)
		case opAdvanceLine:
			delta, err := r.ReadSLEB128()
			if err != nil {
				return nil, err
			}
			curLine += int(delta)
		case opStartLocal, opStartLocalExtended:
			l := Local{Address: address, Start: true, SignatureIndex: -1}
			regNum, err := r.ReadULEB128()
			if err != nil {
				return nil, err
			}
			l.Reg = int(regNum)
			if l.NameIndex, err = readIndex(r); err != nil {
				return nil, err
			}
			if l.TypeIndex, err = readIndex(r); err != nil {
				return nil, err
			}
			if opcode == opStartLocalExtended {
				if l.SignatureIndex, err = readIndex(r); err != nil {
					return nil, err
				}
			}
			record(l)
		case opRestartLocal:
			regNum, err := r.ReadULEB128()
			if err != nil {
				return nil, err
			}
			prev, ok := last[int(regNum)]
			if !ok {
				return nil, fmt.Errorf("RESTART_LOCAL at %04x on unknown register v%d", address, regNum)
			}
			if prev.Start {
				return nil, fmt.Errorf("nonsensical RESTART_LOCAL at %04x on live register v%d", address, regNum)
			}
			record(Local{
				Address:        address,
				Start:          true,
				Reg:            prev.Reg,
				NameIndex:      prev.NameIndex,
				TypeIndex:      prev.TypeIndex,
				SignatureIndex: prev.SignatureIndex,
			})
		case opEndLocal:
			regNum, err := r.ReadULEB128()
			if err != nil {
				return nil, err
			}
			prev, ok := last[int(regNum)]
			if !ok || !prev.Start {
				return nil, fmt.Errorf("nonsensical END_LOCAL at %04x on dead register v%d", address, regNum)
			}
			record(Local{
				Address:        address,
				Reg:            prev.Reg,
				NameIndex:      prev.NameIndex,
				TypeIndex:      prev.TypeIndex,
				SignatureIndex: prev.SignatureIndex,
			})
		case opSetPrologueEnd, opSetEpilogueBegin:
		case opSetFile:
			if _, err := r.ReadULEB128(); err != nil {
				return nil, err
			}
		default:
			if opcode < opFirstSpecial {
				return nil, fmt.Errorf("invalid extended opcode 0x%02x at offset %d", opcode, r.Pos()-1)
			}
			adjusted := int(opcode) - opFirstSpecial
			address += adjusted / lineRange
			curLine += lineBase + adjusted%lineRange
			d.Positions = append(d.Positions, code.PositionEntry{Address: address, Line: curLine})
		}
	}
}

// readIndex reads an index stored plus one, so that zero means none.
func readIndex(r *dexio.Reader) (int, error) {
	v, err := r.ReadULEB128()
	if err != nil {
		return 0, err
	}
	return int(v) - 1, nil
}
