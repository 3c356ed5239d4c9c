package code

import (
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/op"
)

func unit(code op.Code, arg int) uint16 {
	return uint16(code) | uint16(arg)<<8
}

func nibbles(a, b int) int {
	return (a & 0xf) | (b&0xf)<<4
}

// encodeInsn appends the code units of one instruction. The instruction
// must carry an address and a compatible opcode.
func encodeInsn(units []uint16, insn Insn, resolver cst.Resolver, addressOf func(Label) int) []uint16 {
	switch insn.kind {
	case KindMarker, KindLocalStart, KindLocalEnd:
		return units
	case KindSpacer:
		if insn.address&1 == 1 {
			units = append(units, uint16(op.Nop))
		}
		return units
	case KindPayload:
		return insn.payload.encode(units, addressOf)
	}

	code := insn.op
	info := op.GetInfo(code)
	regs := insn.regs
	lit := insn.literal
	index := func(n int) int {
		if resolver == nil {
			return 0
		}
		return resolver.IndexOf(insn.consts[n])
	}
	offset := func() int {
		return addressOf(insn.target) - insn.address
	}
	reg := func(n int) int { return regs[n].Num }

	switch info.Format {
	case op.Format10x:
		return append(units, unit(code, 0))
	case op.Format12x:
		return append(units, unit(code, nibbles(reg(0), reg(len(regs)-1))))
	case op.Format11n:
		return append(units, unit(code, nibbles(reg(0), int(lit))))
	case op.Format11x:
		return append(units, unit(code, reg(0)))
	case op.Format10t:
		return append(units, unit(code, offset()&0xff))
	case op.Format20t:
		return append(units, unit(code, 0), uint16(offset()))
	case op.Format30t:
		return appendU32(append(units, unit(code, 0)), uint32(offset()))
	case op.Format22x:
		return append(units, unit(code, reg(0)), uint16(reg(1)))
	case op.Format21t:
		return append(units, unit(code, reg(0)), uint16(offset()))
	case op.Format21s:
		return append(units, unit(code, reg(0)), uint16(lit))
	case op.Format21h:
		shift := 16
		if info.Wide {
			shift = 48
		}
		return append(units, unit(code, reg(0)), uint16(lit>>shift))
	case op.Format21c:
		return append(units, unit(code, reg(0)), uint16(index(0)))
	case op.Format23x:
		return append(units, unit(code, reg(0)), uint16(reg(1)|reg(2)<<8))
	case op.Format22b:
		return append(units, unit(code, reg(0)), uint16(reg(1)|int(lit&0xff)<<8))
	case op.Format22t:
		return append(units, unit(code, nibbles(reg(0), reg(1))), uint16(offset()))
	case op.Format22s:
		return append(units, unit(code, nibbles(reg(0), reg(1))), uint16(lit))
	case op.Format22c:
		return append(units, unit(code, nibbles(reg(0), reg(1))), uint16(index(0)))
	case op.Format32x:
		return append(units, unit(code, 0), uint16(reg(0)), uint16(reg(1)))
	case op.Format31i:
		return appendU32(append(units, unit(code, reg(0))), uint32(lit))
	case op.Format31t:
		return appendU32(append(units, unit(code, reg(0))), uint32(offset()))
	case op.Format31c:
		return appendU32(append(units, unit(code, reg(0))), uint32(index(0)))
	case op.Format35c, op.Format45cc:
		words := regs.Words()
		w := make([]int, 5)
		copy(w, words)
		units = append(units,
			unit(code, nibbles(w[4], len(words))),
			uint16(index(0)),
			uint16(nibbles(w[0], w[1])|nibbles(w[2], w[3])<<8))
		if info.Format == op.Format45cc {
			units = append(units, uint16(index(1)))
		}
		return units
	case op.Format3rc, op.Format4rcc:
		first := 0
		if len(regs) > 0 {
			first = reg(0)
		}
		units = append(units, unit(code, regs.WordCount()), uint16(index(0)), uint16(first))
		if info.Format == op.Format4rcc {
			units = append(units, uint16(index(1)))
		}
		return units
	case op.Format51l:
		u := uint64(lit)
		return append(units, unit(code, reg(0)),
			uint16(u), uint16(u>>16), uint16(u>>32), uint16(u>>48))
	}
	errz.Invariantf("cannot encode %s", insn)
	return units
}
