package code

import (
	"math"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/op"
)

func fitsNibble(v int) bool             { return v >= 0 && v <= 0x0f }
func fitsByte(v int) bool               { return v >= 0 && v <= 0xff }
func fitsShort(v int) bool              { return v >= 0 && v <= 0xffff }
func signedNibble(v int64) bool         { return v >= -8 && v <= 7 }
func signedByte(v int64) bool           { return v >= math.MinInt8 && v <= math.MaxInt8 }
func signedShort(v int64) bool          { return v >= math.MinInt16 && v <= math.MaxInt16 }
func signedInt(v int64) bool            { return v >= math.MinInt32 && v <= math.MaxInt32 }
func highShort32(v int64) bool          { return signedInt(v) && v&0xffff == 0 }
func highShort64(v int64) bool          { return v&0xffffffffffff == 0 }
func lastRegFitsNibble(r Register) bool { return fitsNibble(r.Num + r.Category() - 1) }

// Compatible reports whether insn can be encoded with the given opcode's
// format. Branch displacements are not considered; see BranchFits.
func Compatible(code op.Code, insn Insn, resolver cst.Resolver) bool {
	info := op.GetInfo(code)
	if !info.Valid() {
		return false
	}
	regs := insn.regs
	isBranch := insn.kind == KindBranch
	if isBranch != info.Format.IsBranch() {
		return false
	}
	switch info.Format {
	case op.Format10x:
		return len(regs) == 0
	case op.Format12x:
		switch len(regs) {
		case 2:
			return fitsNibble(regs[0].Num) && fitsNibble(regs[1].Num)
		case 3:
			return regs[0].Num == regs[1].Num && fitsNibble(regs[1].Num) && fitsNibble(regs[2].Num)
		}
		return false
	case op.Format11n:
		return len(regs) == 1 && fitsNibble(regs[0].Num) && signedNibble(insn.literal)
	case op.Format11x:
		return len(regs) == 1 && fitsByte(regs[0].Num)
	case op.Format10t, op.Format20t, op.Format30t:
		return len(regs) == 0
	case op.Format22x:
		return len(regs) == 2 && fitsByte(regs[0].Num) && fitsShort(regs[1].Num)
	case op.Format21t, op.Format31t:
		return len(regs) == 1 && fitsByte(regs[0].Num)
	case op.Format21s:
		return len(regs) == 1 && fitsByte(regs[0].Num) && signedShort(insn.literal)
	case op.Format21h:
		if len(regs) != 1 || !fitsByte(regs[0].Num) {
			return false
		}
		if info.Wide {
			return highShort64(insn.literal)
		}
		return highShort32(insn.literal)
	case op.Format21c:
		return singleOrSameReg(regs, fitsByte) && indexFits(insn, resolver, 0, 0xffff)
	case op.Format31c:
		return singleOrSameReg(regs, fitsByte) && indexFits(insn, resolver, 0, math.MaxUint32)
	case op.Format23x:
		return len(regs) == 3 && fitsByte(regs[0].Num) && fitsByte(regs[1].Num) && fitsByte(regs[2].Num)
	case op.Format22b:
		return len(regs) == 2 && fitsByte(regs[0].Num) && fitsByte(regs[1].Num) && signedByte(insn.literal)
	case op.Format22t:
		return len(regs) == 2 && fitsNibble(regs[0].Num) && fitsNibble(regs[1].Num)
	case op.Format22s:
		return len(regs) == 2 && fitsNibble(regs[0].Num) && fitsNibble(regs[1].Num) && signedShort(insn.literal)
	case op.Format22c:
		return len(regs) == 2 && fitsNibble(regs[0].Num) && fitsNibble(regs[1].Num) &&
			indexFits(insn, resolver, 0, 0xffff)
	case op.Format32x:
		return len(regs) == 2 && fitsShort(regs[0].Num) && fitsShort(regs[1].Num)
	case op.Format31i:
		return len(regs) == 1 && fitsByte(regs[0].Num) && signedInt(insn.literal)
	case op.Format51l:
		return len(regs) == 1 && fitsByte(regs[0].Num)
	case op.Format35c:
		return shortListFits(regs) && indexFits(insn, resolver, 0, 0xffff)
	case op.Format45cc:
		return shortListFits(regs) && indexFits(insn, resolver, 0, 0xffff) && indexFits(insn, resolver, 1, 0xffff)
	case op.Format3rc:
		return rangeFits(regs) && indexFits(insn, resolver, 0, 0xffff)
	case op.Format4rcc:
		return rangeFits(regs) && indexFits(insn, resolver, 0, 0xffff) && indexFits(insn, resolver, 1, 0xffff)
	}
	return false
}

func singleOrSameReg(regs RegisterList, fits func(int) bool) bool {
	switch len(regs) {
	case 1:
		return fits(regs[0].Num)
	case 2:
		return regs[0].Num == regs[1].Num && fits(regs[0].Num)
	}
	return false
}

func shortListFits(regs RegisterList) bool {
	if regs.WordCount() > 5 {
		return false
	}
	for _, r := range regs {
		if !lastRegFitsNibble(r) {
			return false
		}
	}
	return true
}

func rangeFits(regs RegisterList) bool {
	if regs.WordCount() > 0xff || !regs.IsContiguous() {
		return false
	}
	return len(regs) == 0 || (fitsShort(regs[0].Num) && fitsShort(regs[len(regs)-1].Num+regs[len(regs)-1].Category()-1))
}

func indexFits(insn Insn, resolver cst.Resolver, n int, limit int64) bool {
	if n >= len(insn.consts) {
		return false
	}
	if resolver == nil {
		// Without a resolver every index is treated as zero.
		return true
	}
	idx := int64(resolver.IndexOf(insn.consts[n]))
	return idx >= 0 && idx <= limit
}

// CompatibleRegs reports, per register of insn, whether the register number
// fits its field in the given format. Formats that cannot be fixed by
// renumbering individual registers report every register incompatible.
func CompatibleRegs(code op.Code, insn Insn) []bool {
	regs := insn.regs
	bits := make([]bool, len(regs))
	all := func(fits func(int) bool) {
		for i, r := range regs {
			bits[i] = fits(r.Num)
		}
	}
	switch op.GetInfo(code).Format {
	case op.Format12x:
		switch len(regs) {
		case 2:
			all(fitsNibble)
		case 3:
			if regs[0].Num == regs[1].Num {
				bits[0] = fitsNibble(regs[1].Num)
				bits[1] = bits[0]
			}
			bits[2] = fitsNibble(regs[2].Num)
		}
	case op.Format11n:
		all(fitsNibble)
	case op.Format11x, op.Format21t, op.Format21s, op.Format21h, op.Format31i,
		op.Format31t, op.Format51l, op.Format23x, op.Format22b:
		all(fitsByte)
	case op.Format21c, op.Format31c:
		if len(regs) == 1 || (len(regs) == 2 && regs[0].Num == regs[1].Num) {
			all(fitsByte)
		}
	case op.Format22x:
		if len(regs) == 2 {
			bits[0] = fitsByte(regs[0].Num)
			bits[1] = fitsShort(regs[1].Num)
		}
	case op.Format22t, op.Format22s, op.Format22c:
		all(fitsNibble)
	case op.Format32x:
		all(fitsShort)
	case op.Format35c, op.Format45cc:
		for i, r := range regs {
			bits[i] = lastRegFitsNibble(r)
		}
	}
	return bits
}

// BranchFits reports whether a branch displacement, in code units, fits the
// format of the opcode. The 8- and 16-bit forms cannot encode a zero
// displacement.
func BranchFits(code op.Code, offset int) bool {
	switch op.GetInfo(code).Format {
	case op.Format10t:
		return offset != 0 && signedByte(int64(offset))
	case op.Format20t, op.Format21t, op.Format22t:
		return offset != 0 && signedShort(int64(offset))
	case op.Format30t, op.Format31t:
		return true
	}
	return false
}

// FindOpcode walks the widen chain from guess and returns the first opcode
// whose format is compatible with insn, or op.Invalid if the chain is
// exhausted.
func FindOpcode(insn Insn, guess op.Code, resolver cst.Resolver) op.Code {
	for guess != op.Invalid {
		if Compatible(guess, insn, resolver) {
			return guess
		}
		guess = op.Next(guess)
	}
	return op.Invalid
}
