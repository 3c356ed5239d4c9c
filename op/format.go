package op

// Format identifies one concrete instruction encoding. Names follow the DEX
// format ids: the first digit is the size in code units, the second the
// number of registers, and the letter the kind of extra data.
type Format uint8

const (
	FormatNone Format = iota
	Format10x
	Format12x
	Format11n
	Format11x
	Format10t
	Format20t
	Format22x
	Format21t
	Format21s
	Format21h
	Format21c
	Format23x
	Format22b
	Format22t
	Format22s
	Format22c
	Format30t
	Format32x
	Format31i
	Format31t
	Format31c
	Format35c
	Format3rc
	Format45cc
	Format4rcc
	Format51l
	// FormatSpecial covers pseudo-instructions whose size is not fixed by
	// an opcode: markers, spacers and payloads.
	FormatSpecial
)

var formatNames = [...]string{
	FormatNone:    "none",
	Format10x:     "10x",
	Format12x:     "12x",
	Format11n:     "11n",
	Format11x:     "11x",
	Format10t:     "10t",
	Format20t:     "20t",
	Format22x:     "22x",
	Format21t:     "21t",
	Format21s:     "21s",
	Format21h:     "21h",
	Format21c:     "21c",
	Format23x:     "23x",
	Format22b:     "22b",
	Format22t:     "22t",
	Format22s:     "22s",
	Format22c:     "22c",
	Format30t:     "30t",
	Format32x:     "32x",
	Format31i:     "31i",
	Format31t:     "31t",
	Format31c:     "31c",
	Format35c:     "35c",
	Format3rc:     "3rc",
	Format45cc:    "45cc",
	Format4rcc:    "4rcc",
	Format51l:     "51l",
	FormatSpecial: "special",
}

// String returns the DEX format id, e.g. "22x".
func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// CodeUnits returns the encoded size of the format in 16-bit code units.
// Special formats return 0; their size depends on the instruction.
func (f Format) CodeUnits() int {
	switch f {
	case Format10x, Format12x, Format11n, Format11x, Format10t:
		return 1
	case Format20t, Format22x, Format21t, Format21s, Format21h, Format21c,
		Format23x, Format22b, Format22t, Format22s, Format22c:
		return 2
	case Format30t, Format32x, Format31i, Format31t, Format31c, Format35c, Format3rc:
		return 3
	case Format45cc, Format4rcc:
		return 4
	case Format51l:
		return 5
	default:
		return 0
	}
}

// IsBranch reports whether the format carries a branch displacement.
func (f Format) IsBranch() bool {
	switch f {
	case Format10t, Format20t, Format30t, Format21t, Format22t, Format31t:
		return true
	}
	return false
}

// HasLiteral reports whether the format carries an immediate value.
func (f Format) HasLiteral() bool {
	switch f {
	case Format11n, Format21s, Format21h, Format31i, Format51l, Format22b, Format22s:
		return true
	}
	return false
}

// IsRegisterList reports whether the format takes a variable register list.
func (f Format) IsRegisterList() bool {
	switch f {
	case Format35c, Format3rc, Format45cc, Format4rcc:
		return true
	}
	return false
}

// RegisterCount returns the number of register operands of the format, or
// -1 for register list formats.
func (f Format) RegisterCount() int {
	switch f {
	case Format10x, Format10t, Format20t, Format30t:
		return 0
	case Format11n, Format11x, Format21t, Format31t, Format21s, Format21h,
		Format21c, Format31c, Format31i, Format51l:
		return 1
	case Format12x, Format22x, Format22b, Format22t, Format22s, Format22c, Format32x:
		return 2
	case Format23x:
		return 3
	}
	return -1
}
