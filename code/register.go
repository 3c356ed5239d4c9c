package code

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/dexasm/cst"
)

// LocalItem names the source-level variable held by a register.
type LocalItem struct {
	Name      string
	Type      cst.Type
	Signature string
}

// Register is a register operand. The value type decides the category (wide
// values occupy Num and Num+1) and which move opcode copies it.
type Register struct {
	Num   int
	Type  cst.Type
	Local *LocalItem
}

// Reg returns a register of the given number and type.
func Reg(num int, typ cst.Type) Register {
	return Register{Num: num, Type: typ}
}

// Category returns the number of register slots the value occupies.
func (r Register) Category() int {
	if r.Type.Category() == 2 {
		return 2
	}
	return 1
}

// IsReference reports whether the register holds an object reference.
func (r Register) IsReference() bool {
	return r.Type.IsReference()
}

// IsEven reports whether the register number is even.
func (r Register) IsEven() bool {
	return r.Num&1 == 0
}

// WithNum returns a copy of the register renumbered to num.
func (r Register) WithNum(num int) Register {
	r.Num = num
	return r
}

// WithLocal returns a copy of the register annotated with a local variable.
func (r Register) WithLocal(item LocalItem) Register {
	r.Local = &item
	return r
}

// SameLocal reports whether both registers hold the same local variable in
// the same register with the same type.
func (r Register) SameLocal(o Register) bool {
	if r.Num != o.Num || r.Type != o.Type {
		return false
	}
	if r.Local == nil || o.Local == nil {
		return r.Local == o.Local
	}
	return *r.Local == *o.Local
}

func (r Register) String() string {
	if r.Category() == 2 {
		return fmt.Sprintf("v%d:%s", r.Num, r.Type)
	}
	return fmt.Sprintf("v%d", r.Num)
}

// RegisterList is an ordered list of register operands. Lists are never
// modified after construction; every transformation returns a new list.
type RegisterList []Register

// Regs builds a register list.
func Regs(regs ...Register) RegisterList {
	return RegisterList(regs)
}

// WordCount returns the number of register slots the list occupies.
func (l RegisterList) WordCount() int {
	words := 0
	for _, r := range l {
		words += r.Category()
	}
	return words
}

// WithOffset returns the list with every register number increased by delta.
func (l RegisterList) WithOffset(delta int) RegisterList {
	if len(l) == 0 || delta == 0 {
		return l
	}
	out := make(RegisterList, len(l))
	for i, r := range l {
		out[i] = r.WithNum(r.Num + delta)
	}
	return out
}

// WithMapper returns the list with every register number passed through fn.
func (l RegisterList) WithMapper(fn func(int) int) RegisterList {
	if len(l) == 0 {
		return l
	}
	out := make(RegisterList, len(l))
	for i, r := range l {
		out[i] = r.WithNum(fn(r.Num))
	}
	return out
}

// Subset returns the registers whose entry in exclude is false.
func (l RegisterList) Subset(exclude []bool) RegisterList {
	var out RegisterList
	for i, r := range l {
		if i < len(exclude) && exclude[i] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// WithExpanded renumbers the registers not marked in compat into a dense
// run starting at base. With duplicateFirst set, the first register takes
// base without advancing it, so a result register shares its scratch slot
// with the first replaced source. A nil compat replaces every register.
func (l RegisterList) WithExpanded(base int, duplicateFirst bool, compat []bool) RegisterList {
	if len(l) == 0 {
		return l
	}
	out := make(RegisterList, len(l))
	for i, r := range l {
		replace := compat == nil || i >= len(compat) || !compat[i]
		if replace {
			out[i] = r.WithNum(base)
			if !duplicateFirst {
				base += r.Category()
			}
		} else {
			out[i] = r
		}
		duplicateFirst = false
	}
	return out
}

// IsContiguous reports whether each register directly follows the previous
// one, as range instructions require.
func (l RegisterList) IsContiguous() bool {
	for i := 1; i < len(l); i++ {
		if l[i].Num != l[i-1].Num+l[i-1].Category() {
			return false
		}
	}
	return true
}

// Words expands the list into one register number per slot, listing both
// halves of wide registers.
func (l RegisterList) Words() []int {
	words := make([]int, 0, l.WordCount())
	for _, r := range l {
		words = append(words, r.Num)
		if r.Category() == 2 {
			words = append(words, r.Num+1)
		}
	}
	return words
}

func (l RegisterList) String() string {
	parts := make([]string, len(l))
	for i, r := range l {
		parts[i] = r.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
