package code

import (
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/dexasm/errz"
)

// Disposition says whether a local entry starts a variable and, if not, why
// the variable ended.
type Disposition uint8

const (
	Start Disposition = iota
	// EndSimply is an explicit end of scope.
	EndSimply
	// EndReplaced ends a local because another one started in its register.
	EndReplaced
	// EndClobberedByPrev ends a local overwritten by a wide local starting
	// in the register before it.
	EndClobberedByPrev
	// EndClobberedByNext ends a wide local whose upper half was overwritten
	// by a local starting in the next register.
	EndClobberedByNext
)

func (d Disposition) String() string {
	switch d {
	case Start:
		return "start"
	case EndSimply:
		return "end"
	case EndReplaced:
		return "end-replaced"
	case EndClobberedByPrev:
		return "end-clobbered-by-prev"
	case EndClobberedByNext:
		return "end-clobbered-by-next"
	default:
		return "unknown"
	}
}

// LocalEntry is a start or an end of a local variable at an address.
type LocalEntry struct {
	Address     int
	Disposition Disposition
	Reg         Register
}

// IsStart reports whether the entry starts a local.
func (e LocalEntry) IsStart() bool { return e.Disposition == Start }

// Matches reports whether both entries describe the same local in the same
// register.
func (e LocalEntry) Matches(o LocalEntry) bool {
	return e.Reg.Num == o.Reg.Num && e.Reg.SameLocal(o.Reg)
}

func (e LocalEntry) String() string {
	return fmt.Sprintf("%04x %s %s", e.Address, e.Disposition, e.Reg)
}

type localEntryNode struct {
	LocalEntry
	removed bool
}

type localsState struct {
	live    map[int]Register
	lastEnd map[int]*localEntryNode
	entries []*localEntryNode
}

// Locals returns the local variable table of the finished list: every start
// and end in address order, ends before starts at the same address.
func (f *Finished) Locals() []LocalEntry {
	s := &localsState{
		live:    map[int]Register{},
		lastEnd: map[int]*localEntryNode{},
	}
	for _, insn := range f.insns {
		switch insn.kind {
		case KindLocalStart:
			s.start(insn.address, insn.regs[0])
		case KindLocalEnd:
			s.end(insn.address, EndSimply, insn.regs[0].Num)
		}
	}
	out := make([]LocalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.removed {
			out = append(out, e.LocalEntry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return !out[i].IsStart() && out[j].IsStart()
	})
	return out
}

func (s *localsState) start(address int, reg Register) {
	n := reg.Num
	if live, ok := s.live[n]; ok {
		if live.SameLocal(reg) {
			return
		}
		s.end(address, EndReplaced, n)
	} else if end, ok := s.lastEnd[n]; ok && end.Address == address && end.Reg.SameLocal(reg) {
		// Ended and restarted at the same address: the end never happened.
		end.removed = true
		delete(s.lastEnd, n)
		s.live[n] = reg
		return
	}
	if prev, ok := s.live[n-1]; ok && prev.Category() == 2 {
		s.end(address, EndClobberedByNext, n-1)
	}
	if reg.Category() == 2 {
		if _, ok := s.live[n+1]; ok {
			s.end(address, EndClobberedByPrev, n+1)
		}
	}
	s.live[n] = reg
	s.entries = append(s.entries, &localEntryNode{LocalEntry: LocalEntry{
		Address:     address,
		Disposition: Start,
		Reg:         reg,
	}})
}

func (s *localsState) end(address int, disposition Disposition, n int) {
	live, ok := s.live[n]
	if !ok {
		errz.Invariantf("local end at %04x on v%d, which holds no local", address, n)
	}
	delete(s.live, n)
	node := &localEntryNode{LocalEntry: LocalEntry{
		Address:     address,
		Disposition: disposition,
		Reg:         live,
	}}
	s.lastEnd[n] = node
	s.entries = append(s.entries, node)
}
