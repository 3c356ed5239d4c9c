package code

// PositionPolicy selects which source positions are kept in the debug
// information.
type PositionPolicy uint8

const (
	// PositionsNone keeps no positions.
	PositionsNone PositionPolicy = iota
	// PositionsLines keeps every line change.
	PositionsLines
	// PositionsImportant keeps only line changes at branch targets and
	// other labelled addresses.
	PositionsImportant
)

func (p PositionPolicy) String() string {
	switch p {
	case PositionsNone:
		return "none"
	case PositionsLines:
		return "lines"
	case PositionsImportant:
		return "important"
	default:
		return "unknown"
	}
}

// ParsePositionPolicy parses the String form of a policy.
func ParsePositionPolicy(s string) (PositionPolicy, bool) {
	for _, p := range []PositionPolicy{PositionsNone, PositionsLines, PositionsImportant} {
		if p.String() == s {
			return p, true
		}
	}
	return PositionsNone, false
}

// PositionEntry maps an address to a source line.
type PositionEntry struct {
	Address int
	Line    int
}

// Positions returns the address to line table of the finished list,
// filtered by policy. Entries are in increasing address order and no two
// consecutive entries share a line.
func (f *Finished) Positions(policy PositionPolicy) []PositionEntry {
	if policy == PositionsNone {
		return nil
	}
	var (
		out           []PositionEntry
		prev          Position
		lastWasTarget bool
	)
	for _, insn := range f.insns {
		if insn.IsMarker() {
			lastWasTarget = true
			continue
		}
		pos := insn.pos
		if !pos.Known() || pos.Line == prev.Line {
			continue
		}
		if policy == PositionsImportant && !lastWasTarget {
			continue
		}
		prev = pos
		out = append(out, PositionEntry{Address: insn.address, Line: pos.Line})
		lastWasTarget = false
	}
	return out
}
