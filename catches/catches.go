// Package catches builds the exception handler table of a code item.
//
// Try ranges that share a handler list refer to a single encoded copy of the
// list. Lists are written in a stable order so the same input always yields
// the same bytes.
package catches

import (
	"fmt"
	"sort"
	"strings"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
	"github.com/deepnoodle-ai/dexasm/internal/dexio"
)

const (
	maxLists      = 0xffff
	maxInsnCount  = 0xffff
	maxListOffset = 0xffff
)

// NoCatchAll is the CatchAll value of a list without a catch-all handler.
const NoCatchAll = -1

// Handler is a typed catch clause: exceptions assignable to Type are handled
// at Address.
type Handler struct {
	Type    cst.Type
	Address int
}

// HandlerList is the ordered list of handlers that protect a range, plus an
// optional catch-all address. Two lists are equal when their handlers and
// catch-all are equal.
type HandlerList struct {
	Handlers []Handler
	CatchAll int
}

// NewHandlerList returns a list without a catch-all.
func NewHandlerList(handlers ...Handler) HandlerList {
	return HandlerList{Handlers: handlers, CatchAll: NoCatchAll}
}

// HasCatchAll reports whether the list ends in a catch-all handler.
func (l HandlerList) HasCatchAll() bool { return l.CatchAll >= 0 }

// Size returns the number of entries, the catch-all included.
func (l HandlerList) Size() int {
	if l.HasCatchAll() {
		return len(l.Handlers) + 1
	}
	return len(l.Handlers)
}

// Equal reports structural equality.
func (l HandlerList) Equal(o HandlerList) bool {
	if l.CatchAll != o.CatchAll || len(l.Handlers) != len(o.Handlers) {
		return false
	}
	for i := range l.Handlers {
		if l.Handlers[i] != o.Handlers[i] {
			return false
		}
	}
	return true
}

func (l HandlerList) key() string {
	var sb strings.Builder
	for _, h := range l.Handlers {
		fmt.Fprintf(&sb, "%s@%d;", h.Type, h.Address)
	}
	fmt.Fprintf(&sb, "*@%d", l.CatchAll)
	return sb.String()
}

func (l HandlerList) String() string {
	parts := make([]string, 0, l.Size())
	for _, h := range l.Handlers {
		parts = append(parts, fmt.Sprintf("%s -> %04x", h.Type, h.Address))
	}
	if l.HasCatchAll() {
		parts = append(parts, fmt.Sprintf("<any> -> %04x", l.CatchAll))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// entries returns the list with the catch-all as a final untyped entry.
func (l HandlerList) entries() []Handler {
	out := append([]Handler(nil), l.Handlers...)
	if l.HasCatchAll() {
		out = append(out, Handler{Address: l.CatchAll})
	}
	return out
}

// compareLists orders lists by handler address, then exception type, entry
// by entry, with a shorter list first when one is a prefix of the other.
func compareLists(a, b HandlerList) int {
	ea, eb := a.entries(), b.entries()
	for i := 0; i < len(ea) && i < len(eb); i++ {
		if ea[i].Address != eb[i].Address {
			if ea[i].Address < eb[i].Address {
				return -1
			}
			return 1
		}
		if c := strings.Compare(string(ea[i].Type), string(eb[i].Type)); c != 0 {
			return c
		}
	}
	return len(ea) - len(eb)
}

// Range is a try block: addresses in [Start, End) are protected by Handlers.
type Range struct {
	Start    int
	End      int
	Handlers HandlerList
}

// RangesOf resolves the try blocks of a finished method into address
// ranges. Empty ranges are dropped.
func RangesOf(f *code.Finished) []Range {
	var out []Range
	for _, t := range f.Tries() {
		start, end := f.Address(t.Start), f.Address(t.End)
		if start >= end {
			continue
		}
		list := HandlerList{CatchAll: NoCatchAll}
		for _, c := range t.Catches {
			list.Handlers = append(list.Handlers, Handler{Type: c.Type, Address: f.Address(c.Handler)})
		}
		if t.CatchAll != code.NoLabel {
			list.CatchAll = f.Address(t.CatchAll)
		}
		out = append(out, Range{Start: start, End: end, Handlers: list})
	}
	return out
}

type tryEntry struct {
	start     int
	insnCount int
	offset    int
}

// Table is an encoded handler table: the try entries and the handler list
// payload they refer to.
type Table struct {
	tries   []tryEntry
	lists   []HandlerList
	offsets []int
	payload []byte
}

// Build deduplicates the handler lists of ranges, encodes them once each and
// encodes one try entry per range, in start address order. Ranges must not
// overlap.
func Build(ranges []Range, resolver cst.Resolver) (*Table, error) {
	index := map[string]int{}
	var lists []HandlerList
	for _, r := range ranges {
		k := r.Handlers.key()
		if _, ok := index[k]; !ok {
			index[k] = len(lists)
			lists = append(lists, r.Handlers)
		}
	}
	if len(lists) > maxLists {
		return nil, errz.Newf(errz.ErrSizeOverflow, "too many catch handler lists: %d", len(lists))
	}
	sort.SliceStable(lists, func(i, j int) bool { return compareLists(lists[i], lists[j]) < 0 })

	w := dexio.NewWriter()
	w.WriteULEB128(uint32(len(lists)))
	offsets := make([]int, len(lists))
	for i, l := range lists {
		offsets[i] = w.Len()
		index[l.key()] = i
		size := int32(len(l.Handlers))
		if l.HasCatchAll() {
			size = -size
		}
		w.WriteSLEB128(size)
		for _, h := range l.Handlers {
			typeIndex := 0
			if resolver != nil {
				typeIndex = resolver.IndexOf(h.Type)
			}
			w.WriteULEB128(uint32(typeIndex))
			w.WriteULEB128(uint32(h.Address))
		}
		if l.HasCatchAll() {
			w.WriteULEB128(uint32(l.CatchAll))
		}
		if offsets[i] > maxListOffset {
			return nil, errz.Newf(errz.ErrSizeOverflow, "catch handler offset %d out of range", offsets[i])
		}
	}

	sorted := append([]Range(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	tries := make([]tryEntry, 0, len(sorted))
	for i, r := range sorted {
		count := r.End - r.Start
		if count <= 0 || count > maxInsnCount {
			return nil, errz.Newf(errz.ErrSizeOverflow, "bogus exception range %04x..%04x", r.Start, r.End).
				WithAddress(r.Start)
		}
		if i > 0 && r.Start < sorted[i-1].End {
			return nil, errz.Newf(errz.ErrInvariant, "exception range %04x..%04x overlaps %04x..%04x",
				r.Start, r.End, sorted[i-1].Start, sorted[i-1].End).WithAddress(r.Start)
		}
		tries = append(tries, tryEntry{
			start:     r.Start,
			insnCount: count,
			offset:    offsets[index[r.Handlers.key()]],
		})
	}
	return &Table{tries: tries, lists: lists, offsets: offsets, payload: w.Bytes()}, nil
}

// TriesSize returns the number of try entries.
func (t *Table) TriesSize() int { return len(t.tries) }

// Lists returns the distinct handler lists in encoding order.
func (t *Table) Lists() []HandlerList { return t.lists }

// Offset returns the payload offset of a list, or -1 if the table does not
// contain it.
func (t *Table) Offset(l HandlerList) int {
	for i, o := range t.lists {
		if o.Equal(l) {
			return t.offsets[i]
		}
	}
	return -1
}

// Payload returns the encoded handler lists, starting with their count.
func (t *Table) Payload() []byte { return t.payload }

// WriteTo writes the try entries followed by the handler payload.
func (t *Table) WriteTo(w *dexio.Writer) {
	for _, e := range t.tries {
		w.WriteU32(uint32(e.start))
		w.WriteU16(uint16(e.insnCount))
		w.WriteU16(uint16(e.offset))
	}
	_, _ = w.Write(t.payload)
}

// Size returns the number of bytes WriteTo writes.
func (t *Table) Size() int {
	return 8*len(t.tries) + len(t.payload)
}
