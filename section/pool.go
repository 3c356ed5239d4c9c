package section

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/errz"
)

// Pool holds the constant sections of one output unit. It is created once per
// unit and passed to every method assembler of that unit; it is never shared
// between units.
type Pool struct {
	Strings *Section[string]
	Types   *Section[cst.Type]
	Protos  *Section[cst.Proto]
	Fields  *Section[cst.FieldRef]
	Methods *Section[cst.MethodRef]
}

// NewPool returns a pool with empty sections.
func NewPool() *Pool {
	return &Pool{
		Strings: New("string_ids", func(a, b string) bool { return CompareStrings(a, b) < 0 }),
		Types:   New("type_ids", func(a, b cst.Type) bool { return compareTypes(a, b) < 0 }),
		Protos:  New("proto_ids", func(a, b cst.Proto) bool { return compareProtos(a, b) < 0 }),
		Fields:  New("field_ids", lessField),
		Methods: New("method_ids", lessMethod),
	}
}

// Intern adds c and every constant it depends on. A type depends on its
// descriptor string; a proto on its shorty, return and parameter types; a
// member reference on its class, name and type or proto.
func (p *Pool) Intern(c cst.Constant) {
	switch c := c.(type) {
	case cst.String:
		p.Strings.Intern(string(c))
	case cst.Type:
		p.Types.Intern(c)
		p.Strings.Intern(string(c))
	case cst.Proto:
		ret, params := c.MustParse()
		p.Protos.Intern(c)
		p.Strings.Intern(c.Shorty())
		p.Intern(ret)
		for _, t := range params {
			p.Intern(t)
		}
	case cst.FieldRef:
		p.Fields.Intern(c)
		p.Intern(c.Class)
		p.Intern(c.Type)
		p.Strings.Intern(c.Name)
	case cst.MethodRef:
		p.Methods.Intern(c)
		p.Intern(c.Class)
		p.Intern(c.Proto)
		p.Strings.Intern(c.Name)
	default:
		errz.Invariantf("cannot intern constant %v of type %T", c, c)
	}
}

// Prepare prepares every section.
func (p *Pool) Prepare() {
	p.Strings.Prepare()
	p.Types.Prepare()
	p.Protos.Prepare()
	p.Fields.Prepare()
	p.Methods.Prepare()
}

// IndexOf returns the index of c within its section.
func (p *Pool) IndexOf(c cst.Constant) int {
	idx, ok := p.Find(c)
	if !ok {
		errz.Invariantf("%s not found: %v", c.Kind(), c)
	}
	return idx
}

// Find returns the index of c and whether it was interned.
func (p *Pool) Find(c cst.Constant) (int, bool) {
	switch c := c.(type) {
	case cst.String:
		return p.Strings.Find(string(c))
	case cst.Type:
		return p.Types.Find(c)
	case cst.Proto:
		return p.Protos.Find(c)
	case cst.FieldRef:
		return p.Fields.Find(c)
	case cst.MethodRef:
		return p.Methods.Find(c)
	}
	errz.Invariantf("unknown constant %v of type %T", c, c)
	return -1, false
}

// CompareStrings orders strings by their UTF-16 code units, which is the
// order string ids must follow.
func CompareStrings(a, b string) int {
	for len(a) > 0 && len(b) > 0 {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			ua, ub := utf16Units(ra), utf16Units(rb)
			for i := 0; i < len(ua) && i < len(ub); i++ {
				if ua[i] != ub[i] {
					if ua[i] < ub[i] {
						return -1
					}
					return 1
				}
			}
			// Distinct runes never share their full unit sequence.
			if len(ua) < len(ub) {
				return -1
			}
			return 1
		}
		a, b = a[na:], b[nb:]
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) == 0:
		return -1
	default:
		return 1
	}
}

func utf16Units(r rune) []uint16 {
	if r >= 0x10000 {
		r1, r2 := utf16.EncodeRune(r)
		return []uint16{uint16(r1), uint16(r2)}
	}
	return []uint16{uint16(r)}
}

// compareTypes orders types as their descriptor strings are ordered, which
// makes type index order follow string index order.
func compareTypes(a, b cst.Type) int {
	return CompareStrings(string(a), string(b))
}

func compareProtos(a, b cst.Proto) int {
	ra, pa := a.MustParse()
	rb, pb := b.MustParse()
	if c := compareTypes(ra, rb); c != 0 {
		return c
	}
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if c := compareTypes(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	return len(pa) - len(pb)
}

func lessField(a, b cst.FieldRef) bool {
	if c := compareTypes(a.Class, b.Class); c != 0 {
		return c < 0
	}
	if c := CompareStrings(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return compareTypes(a.Type, b.Type) < 0
}

func lessMethod(a, b cst.MethodRef) bool {
	if c := compareTypes(a.Class, b.Class); c != 0 {
		return c < 0
	}
	if c := CompareStrings(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return compareProtos(a.Proto, b.Proto) < 0
}

// Describe returns a short summary of the pool, e.g. for logs.
func (p *Pool) Describe() string {
	return fmt.Sprintf("%s=%d %s=%d %s=%d %s=%d %s=%d",
		p.Strings.Name(), p.Strings.Len(),
		p.Types.Name(), p.Types.Len(),
		p.Protos.Name(), p.Protos.Len(),
		p.Fields.Name(), p.Fields.Len(),
		p.Methods.Name(), p.Methods.Len())
}
