// Package cst defines the symbolic constants that instructions reference:
// strings, types, prototypes, and field and method references.
//
// Constants are comparable values, so they can key maps directly and two
// constants are the same constant exactly when they are ==.
package cst

import (
	"fmt"
	"strings"
)

// Kind identifies the constant pool a constant belongs to.
type Kind uint8

const (
	KindString Kind = iota
	KindType
	KindProto
	KindField
	KindMethod
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindType:
		return "type"
	case KindProto:
		return "proto"
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	default:
		return "unknown"
	}
}

// Constant is implemented by every constant value.
type Constant interface {
	Kind() Kind
	String() string
}

// Resolver maps interned constants to their dense pool index.
type Resolver interface {
	IndexOf(c Constant) int
}

// String is a string constant.
type String string

func (s String) Kind() Kind     { return KindString }
func (s String) String() string { return string(s) }

// Quoted returns the string in Go-quoted form, for listings.
func (s String) Quoted() string { return fmt.Sprintf("%q", string(s)) }

// Type is a type descriptor such as "I" or "Ljava/lang/String;".
type Type string

const (
	Void      Type = "V"
	Boolean   Type = "Z"
	Byte      Type = "B"
	Short     Type = "S"
	Char      Type = "C"
	Int       Type = "I"
	Long      Type = "J"
	Float     Type = "F"
	Double    Type = "D"
	Object    Type = "Ljava/lang/Object;"
	StringT   Type = "Ljava/lang/String;"
	Throwable Type = "Ljava/lang/Throwable;"
)

func (t Type) Kind() Kind     { return KindType }
func (t Type) String() string { return string(t) }

// Category returns 2 for long and double, 0 for void and 1 otherwise.
func (t Type) Category() int {
	switch t {
	case Long, Double:
		return 2
	case Void:
		return 0
	default:
		return 1
	}
}

// IsReference reports whether the type is a class or array type.
func (t Type) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

// Valid reports whether t is a well-formed field type descriptor.
func (t Type) Valid() bool {
	s := string(t)
	for len(s) > 0 && s[0] == '[' {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	switch s[0] {
	case 'Z', 'B', 'S', 'C', 'I', 'J', 'F', 'D':
		return len(s) == 1
	case 'V':
		return len(s) == 1 && s == string(t)
	case 'L':
		return len(s) > 2 && s[len(s)-1] == ';' && !strings.ContainsAny(s[1:len(s)-1], ";[")
	}
	return false
}

// Shorty returns the one-character shorty form of the type.
func (t Type) Shorty() byte {
	if t.IsReference() {
		return 'L'
	}
	if len(t) == 0 {
		return 'V'
	}
	return t[0]
}

// Proto is a method prototype descriptor such as "(ILjava/lang/String;)V".
type Proto string

func (p Proto) Kind() Kind     { return KindProto }
func (p Proto) String() string { return string(p) }

// Parse splits the prototype into its return and parameter types.
func (p Proto) Parse() (Type, []Type, error) {
	s := string(p)
	if len(s) < 3 || s[0] != '(' {
		return "", nil, fmt.Errorf("invalid prototype %q", s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return "", nil, fmt.Errorf("invalid prototype %q", s)
	}
	var params []Type
	rest := s[1:end]
	for len(rest) > 0 {
		n := 0
		for n < len(rest) && rest[n] == '[' {
			n++
		}
		if n == len(rest) {
			return "", nil, fmt.Errorf("invalid prototype %q", s)
		}
		if rest[n] == 'L' {
			semi := strings.IndexByte(rest[n:], ';')
			if semi < 0 {
				return "", nil, fmt.Errorf("invalid prototype %q", s)
			}
			n += semi + 1
		} else {
			n++
		}
		t := Type(rest[:n])
		if !t.Valid() || t == Void {
			return "", nil, fmt.Errorf("invalid parameter type %q in prototype %q", t, s)
		}
		params = append(params, t)
		rest = rest[n:]
	}
	ret := Type(s[end+1:])
	if !ret.Valid() {
		return "", nil, fmt.Errorf("invalid return type %q in prototype %q", ret, s)
	}
	return ret, params, nil
}

// MustParse is like Parse but panics on malformed prototypes.
func (p Proto) MustParse() (Type, []Type) {
	ret, params, err := p.Parse()
	if err != nil {
		panic(err)
	}
	return ret, params
}

// ReturnType returns the prototype's return type.
func (p Proto) ReturnType() Type {
	ret, _ := p.MustParse()
	return ret
}

// ParamTypes returns the prototype's parameter types.
func (p Proto) ParamTypes() []Type {
	_, params := p.MustParse()
	return params
}

// ParamWords returns the number of registers the parameters occupy.
func (p Proto) ParamWords() int {
	words := 0
	for _, t := range p.ParamTypes() {
		words += t.Category()
	}
	return words
}

// Shorty returns the shorty descriptor, return type first.
func (p Proto) Shorty() string {
	ret, params := p.MustParse()
	var sb strings.Builder
	sb.WriteByte(ret.Shorty())
	for _, t := range params {
		sb.WriteByte(t.Shorty())
	}
	return sb.String()
}

// FieldRef references a field by its defining class, name and type.
type FieldRef struct {
	Class Type
	Name  string
	Type  Type
}

func (f FieldRef) Kind() Kind { return KindField }

func (f FieldRef) String() string {
	return fmt.Sprintf("%s->%s:%s", f.Class, f.Name, f.Type)
}

// MethodRef references a method by its defining class, name and prototype.
type MethodRef struct {
	Class Type
	Name  string
	Proto Proto
}

func (m MethodRef) Kind() Kind { return KindMethod }

func (m MethodRef) String() string {
	return fmt.Sprintf("%s->%s%s", m.Class, m.Name, m.Proto)
}

// ParseMethodRef parses the "Lclass;->name(params)ret" form.
func ParseMethodRef(s string) (MethodRef, error) {
	class, rest, ok := strings.Cut(s, "->")
	if !ok {
		return MethodRef{}, fmt.Errorf("invalid method reference %q", s)
	}
	paren := strings.IndexByte(rest, '(')
	if paren <= 0 {
		return MethodRef{}, fmt.Errorf("invalid method reference %q", s)
	}
	m := MethodRef{Class: Type(class), Name: rest[:paren], Proto: Proto(rest[paren:])}
	if !m.Class.IsReference() || !m.Class.Valid() {
		return MethodRef{}, fmt.Errorf("invalid class in method reference %q", s)
	}
	if _, _, err := m.Proto.Parse(); err != nil {
		return MethodRef{}, err
	}
	return m, nil
}

// ParseFieldRef parses the "Lclass;->name:type" form.
func ParseFieldRef(s string) (FieldRef, error) {
	class, rest, ok := strings.Cut(s, "->")
	if !ok {
		return FieldRef{}, fmt.Errorf("invalid field reference %q", s)
	}
	name, typ, ok := strings.Cut(rest, ":")
	if !ok || name == "" {
		return FieldRef{}, fmt.Errorf("invalid field reference %q", s)
	}
	f := FieldRef{Class: Type(class), Name: name, Type: Type(typ)}
	if !f.Class.IsReference() || !f.Class.Valid() || !f.Type.Valid() || f.Type == Void {
		return FieldRef{}, fmt.Errorf("invalid field reference %q", s)
	}
	return f, nil
}
