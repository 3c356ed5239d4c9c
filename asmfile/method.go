package asmfile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/dexasm"
	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/internal/lexer"
	"github.com/deepnoodle-ai/dexasm/internal/token"
	"github.com/deepnoodle-ai/dexasm/op"
)

// operand is one comma-separated operand of an instruction.
type operand struct {
	pos    token.Position
	toks   []token.Token
	braced bool
}

func (o operand) String() string {
	lits := make([]string, len(o.toks))
	for i, t := range o.toks {
		lits[i] = t.Literal
	}
	if o.braced {
		return "{" + strings.Join(lits, ", ") + "}"
	}
	return strings.Join(lits, " ")
}

// single returns the operand's token if it is a lone token of type typ.
func (o operand) single(typ token.Type) (token.Token, bool) {
	if o.braced || len(o.toks) != 1 || o.toks[0].Type != typ {
		return token.Token{}, false
	}
	return o.toks[0], true
}

type labelUse struct {
	name string
	pos  token.Position
}

type methodParser struct {
	b      *code.Builder
	labels map[string]code.Label
	marked map[string]bool
	uses   []labelUse
	locals map[int]code.Register
	errs   *multierror.Error
}

func parseMethod(md methodDoc) (dexasm.Method, error) {
	ref, err := md.ref()
	if err != nil {
		return dexasm.Method{}, err
	}
	if md.Registers < 0 || md.Registers > math.MaxUint16 {
		return dexasm.Method{}, fmt.Errorf("invalid register count %d", md.Registers)
	}
	p := &methodParser{
		b:      code.NewBuilder(),
		labels: map[string]code.Label{},
		marked: map[string]bool{},
		locals: map[int]code.Register{},
	}
	switch md.Code.Kind {
	case 0:
	case yaml.SequenceNode:
		for _, n := range md.Code.Content {
			if n.Kind != yaml.ScalarNode {
				p.errorf(token.Position{Line: n.Line}, "code line must be a string")
				continue
			}
			p.parseLine(n.Value, n.Line)
		}
	default:
		p.errorf(token.Position{Line: md.Code.Line}, "code must be a list of lines")
	}
	for i, t := range md.Tries {
		if err := p.addTry(t); err != nil {
			p.errs = multierror.Append(p.errs, fmt.Errorf("try %d: %w", i, err))
		}
	}
	for _, use := range p.uses {
		if !p.marked[use.name] {
			p.errorf(use.pos, "undefined label %q", use.name)
		}
	}
	if err := p.errs.ErrorOrNil(); err != nil {
		return dexasm.Method{}, err
	}
	block, err := p.b.Build()
	if err != nil {
		return dexasm.Method{}, err
	}
	return dexasm.Method{
		Ref:       ref,
		Static:    md.Static,
		Registers: md.Registers,
		Block:     block,
	}, nil
}

func (p *methodParser) errorf(pos token.Position, format string, args ...any) {
	p.errs = multierror.Append(p.errs, fmt.Errorf("%s: %s", pos, fmt.Sprintf(format, args...)))
}

func (p *methodParser) label(name string) code.Label {
	l, ok := p.labels[name]
	if !ok {
		l = p.b.NewLabel()
		p.labels[name] = l
	}
	return l
}

func (p *methodParser) use(tok token.Token) code.Label {
	p.uses = append(p.uses, labelUse{name: tok.Literal, pos: tok.StartPosition})
	return p.label(tok.Literal)
}

func (p *methodParser) parseLine(text string, line int) {
	l := lexer.New(text)
	l.SetLine(line)
	toks, err := l.All()
	if err != nil {
		p.errs = multierror.Append(p.errs, err)
		return
	}
	if len(toks) == 0 {
		return
	}
	first := toks[0]
	switch first.Type {
	case token.LABEL:
		if len(toks) > 1 {
			p.errorf(toks[1].StartPosition, "unexpected %q after label", toks[1].Literal)
			return
		}
		if p.marked[first.Literal] {
			p.errorf(first.StartPosition, "label %q defined twice", first.Literal)
			return
		}
		p.marked[first.Literal] = true
		p.b.Mark(p.label(first.Literal))
	case token.DIRECTIVE:
		p.parseDirective(first, toks[1:])
	case token.IDENT:
		p.parseInsn(first, toks[1:])
	default:
		p.errorf(first.StartPosition, "expected an instruction, directive or label, found %q", first.Literal)
	}
}

func (p *methodParser) parseDirective(dir token.Token, toks []token.Token) {
	ops, err := splitOperands(toks)
	if err != nil {
		p.errs = multierror.Append(p.errs, err)
		return
	}
	switch dir.Literal {
	case token.LINE:
		if len(ops) != 1 {
			p.errorf(dir.StartPosition, ".line takes a line number")
			return
		}
		n, err := intOperand(ops[0], 1, math.MaxInt32)
		if err != nil {
			p.errs = multierror.Append(p.errs, err)
			return
		}
		p.b.SetLine(int(n))
	case token.LOCAL:
		p.parseLocal(dir, ops)
	case token.END:
		if len(ops) != 1 {
			p.errorf(dir.StartPosition, ".end takes one register")
			return
		}
		tok, ok := ops[0].single(token.REGISTER)
		if !ok {
			p.errorf(ops[0].pos, "expected a register, found %q", ops[0])
			return
		}
		num, _, err := splitRegister(tok)
		if err != nil {
			p.errs = multierror.Append(p.errs, err)
			return
		}
		live, ok := p.locals[num]
		if !ok {
			p.errorf(tok.StartPosition, "v%d holds no local", num)
			return
		}
		delete(p.locals, num)
		p.b.EndLocal(live)
	}
}

func (p *methodParser) parseLocal(dir token.Token, ops []operand) {
	if len(ops) < 3 || len(ops) > 4 {
		p.errorf(dir.StartPosition, ".local takes a register, a name, a type and an optional signature")
		return
	}
	tok, ok := ops[0].single(token.REGISTER)
	if !ok {
		p.errorf(ops[0].pos, "expected a register, found %q", ops[0])
		return
	}
	num, _, err := splitRegister(tok)
	if err != nil {
		p.errs = multierror.Append(p.errs, err)
		return
	}
	name, err := nameOperand(ops[1])
	if err != nil {
		p.errs = multierror.Append(p.errs, err)
		return
	}
	typ, err := typeOperand(ops[2])
	if err != nil {
		p.errs = multierror.Append(p.errs, err)
		return
	}
	item := code.LocalItem{Name: name, Type: typ}
	if len(ops) == 4 {
		sig, err := nameOperand(ops[3])
		if err != nil {
			p.errs = multierror.Append(p.errs, err)
			return
		}
		item.Signature = sig
	}
	reg := code.Reg(num, typ).WithLocal(item)
	p.locals[num] = reg
	p.b.StartLocal(reg)
}

func (p *methodParser) parseInsn(mnemonic token.Token, toks []token.Token) {
	c, ok := op.Lookup(mnemonic.Literal)
	if !ok {
		p.errorf(mnemonic.StartPosition, "unknown instruction %q", mnemonic.Literal)
		return
	}
	ops, err := splitOperands(toks)
	if err != nil {
		p.errs = multierror.Append(p.errs, err)
		return
	}
	var insnErr error
	switch c {
	case op.PackedSwitch:
		insnErr = p.packedSwitch(mnemonic, ops)
	case op.SparseSwitch:
		insnErr = p.sparseSwitch(mnemonic, ops)
	case op.FillArrayData:
		insnErr = p.fillArrayData(mnemonic, ops)
	default:
		insnErr = p.instruction(mnemonic, c, ops)
	}
	if insnErr != nil {
		p.errs = multierror.Append(p.errs, insnErr)
	}
}

// registers parses the leading register operands and returns them with
// the remaining operands.
func (p *methodParser) registers(ops []operand) ([]code.Register, []operand, error) {
	var regs []code.Register
	for len(ops) > 0 {
		o := ops[0]
		if o.braced {
			for _, tok := range o.toks {
				r, err := p.register(tok)
				if err != nil {
					return nil, nil, err
				}
				regs = append(regs, r)
			}
		} else if tok, ok := o.single(token.REGISTER); ok {
			r, err := p.register(tok)
			if err != nil {
				return nil, nil, err
			}
			regs = append(regs, r)
		} else {
			break
		}
		ops = ops[1:]
	}
	return regs, ops, nil
}

// register resolves a register token. Untyped registers take the type of
// the local they hold, or int.
func (p *methodParser) register(tok token.Token) (code.Register, error) {
	num, typ, err := splitRegister(tok)
	if err != nil {
		return code.Register{}, err
	}
	if typ == "" {
		typ = cst.Int
		if live, ok := p.locals[num]; ok {
			typ = live.Type
		}
	}
	return code.Reg(num, typ), nil
}

func (p *methodParser) instruction(mnemonic token.Token, c op.Code, ops []operand) error {
	info := op.GetInfo(c)
	for _, o := range ops {
		if o.braced && !info.Format.IsRegisterList() {
			return fmt.Errorf("%s: %s does not take a register list", o.pos, c)
		}
	}
	regs, rest, err := p.registers(ops)
	if err != nil {
		return err
	}
	if want := info.Format.RegisterCount(); want >= 0 && len(regs) != want {
		return fmt.Errorf("%s: %s takes %d registers, found %d", mnemonic.StartPosition, c, want, len(regs))
	}
	if info.Format == op.Format12x && strings.HasSuffix(info.Name, "/2addr") {
		regs = []code.Register{regs[0], regs[0], regs[1]}
	}
	if c == op.CheckCast {
		regs = []code.Register{regs[0], regs[0]}
	}

	var insn code.Insn
	switch {
	case info.Format.IsBranch():
		if len(rest) != 1 {
			return fmt.Errorf("%s: %s takes a target label", mnemonic.StartPosition, c)
		}
		tok, ok := rest[0].single(token.LABEL)
		if !ok {
			return fmt.Errorf("%s: expected a label, found %q", rest[0].pos, rest[0])
		}
		insn = code.Branch(c, p.use(tok), regs...)
	case info.Index != op.IndexNone:
		consts, err := constantOperands(info, rest)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", mnemonic.StartPosition, c, err)
		}
		insn = code.Constants(c, consts, regs...)
	case info.Format.HasLiteral():
		if len(rest) != 1 {
			return fmt.Errorf("%s: %s takes a literal", mnemonic.StartPosition, c)
		}
		lit, err := intOperand(rest[0], math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		insn = code.Literal(c, lit, regs...)
	default:
		if len(rest) != 0 {
			return fmt.Errorf("%s: unexpected operand %q", rest[0].pos, rest[0])
		}
		insn = code.Simple(c, regs...)
	}
	p.b.Add(insn)
	return nil
}

func (p *methodParser) switchRegister(mnemonic token.Token, ops []operand) (code.Register, []operand, error) {
	regs, rest, err := p.registers(ops)
	if err != nil {
		return code.Register{}, nil, err
	}
	if len(regs) != 1 {
		return code.Register{}, nil, fmt.Errorf("%s: %s takes one register", mnemonic.StartPosition, mnemonic.Literal)
	}
	return regs[0], rest, nil
}

func (p *methodParser) packedSwitch(mnemonic token.Token, ops []operand) error {
	reg, rest, err := p.switchRegister(mnemonic, ops)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("%s: packed-switch takes a first key", mnemonic.StartPosition)
	}
	first, err := intOperand(rest[0], math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	targets := make([]code.Label, 0, len(rest)-1)
	for _, o := range rest[1:] {
		tok, ok := o.single(token.LABEL)
		if !ok {
			return fmt.Errorf("%s: expected a label, found %q", o.pos, o)
		}
		targets = append(targets, p.use(tok))
	}
	p.b.PackedSwitch(reg, int32(first), targets...)
	return nil
}

func (p *methodParser) sparseSwitch(mnemonic token.Token, ops []operand) error {
	reg, rest, err := p.switchRegister(mnemonic, ops)
	if err != nil {
		return err
	}
	keys := make([]int32, 0, len(rest))
	targets := make([]code.Label, 0, len(rest))
	for _, o := range rest {
		if o.braced || len(o.toks) != 3 || o.toks[0].Type != token.INT ||
			o.toks[1].Type != token.ARROW || o.toks[2].Type != token.LABEL {
			return fmt.Errorf("%s: expected \"key -> :label\", found %q", o.pos, o)
		}
		key, err := parseInt(o.toks[0], math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		if n := len(keys); n > 0 && int32(key) <= keys[n-1] {
			return fmt.Errorf("%s: sparse-switch keys must increase", o.pos)
		}
		keys = append(keys, int32(key))
		targets = append(targets, p.use(o.toks[2]))
	}
	p.b.SparseSwitch(reg, keys, targets)
	return nil
}

func (p *methodParser) fillArrayData(mnemonic token.Token, ops []operand) error {
	reg, rest, err := p.switchRegister(mnemonic, ops)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("%s: fill-array-data takes an element width", mnemonic.StartPosition)
	}
	width, err := intOperand(rest[0], 1, 8)
	if err != nil {
		return err
	}
	if width != 1 && width != 2 && width != 4 && width != 8 {
		return fmt.Errorf("%s: invalid element width %d", rest[0].pos, width)
	}
	values := make([]int64, 0, len(rest)-1)
	for _, o := range rest[1:] {
		v, err := intOperand(o, math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		values = append(values, v)
	}
	p.b.FillArrayData(reg, int(width), values)
	return nil
}

func (p *methodParser) addTry(t tryDoc) error {
	if t.Start == "" || t.End == "" {
		return errors.New("start and end labels are required")
	}
	if len(t.Catches) == 0 && t.CatchAll == "" {
		return errors.New("no handlers")
	}
	labels := []string{t.Start, t.End, t.CatchAll}
	for _, c := range t.Catches {
		labels = append(labels, c.Handler)
	}
	for _, name := range labels {
		if name != "" && !p.marked[name] {
			return fmt.Errorf("undefined label %q", name)
		}
	}
	catches := make([]code.Catch, 0, len(t.Catches))
	for _, c := range t.Catches {
		typ := cst.Type(c.Type)
		if !typ.IsReference() || !typ.Valid() {
			return fmt.Errorf("invalid exception type %q", c.Type)
		}
		if c.Handler == "" {
			return fmt.Errorf("catch of %s has no handler", typ)
		}
		catches = append(catches, code.Catch{Type: typ, Handler: p.label(c.Handler)})
	}
	catchAll := code.NoLabel
	if t.CatchAll != "" {
		catchAll = p.label(t.CatchAll)
	}
	p.b.Try(p.label(t.Start), p.label(t.End), catches, catchAll)
	return nil
}

// splitOperands groups the tokens of an instruction or directive into
// comma-separated operands. Braces group a register list into one operand.
func splitOperands(toks []token.Token) ([]operand, error) {
	var ops []operand
	for i := 0; i < len(toks); {
		if len(ops) > 0 {
			if toks[i].Type != token.COMMA {
				return nil, fmt.Errorf("%s: expected \",\", found %q", toks[i].StartPosition, toks[i].Literal)
			}
			i++
			if i == len(toks) {
				return nil, fmt.Errorf("%s: missing operand after \",\"", toks[i-1].StartPosition)
			}
		}
		o := operand{pos: toks[i].StartPosition}
		if toks[i].Type == token.LBRACE {
			o.braced = true
			i++
			for {
				if i == len(toks) {
					return nil, fmt.Errorf("%s: unterminated register list", o.pos)
				}
				if toks[i].Type == token.RBRACE {
					i++
					break
				}
				if len(o.toks) > 0 {
					if toks[i].Type != token.COMMA {
						return nil, fmt.Errorf("%s: expected \",\" or \"}\", found %q", toks[i].StartPosition, toks[i].Literal)
					}
					i++
					if i == len(toks) {
						continue
					}
				}
				if toks[i].Type != token.REGISTER {
					return nil, fmt.Errorf("%s: expected a register, found %q", toks[i].StartPosition, toks[i].Literal)
				}
				o.toks = append(o.toks, toks[i])
				i++
			}
		} else {
			for i < len(toks) && toks[i].Type != token.COMMA {
				if toks[i].Type == token.LBRACE || toks[i].Type == token.RBRACE {
					return nil, fmt.Errorf("%s: unexpected %q", toks[i].StartPosition, toks[i].Literal)
				}
				o.toks = append(o.toks, toks[i])
				i++
			}
			if len(o.toks) == 0 {
				return nil, fmt.Errorf("%s: missing operand", o.pos)
			}
		}
		ops = append(ops, o)
	}
	return ops, nil
}

// splitRegister splits "v3" or "v3:J" into its number and type.
func splitRegister(tok token.Token) (int, cst.Type, error) {
	numText, typText, typed := strings.Cut(tok.Literal[1:], ":")
	num, err := strconv.Atoi(numText)
	if err != nil || num > math.MaxUint16 {
		return 0, "", fmt.Errorf("%s: invalid register %q", tok.StartPosition, tok.Literal)
	}
	if !typed {
		return num, "", nil
	}
	typ := cst.Type(typText)
	if !typ.Valid() || typ == cst.Void {
		return 0, "", fmt.Errorf("%s: invalid register type %q", tok.StartPosition, typText)
	}
	return num, typ, nil
}

func parseInt(tok token.Token, min, max int64) (int64, error) {
	v, err := strconv.ParseInt(tok.Literal, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(tok.Literal, 0, 64)
		if uerr != nil {
			return 0, fmt.Errorf("%s: invalid integer %q", tok.StartPosition, tok.Literal)
		}
		v = int64(u)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s: %s out of range [%d, %d]", tok.StartPosition, tok.Literal, min, max)
	}
	return v, nil
}

func intOperand(o operand, min, max int64) (int64, error) {
	tok, ok := o.single(token.INT)
	if !ok {
		return 0, fmt.Errorf("%s: expected an integer, found %q", o.pos, o)
	}
	return parseInt(tok, min, max)
}

// nameOperand accepts a quoted string or a bare word.
func nameOperand(o operand) (string, error) {
	if tok, ok := o.single(token.STRING); ok {
		return tok.Literal, nil
	}
	if tok, ok := o.single(token.IDENT); ok {
		return tok.Literal, nil
	}
	return "", fmt.Errorf("%s: expected a name, found %q", o.pos, o)
}

func typeOperand(o operand) (cst.Type, error) {
	tok, ok := o.single(token.IDENT)
	if !ok || !cst.Type(tok.Literal).Valid() || cst.Type(tok.Literal) == cst.Void {
		return "", fmt.Errorf("%s: expected a type descriptor, found %q", o.pos, o)
	}
	return cst.Type(tok.Literal), nil
}

func constantOperands(info op.Info, ops []operand) ([]cst.Constant, error) {
	want := 1
	if info.Index == op.IndexMethodAndProto {
		want = 2
	}
	if len(ops) != want {
		return nil, fmt.Errorf("expected %d constant operand(s), found %d", want, len(ops))
	}
	word := func(o operand) (string, error) {
		tok, ok := o.single(token.IDENT)
		if !ok {
			return "", fmt.Errorf("%s: expected a constant, found %q", o.pos, o)
		}
		return tok.Literal, nil
	}
	switch info.Index {
	case op.IndexString:
		tok, ok := ops[0].single(token.STRING)
		if !ok {
			return nil, fmt.Errorf("%s: expected a string, found %q", ops[0].pos, ops[0])
		}
		return []cst.Constant{cst.String(tok.Literal)}, nil
	case op.IndexType:
		typ, err := typeOperand(ops[0])
		if err != nil {
			return nil, err
		}
		return []cst.Constant{typ}, nil
	case op.IndexField:
		w, err := word(ops[0])
		if err != nil {
			return nil, err
		}
		f, err := cst.ParseFieldRef(w)
		if err != nil {
			return nil, err
		}
		return []cst.Constant{f}, nil
	case op.IndexMethod, op.IndexMethodAndProto:
		w, err := word(ops[0])
		if err != nil {
			return nil, err
		}
		m, err := cst.ParseMethodRef(w)
		if err != nil {
			return nil, err
		}
		if info.Index == op.IndexMethod {
			return []cst.Constant{m}, nil
		}
		pw, err := word(ops[1])
		if err != nil {
			return nil, err
		}
		proto := cst.Proto(pw)
		if _, _, err := proto.Parse(); err != nil {
			return nil, err
		}
		return []cst.Constant{m, proto}, nil
	case op.IndexProto:
		w, err := word(ops[0])
		if err != nil {
			return nil, err
		}
		proto := cst.Proto(w)
		if _, _, err := proto.Parse(); err != nil {
			return nil, err
		}
		return []cst.Constant{proto}, nil
	}
	return nil, fmt.Errorf("unsupported constant kind %d", info.Index)
}
