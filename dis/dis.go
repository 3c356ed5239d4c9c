// Package dis renders listings of finished instruction lists.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/deepnoodle-ai/dexasm/code"
	"github.com/deepnoodle-ai/dexasm/cst"
	"github.com/deepnoodle-ai/dexasm/op"
)

// Instruction is one row of a listing.
type Instruction struct {
	Address  int      `json:"address"`
	Name     string   `json:"name"`
	Operands []string `json:"operands,omitempty"`
	Info     string   `json:"info,omitempty"`
	Line     int      `json:"line,omitempty"`
}

var indexPrefix = map[op.IndexKind]string{
	op.IndexString: "string",
	op.IndexType:   "type",
	op.IndexField:  "field",
	op.IndexMethod: "method",
	op.IndexProto:  "proto",
}

// Disassemble lists the instructions of f. Constants are shown by pool
// index when a resolver is given. Labels are omitted; local variable starts
// and ends appear as .local and .end rows.
func Disassemble(f *code.Finished, resolver cst.Resolver) []Instruction {
	var out []Instruction
	for _, insn := range f.Insns() {
		addr := insn.Address()
		switch insn.Kind() {
		case code.KindPlain, code.KindBranch:
			out = append(out, disassembleInsn(f, insn, resolver))
		case code.KindLocalStart, code.KindLocalEnd:
			reg := insn.Registers()[0]
			row := Instruction{Address: addr, Name: ".local", Operands: []string{regName(reg)}}
			if insn.Kind() == code.KindLocalEnd {
				row.Name = ".end"
			}
			if reg.Local != nil {
				row.Info = reg.Local.Name + ":" + string(reg.Local.Type)
			}
			out = append(out, row)
		case code.KindSpacer:
			if insn.CodeUnits(addr) > 0 {
				out = append(out, Instruction{Address: addr, Name: "nop", Info: "alignment"})
			}
		case code.KindPayload:
			p := insn.Payload()
			row := Instruction{Address: addr, Name: p.Kind.String()}
			switch p.Kind {
			case code.ArrayPayload:
				row.Info = fmt.Sprintf("%d x %d bytes", len(p.Values), p.ElementWidth)
			default:
				targets := make([]string, len(p.Targets))
				for i, t := range p.Targets {
					targets[i] = fmt.Sprintf("%04x", f.Address(t))
				}
				row.Info = strings.Join(targets, " ")
			}
			out = append(out, row)
		}
	}
	return out
}

func disassembleInsn(f *code.Finished, insn code.Insn, resolver cst.Resolver) Instruction {
	info := insn.Info()
	row := Instruction{
		Address: insn.Address(),
		Name:    info.Name,
		Line:    insn.Position().Line,
	}
	regs := insn.Registers()
	switch {
	case info.Format == op.Format3rc || info.Format == op.Format4rcc:
		if len(regs) == 0 {
			row.Operands = append(row.Operands, "{}")
		} else {
			last := regs[len(regs)-1]
			row.Operands = append(row.Operands,
				fmt.Sprintf("{v%d .. v%d}", regs[0].Num, last.Num+last.Category()-1))
		}
	case info.Format.IsRegisterList():
		names := make([]string, len(regs))
		for i, r := range regs {
			names[i] = regName(r)
		}
		row.Operands = append(row.Operands, "{"+strings.Join(names, ", ")+"}")
	default:
		// Read-write operands are listed twice, e.g. by /2addr forms.
		if n := info.Format.RegisterCount(); n >= 0 && len(regs) > n {
			regs = regs[len(regs)-n:]
		}
		for _, r := range regs {
			row.Operands = append(row.Operands, regName(r))
		}
	}
	if info.Format.HasLiteral() {
		row.Operands = append(row.Operands, fmt.Sprintf("#%d", insn.Literal()))
	}
	if insn.Kind() == code.KindBranch {
		target := f.Address(insn.Target())
		row.Operands = append(row.Operands, fmt.Sprintf("%04x", target))
		row.Info = fmt.Sprintf("%+d", target-insn.Address())
	}
	var notes []string
	for i, c := range insn.Constants() {
		kind := info.Index
		if kind == op.IndexMethodAndProto {
			kind = op.IndexMethod
			if i == 1 {
				kind = op.IndexProto
			}
		}
		index := "?"
		if resolver != nil {
			index = fmt.Sprint(resolver.IndexOf(c))
		}
		row.Operands = append(row.Operands, indexPrefix[kind]+"@"+index)
		if s, ok := c.(cst.String); ok {
			notes = append(notes, s.Quoted())
		} else {
			notes = append(notes, c.String())
		}
	}
	if len(notes) > 0 {
		row.Info = strings.Join(notes, " ")
	}
	return row
}

func regName(r code.Register) string {
	return fmt.Sprintf("v%d", r.Num)
}

// Print writes instructions to writer as a table.
func Print(instructions []Instruction, writer io.Writer) {
	info := color.New(color.FgCyan)
	directive := color.New(color.FgHiBlack)
	t := table.NewWriter()
	t.SetOutputMirror(writer)
	t.AppendHeader(table.Row{"Address", "Opcode", "Operands", "Info"})
	configs := make([]table.ColumnConfig, 4)
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
	}
	t.SetColumnConfigs(configs)
	for _, insn := range instructions {
		name := insn.Name
		if strings.HasPrefix(name, ".") {
			name = directive.Sprint(name)
		}
		note := insn.Info
		if note != "" {
			note = info.Sprint(note)
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("%04x", insn.Address),
			name,
			strings.Join(insn.Operands, ", "),
			note,
		})
	}
	t.Render()
}
