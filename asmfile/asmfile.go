// Package asmfile reads method bodies written in a small textual assembly
// language embedded in YAML.
//
// A file lists methods. Each method names its class, name and prototype,
// whether it is static, its register count, its code lines and its try
// blocks:
//
//	methods:
//	  - class: LFoo;
//	    name: count
//	    proto: (I)I
//	    static: true
//	    registers: 2
//	    code:
//	      - .line 3
//	      - .local v1, n, I
//	      - const/4 v0, 0
//	      - :loop
//	      - add-int/lit8 v0, v0, 1
//	      - if-lt v0, v1, :loop
//	      - return v0
//	    tries:
//	      - start: loop
//	        end: done
//	        catches: [{type: Ljava/lang/Exception;, handler: oops}]
//
// A code line is a label definition (":name"), a directive (".line N",
// ".local vN, name, type[, signature]", ".end vN") or an instruction: a
// mnemonic followed by comma-separated operands. Registers are written vN
// and typed vN:T; an untyped register takes the type of the local it holds,
// or int. Invoke and filled-new-array arguments are written in braces.
// Switches take their targets as labels: "packed-switch v0, 10, :a, :b"
// and "sparse-switch v0, 1 -> :a, 7 -> :b". fill-array-data takes the
// element width in bytes followed by the values.
package asmfile

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/dexasm"
	"github.com/deepnoodle-ai/dexasm/cst"
)

type fileDoc struct {
	Methods []methodDoc `yaml:"methods"`
}

type methodDoc struct {
	Class     string    `yaml:"class"`
	Name      string    `yaml:"name"`
	Proto     string    `yaml:"proto"`
	Static    bool      `yaml:"static"`
	Registers int       `yaml:"registers"`
	Code      yaml.Node `yaml:"code"`
	Tries     []tryDoc  `yaml:"tries"`
}

type tryDoc struct {
	Start    string     `yaml:"start"`
	End      string     `yaml:"end"`
	Catches  []catchDoc `yaml:"catches"`
	CatchAll string     `yaml:"catch_all"`
}

type catchDoc struct {
	Type    string `yaml:"type"`
	Handler string `yaml:"handler"`
}

// Parse reads every method of an assembly file. All problems found are
// reported together, each prefixed with its method and line.
func Parse(data []byte) ([]dexasm.Method, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("asmfile: %w", err)
	}
	var errs *multierror.Error
	methods := make([]dexasm.Method, 0, len(doc.Methods))
	for i, md := range doc.Methods {
		m, err := parseMethod(md)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("method %d (%s): %w", i, md.describe(), err))
			continue
		}
		methods = append(methods, m)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return methods, nil
}

// ParseFile reads and parses the named file.
func ParseFile(name string) ([]dexasm.Method, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	methods, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return methods, nil
}

func (md methodDoc) describe() string {
	return md.Class + "->" + md.Name + md.Proto
}

func (md methodDoc) ref() (cst.MethodRef, error) {
	return cst.ParseMethodRef(md.describe())
}
