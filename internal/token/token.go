// Package token defines the tokens of one line of assembly source.
package token

import "fmt"

// Type describes the type of a token as a string.
type Type string

// Position points to a particular location in an input line.
type Position struct {
	Char   int // byte offset within the line
	Line   int // 1-indexed line number, zero when unknown
	Column int // 0-indexed column number
}

// ColumnNumber returns the 1-indexed column number for this position.
func (p Position) ColumnNumber() int {
	return p.Column + 1
}

// Advance returns a new Position advanced by n bytes.
func (p Position) Advance(n int) Position {
	return Position{Char: p.Char + n, Line: p.Line, Column: p.Column + n}
}

func (p Position) String() string {
	if p.Line == 0 {
		return fmt.Sprintf("column %d", p.ColumnNumber())
	}
	return fmt.Sprintf("%d:%d", p.Line, p.ColumnNumber())
}

// Token represents one token lexed from the input.
type Token struct {
	Type          Type
	Literal       string
	StartPosition Position
	EndPosition   Position
}

// Token types
const (
	ARROW     Type = "->"
	COMMA     Type = ","
	DIRECTIVE Type = "DIRECTIVE"
	EOF       Type = "EOF"
	IDENT     Type = "IDENT"
	ILLEGAL   Type = "ILLEGAL"
	INT       Type = "INT"
	LABEL     Type = "LABEL"
	LBRACE    Type = "{"
	RBRACE    Type = "}"
	REGISTER  Type = "REGISTER"
	STRING    Type = "STRING"
)

// Directives
const (
	LINE  = ".line"
	LOCAL = ".local"
	END   = ".end"
)

var directives = map[string]bool{
	LINE:  true,
	LOCAL: true,
	END:   true,
}

// IsDirective reports whether word names a known directive.
func IsDirective(word string) bool {
	return directives[word]
}
