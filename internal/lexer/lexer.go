// Package lexer splits one line of assembly source into tokens.
//
// Words are runs of characters other than whitespace, commas, braces,
// quotes and '#'. A word is classified by its shape: ".line" is a
// directive, ":loop" a label reference, "v3" or "v3:J" a register, "-0x10"
// an integer, a lone "->" an arrow. Every other word, from mnemonics to
// member references such as "LFoo;->bar(I)V", is an identifier.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/dexasm/internal/token"
)

// Lexer tokenizes one input line.
type Lexer struct {
	input string
	pos   int
	line  int
}

// New returns a lexer for input.
func New(input string) *Lexer {
	return &Lexer{input: input}
}

// SetLine sets the line number recorded in token positions.
func (l *Lexer) SetLine(line int) {
	l.line = line
}

func (l *Lexer) position(pos int) token.Position {
	return token.Position{Char: pos, Line: l.line, Column: pos}
}

func (l *Lexer) token(typ token.Type, literal string, start, end int) token.Token {
	return token.Token{
		Type:          typ,
		Literal:       literal,
		StartPosition: l.position(start),
		EndPosition:   l.position(end),
	}
}

// Next returns the next token. At the end of the line or at a '#' comment
// it returns an EOF token.
func (l *Lexer) Next() (token.Token, error) {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.input) || l.input[l.pos] == '#' {
		l.pos = len(l.input)
		return l.token(token.EOF, "", start, start), nil
	}
	switch c := l.input[l.pos]; c {
	case ',':
		l.pos++
		return l.token(token.COMMA, ",", start, l.pos), nil
	case '{':
		l.pos++
		return l.token(token.LBRACE, "{", start, l.pos), nil
	case '}':
		l.pos++
		return l.token(token.RBRACE, "}", start, l.pos), nil
	case '"':
		return l.readString()
	}
	for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
		l.pos++
	}
	word := l.input[start:l.pos]
	tok := l.token(token.IDENT, word, start, l.pos)
	switch {
	case word == "->":
		tok.Type = token.ARROW
	case word[0] == '.':
		if !token.IsDirective(word) {
			tok.Type = token.ILLEGAL
			return tok, fmt.Errorf("%s: unknown directive %q", tok.StartPosition, word)
		}
		tok.Type = token.DIRECTIVE
	case word[0] == ':':
		if len(word) == 1 {
			tok.Type = token.ILLEGAL
			return tok, fmt.Errorf("%s: empty label", tok.StartPosition)
		}
		tok.Type = token.LABEL
		tok.Literal = word[1:]
	case isRegister(word):
		tok.Type = token.REGISTER
	case isInteger(word):
		tok.Type = token.INT
	}
	return tok, nil
}

// All returns the remaining tokens of the line, without the EOF token.
func (l *Lexer) All() ([]token.Token, error) {
	var out []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == token.EOF {
			return out, nil
		}
		out = append(out, tok)
	}
}

func (l *Lexer) readString() (token.Token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case '"':
			l.pos++
			raw := l.input[start:l.pos]
			value, err := strconv.Unquote(raw)
			if err != nil {
				return l.token(token.ILLEGAL, raw, start, l.pos),
					fmt.Errorf("%s: invalid string literal %s", l.position(start), raw)
			}
			return l.token(token.STRING, value, start, l.pos), nil
		}
		l.pos++
	}
	l.pos = len(l.input)
	return l.token(token.ILLEGAL, l.input[start:], start, l.pos),
		fmt.Errorf("%s: unterminated string literal", l.position(start))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isWordChar(c byte) bool {
	return !isSpace(c) && !strings.ContainsRune(",{}\"#", rune(c))
}

// isRegister matches "v<digits>" with an optional ":<type>" suffix.
func isRegister(word string) bool {
	if len(word) < 2 || word[0] != 'v' {
		return false
	}
	num, _, _ := strings.Cut(word[1:], ":")
	if num == "" {
		return false
	}
	for i := 0; i < len(num); i++ {
		if num[i] < '0' || num[i] > '9' {
			return false
		}
	}
	return true
}

func isInteger(word string) bool {
	if _, err := strconv.ParseInt(word, 0, 64); err == nil {
		return true
	}
	_, err := strconv.ParseUint(word, 0, 64)
	return err == nil
}
