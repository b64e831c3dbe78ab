package lexer

import (
	"math/big"
	"strings"
	"unicode"

	"github.com/xplshn/gqasm/pkg/config"
	"github.com/xplshn/gqasm/pkg/diag"
	"github.com/xplshn/gqasm/pkg/token"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
	sink      diag.Sink
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config, sink diag.Sink) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg, sink: sink,
	}
}

// Tokenize lexes the whole source. The last token is always EOF.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) errorf(tok token.Token, format string, args ...any) {
	l.sink.Emit(diag.Errorf(tok, format, args...))
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if unicode.IsLetter(ch) || ch == '_' {
			l.advance()
			return l.identifierOrKeyword(startPos, startCol, startLine)
		}
		if unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peekNext())) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
		case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
		case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
		case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
		case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
		case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
		case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
		case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
		case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
		case '.': return l.makeToken(token.Dot, "", startPos, startCol, startLine)
		case '@': return l.makeToken(token.At, "", startPos, startCol, startLine)
		case '~': return l.makeToken(token.Complement, "", startPos, startCol, startLine)
		case '!': return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine)
		case '^': return l.matchThen('=', token.XorEq, token.Xor, startPos, startCol, startLine)
		case '%': return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine)
		case '/': return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine)
		case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
		case '+':
			if l.match('+') {
				return l.makeToken(token.Inc, "", startPos, startCol, startLine)
			}
			return l.matchThen('=', token.PlusEq, token.Plus, startPos, startCol, startLine)
		case '-':
			if l.match('>') {
				return l.makeToken(token.Arrow, "", startPos, startCol, startLine)
			}
			if l.match('-') {
				return l.makeToken(token.Dec, "", startPos, startCol, startLine)
			}
			return l.matchThen('=', token.MinusEq, token.Minus, startPos, startCol, startLine)
		case '*':
			if l.match('*') {
				return l.makeToken(token.StarStar, "", startPos, startCol, startLine)
			}
			return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine)
		case '&':
			if l.match('&') {
				return l.makeToken(token.AndAnd, "", startPos, startCol, startLine)
			}
			return l.matchThen('=', token.AndEq, token.And, startPos, startCol, startLine)
		case '|':
			if l.match('|') {
				return l.makeToken(token.OrOr, "", startPos, startCol, startLine)
			}
			return l.matchThen('=', token.OrEq, token.Or, startPos, startCol, startLine)
		case '<':
			if l.match('<') {
				return l.matchThen('=', token.ShlEq, token.Shl, startPos, startCol, startLine)
			}
			return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine)
		case '>':
			if l.match('>') {
				return l.matchThen('=', token.ShrEq, token.Shr, startPos, startCol, startLine)
			}
			return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine)
		case '$':
			return l.hardwareQubit(startPos, startCol, startLine)
		case '"', '\'':
			return l.stringLiteral(ch, startPos, startCol, startLine)
		}

		l.errorf(l.makeToken(token.EOF, "", startPos, startCol, startLine), "unexpected character: '%c'", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.Comment, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.errorf(startTok, "unterminated block comment")
}

func isIdentRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' }

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for isIdentRune(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
		tok.Value = ""
		if !l.keywordEnabled(tokType) {
			tok.Type = token.Ident
			tok.Value = value
		}
	}
	return tok
}

// keywordEnabled reports whether a keyword is reserved under the current
// features. Disabled keywords lex as plain identifiers.
func (l *Lexer) keywordEnabled(t token.Type) bool {
	switch t {
	case token.Switch, token.Case, token.Default:
		return l.cfg.IsFeatureEnabled(config.FeatSwitch)
	case token.Defcal, token.DefcalGrammar, token.Cal:
		return l.cfg.IsFeatureEnabled(config.FeatDefcal)
	case token.Extern:
		return l.cfg.IsFeatureEnabled(config.FeatExtern)
	}
	return true
}

func (l *Lexer) hardwareQubit(startPos, startCol, startLine int) token.Token {
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.HardwareQubit, value, startPos, startCol, startLine)
	if len(value) == 1 {
		l.errorf(tok, "expected a qubit index after '$'")
		tok.Value = "$0"
	}
	if !l.cfg.IsFeatureEnabled(config.FeatBoundQubits) {
		l.errorf(tok, "physical qubits are not enabled (use -Fbound-qubits)")
	}
	return tok
}

func isDigitIn(r rune, base int) bool {
	switch base {
	case 2:
		return r == '0' || r == '1'
	case 8:
		return r >= '0' && r <= '7'
	case 16:
		return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	}
	return unicode.IsDigit(r)
}

func (l *Lexer) digits(base int) {
	for isDigitIn(l.peek(), base) || (l.peek() == '_' && isDigitIn(l.peekNext(), base)) {
		l.advance()
	}
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	isFloat := false
	base := 10
	if l.peek() == '0' {
		switch l.peekNext() {
		case 'x', 'X':
			base = 16
		case 'b', 'B':
			base = 2
		case 'o', 'O':
			base = 8
		}
		if base != 10 {
			l.advance()
			l.advance()
		}
	}
	l.digits(base)

	if base == 10 && l.peek() == '.' && !unicode.IsLetter(l.peekNext()) && l.peekNext() != '_' {
		isFloat = true
		l.advance()
		l.digits(10)
	}
	if base == 10 && (l.peek() == 'e' || l.peek() == 'E') {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !unicode.IsDigit(l.peek()) {
			l.errorf(l.makeToken(token.FloatNumber, "", startPos, startCol, startLine), "malformed floating-point literal: exponent has no digits")
		}
		l.digits(10)
	}

	text := strings.ReplaceAll(string(l.source[startPos:l.pos]), "_", "")
	if l.peek() == 'i' && l.peekNext() == 'm' {
		l.advance()
		l.advance()
		return l.makeToken(token.ImagNumber, text, startPos, startCol, startLine)
	}
	if isFloat {
		return l.makeToken(token.FloatNumber, text, startPos, startCol, startLine)
	}

	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	v, ok := new(big.Int).SetString(string(l.source[startPos:l.pos]), 0)
	if !ok {
		l.errorf(tok, "invalid number literal: %s", text)
		tok.Value = "0"
		return tok
	}
	tok.Value = v.String()
	return tok
}

// stringLiteral lexes a quoted string. A string made only of 0, 1 and
// underscores is a bitstring literal.
func (l *Lexer) stringLiteral(quote rune, startPos, startCol, startLine int) token.Token {
	var sb strings.Builder
	for !l.isAtEnd() && l.peek() != '\n' {
		c := l.advance()
		if c == quote {
			value := sb.String()
			if isBitString(value) {
				return l.makeToken(token.BitString, strings.ReplaceAll(value, "_", ""), startPos, startCol, startLine)
			}
			return l.makeToken(token.String, value, startPos, startCol, startLine)
		}
		sb.WriteRune(c)
	}
	tok := l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
	l.errorf(tok, "unterminated string literal")
	return tok
}

func isBitString(s string) bool {
	if s == "" || s[0] == '_' || s[len(s)-1] == '_' {
		return false
	}
	for _, r := range s {
		if r != '0' && r != '1' && r != '_' {
			return false
		}
	}
	return true
}
