package extractor

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "EOF"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokPunct:
		return "punctuation"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) isPunct(text string) bool {
	return t.is(tokPunct, text)
}

// lexer splits Verilog source into identifiers, unsigned decimal numbers,
// strings and single-byte punctuation. Whitespace and comments are dropped.
type lexer struct {
	src  []byte
	off  int
	line int
}

func tokenize(src []byte) []token {
	lx := &lexer{src: src, line: 1}
	var toks []token
	for {
		tok := lx.next()
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks
		}
	}
}

func (lx *lexer) next() token {
	lx.skipSpaceAndComments()
	if lx.off >= len(lx.src) {
		return token{kind: tokEOF, line: lx.line}
	}

	start := lx.off
	line := lx.line
	ch := lx.src[lx.off]

	switch {
	case isIdentStart(ch):
		lx.off++
		for lx.off < len(lx.src) && isIdentPart(lx.src[lx.off]) {
			lx.off++
		}
		return token{kind: tokIdent, text: string(lx.src[start:lx.off]), line: line}
	case isDigit(ch):
		for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
			lx.off++
		}
		return token{kind: tokNumber, text: string(lx.src[start:lx.off]), line: line}
	case ch == '"':
		lx.off++
		for lx.off < len(lx.src) && lx.src[lx.off] != '"' {
			switch lx.src[lx.off] {
			case '\\':
				lx.off++
			case '\n':
				lx.line++
			}
			lx.off++
		}
		if lx.off < len(lx.src) {
			lx.off++
		}
		return token{kind: tokString, text: string(lx.src[start:min(lx.off, len(lx.src))]), line: line}
	}

	lx.off++
	return token{kind: tokPunct, text: string(ch), line: line}
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.off < len(lx.src) {
		ch := lx.src[lx.off]
		switch {
		case ch == '\n':
			lx.line++
			lx.off++
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f' || ch == '\v':
			lx.off++
		case ch == '/' && lx.peek(1) == '/':
			for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
				lx.off++
			}
		case ch == '/' && lx.peek(1) == '*':
			lx.off += 2
			for lx.off < len(lx.src) && !(lx.src[lx.off] == '*' && lx.peek(1) == '/') {
				if lx.src[lx.off] == '\n' {
					lx.line++
				}
				lx.off++
			}
			lx.off = min(lx.off+2, len(lx.src))
		default:
			return
		}
	}
}

func (lx *lexer) peek(n int) byte {
	if lx.off+n < len(lx.src) {
		return lx.src[lx.off+n]
	}
	return 0
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
