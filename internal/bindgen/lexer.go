package bindgen

import (
	"strings"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokChar
	tokPunct
)

type token struct {
	kind tokKind
	text string
	line int
	doc  []string // comment lines directly preceding the token
}

// directive is a preprocessor line the generator cares about.
type directive struct {
	line    int
	include string // header name for #include, without delimiters
	angled  bool   // #include <...>
	define  string // macro name for object-like #define
	value   string // macro replacement text
	doc     []string
}

// lexed is the token stream of one header plus its preprocessor directives.
type lexed struct {
	toks []token
	dirs []directive
}

type lexer struct {
	path string
	src  string
	pos  int
	line int

	bol     bool     // no token seen since the last newline
	blank   bool     // nothing at all seen since the last newline
	doc     []string // pending comment lines
	lineDoc bool     // pending doc came from // comments
	out     lexed
}

func lex(path, src string) (*lexed, error) {
	l := &lexer{path: path, src: src, line: 1, bol: true, blank: true}
	if err := l.run(); err != nil {
		return nil, err
	}
	l.out.toks = append(l.out.toks, token{kind: tokEOF, line: l.line})
	return &l.out, nil
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.pos++
			l.line++
			if l.blank {
				// a blank line detaches pending doc
				l.doc = nil
			}
			l.bol = true
			l.blank = true
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case c == '\\' && l.peek(1) == '\n':
			l.pos += 2
			l.line++
		case c == '/' && l.peek(1) == '*':
			if err := l.blockComment(); err != nil {
				return err
			}
		case c == '/' && l.peek(1) == '/':
			l.lineComment()
		case c == '#' && l.bol:
			if err := l.directive(); err != nil {
				return err
			}
		case isIdentStart(c):
			start := l.pos
			for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
				l.pos++
			}
			l.emit(tokIdent, l.src[start:l.pos])
		case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
			l.emit(tokNumber, l.number())
		case c == '"' || c == '\'':
			text, err := l.quoted(c)
			if err != nil {
				return err
			}
			kind := tokString
			if c == '\'' {
				kind = tokChar
			}
			l.emit(kind, text)
		case c == '.' && strings.HasPrefix(l.src[l.pos:], "..."):
			l.pos += 3
			l.emit(tokPunct, "...")
		default:
			l.pos++
			l.emit(tokPunct, string(c))
		}
	}
	return nil
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *lexer) emit(kind tokKind, text string) {
	l.out.toks = append(l.out.toks, token{kind: kind, text: text, line: l.line, doc: l.doc})
	l.doc = nil
	l.bol = false
	l.blank = false
}

func (l *lexer) blockComment() error {
	start, line := l.pos, l.line
	end := strings.Index(l.src[l.pos+2:], "*/")
	if end < 0 {
		return parseError(l.path, line, "unterminated comment")
	}
	body := l.src[start+2 : l.pos+2+end]
	l.pos += 2 + end + 2
	l.line += strings.Count(body, "\n")
	l.blank = false
	if !l.bol {
		// trailing comment
		l.doc = nil
		return nil
	}
	l.doc = commentLines(body)
	l.lineDoc = false
	return nil
}

func (l *lexer) lineComment() {
	end := strings.IndexByte(l.src[l.pos:], '\n')
	if end < 0 {
		end = len(l.src) - l.pos
	}
	text := l.src[l.pos+2 : l.pos+end]
	l.pos += end
	l.blank = false
	if !l.bol {
		l.doc = nil
		return
	}
	text = strings.TrimLeft(text, "/!<")
	text = strings.TrimRight(strings.TrimPrefix(text, " "), " \t\r")
	if l.doc != nil && l.lineDoc {
		l.doc = append(l.doc, text)
	} else {
		l.doc = []string{text}
	}
	l.lineDoc = true
}

// directive consumes a preprocessor line including continuations.
func (l *lexer) directive() error {
	line := l.line
	l.blank = false
	var b strings.Builder
	l.pos++ // '#'
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' && l.peek(1) == '\n' {
			l.pos += 2
			l.line++
			b.WriteByte(' ')
			continue
		}
		if c == '\n' {
			break
		}
		if c == '/' && l.peek(1) == '*' {
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return parseError(l.path, l.line, "unterminated comment")
			}
			l.line += strings.Count(l.src[l.pos:l.pos+2+end], "\n")
			l.pos += 2 + end + 2
			b.WriteByte(' ')
			continue
		}
		if c == '/' && l.peek(1) == '/' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			break
		}
		b.WriteByte(c)
		l.pos++
	}

	text := strings.TrimSpace(b.String())
	word, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(word, '<'); i > 0 {
		// #include<foo.h>
		word, rest = word[:i], word[i:]+" "+rest
	} else if i := strings.IndexByte(word, '"'); i > 0 {
		word, rest = word[:i], word[i:]+" "+rest
	}
	rest = strings.TrimSpace(rest)

	switch word {
	case "include":
		l.doc = nil
		if len(rest) < 2 {
			return parseError(l.path, line, "malformed #include")
		}
		var end byte
		switch rest[0] {
		case '<':
			end = '>'
		case '"':
			end = '"'
		default:
			// computed include, not resolvable without a preprocessor
			return nil
		}
		i := strings.IndexByte(rest[1:], end)
		if i < 0 {
			return parseError(l.path, line, "malformed #include %s", rest)
		}
		l.out.dirs = append(l.out.dirs, directive{line: line, include: rest[1 : 1+i], angled: end == '>'})
	case "define":
		doc := l.doc
		l.doc = nil
		i := 0
		for i < len(rest) && isIdentChar(rest[i]) {
			i++
		}
		name, value := rest[:i], rest[i:]
		if name == "" || strings.HasPrefix(value, "(") {
			// function-like macro
			return nil
		}
		l.out.dirs = append(l.out.dirs, directive{line: line, define: name, value: strings.TrimSpace(value), doc: doc})
	}
	return nil
}

func (l *lexer) number() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isIdentChar(c) || c == '.' {
			l.pos++
			continue
		}
		if (c == '+' || c == '-') && l.pos > start {
			p := l.src[l.pos-1]
			if p == 'e' || p == 'E' || p == 'p' || p == 'P' {
				l.pos++
				continue
			}
		}
		break
	}
	return l.src[start:l.pos]
}

func (l *lexer) quoted(q byte) (string, error) {
	start, line := l.pos, l.line
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
			continue
		case '\n':
			return "", parseError(l.path, line, "unterminated literal")
		case q:
			l.pos++
			return l.src[start:l.pos], nil
		}
		l.pos++
	}
	return "", parseError(l.path, line, "unterminated literal")
}

// commentLines turns the body of a /* */ comment into trimmed text lines,
// dropping decoration stars and surrounding blank lines.
func commentLines(body string) []string {
	body = strings.TrimLeft(body, "*!<")
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimRight(ln, " \t\r")
		t := strings.TrimLeft(ln, " \t")
		if strings.HasPrefix(t, "*") {
			t = strings.TrimPrefix(strings.TrimLeft(t, "*"), " ")
			ln = t
		} else if len(out) == 0 {
			ln = t
		}
		out = append(out, ln)
	}
	return trimBlank(out)
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
