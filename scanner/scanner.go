package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenStream                       // 'stream' keyword with its payload
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, R, >>, ], operators, etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenStream:
		return "stream"
	case TokenInlineImage:
		return "inline-image"
	case TokenKeyword:
		return "keyword"
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one primitive lexical unit. Indirect references are assembled by
// the parser from two numbers and the R keyword.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string         // name or keyword
	Bytes []byte         // string, stream or inline image payload
	Hex   bool           // string was written as <...>
	Bool  bool           // boolean value
	IsInt bool           // number is an integer
	Int   int64          // integer value; payload offset for streams
	Float float64        // real value
	Kind  raw.NumberKind // narrowest representation of the number
}

// Number returns the numeric token as a PDF value.
func (t Token) Number() raw.NumberObj {
	if t.IsInt {
		return raw.NumberObj{I: t.Int, Kind: t.Kind}
	}
	return raw.NumberFloat(t.Float)
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool { return t.Type == TokenKeyword && t.Str == kw }

// ErrSyntax marks input that cannot be tokenized or parsed.
var ErrSyntax = errors.New("syntax error")

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxNameLength   int
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// pdfScanner incrementally buffers PDF data from a ReaderAt in fixed-size windows.
type pdfScanner struct {
	reader        ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
}

// New returns a scanner that reads r lazily, one window at a time.
func New(r ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }

// Seek moves the cursor. Nesting state is reset, as a seek always starts a new object.
func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	s.nextStreamLen = -1
	return nil
}
func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	for {
		tok, err := s.next()
		if errors.Is(err, errSkip) {
			continue
		}
		return tok, err
	}
}

var errSkip = errors.New("skip token")

func (s *pdfScanner) next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		if errors.Is(err, io.EOF) {
			return s.atEOF()
		}
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	// Structural tokens
	switch c {
	case '<':
		if s.peekAhead(1) == '<' { // dictionary start
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		// hex string
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumber()
	}
	if isAlpha(c) {
		return s.scanKeyword()
	}
	// Fallback single char keyword; the parser rejects it where it is not expected.
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

// atEOF closes containers left open by a truncated file before reporting EOF.
func (s *pdfScanner) atEOF() (Token, error) {
	if s.arrayDepth == 0 && s.dictDepth == 0 {
		return Token{}, io.EOF
	}
	if err := s.recover(errors.New("unexpected end of data inside container"), "eof", recovery.IssueTruncated); err != nil {
		return Token{}, err
	}
	// closing order is unknown; arrays are typically innermost
	if s.arrayDepth > 0 {
		s.arrayDepth--
		return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
	}
	s.dictDepth--
	return Token{Type: TokenKeyword, Str: ">>", Pos: s.pos}, nil
}

// Helpers
func (s *pdfScanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		c := s.data[s.pos]
		// PDF whitespace: space, tab, CR, LF, FF and NUL
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' { // comment
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					return err
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

// ensure makes data[n] addressable, or returns io.EOF.
func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		s.eof = true
	}
	return nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isAlpha(c byte) bool      { return unicode.IsLetter(rune(c)) || c == '\'' || c == '"' || c == '*' }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && isHex(s.peekAhead(1)) && isHex(s.peekAhead(2)) { // hex escape in name
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
		} else {
			out.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			return Token{}, errors.New("name too long")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) scanLiteralString() (Token, error) { /* PDF 7.3.4.2 */
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		if c == '\\' { // escape
			s.pos++
			if err := s.ensure(s.pos); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return Token{}, err
			}
			esc := s.data[s.pos]
			// Line continuation: backslash followed by EOL is ignored
			if esc == '\r' {
				s.pos++
				if s.peekAhead(0) == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			// Octal escape up to 3 digits
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2; k++ {
					if err := s.ensure(s.pos); err != nil {
						break
					}
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("literal string too long")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal", recovery.IssueTruncated); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		hexbuf = append(hexbuf, c)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex", recovery.IssueTruncated); err != nil {
			return Token{}, err
		}
	}
	// If odd number of nibbles, pad with 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, errors.New("hex string too long")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func isWhitespace(c byte) bool { return raw.IsWhitespace(c) }
func isEOL(c byte) bool        { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool  { return raw.IsDelimiter(c) || raw.IsWhitespace(c) }

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

// peekAhead returns the byte n positions past the cursor, or 0 at EOF.
func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for {
		if err := s.ensure(s.pos); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if isDelimiter(s.data[s.pos]) {
			break
		}
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID": // inline image data; caller should have parsed image dict already
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumber() (Token, error) {
	start := s.pos
	for {
		if err := s.ensure(s.pos); err != nil {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			s.pos++
			continue
		}
		break
	}
	lit := s.data[start:s.pos]
	n, defect := ParseNumber(lit)
	if defect != "" {
		if err := s.recoverAt(start, fmt.Errorf("malformed number %q: %s", lit, defect), "number", recovery.IssueNumber); err != nil {
			return Token{}, err
		}
	}
	tok := Token{Type: TokenNumber, Pos: start, Str: string(lit), Kind: n.Kind}
	if n.IsInteger() {
		tok.IsInt = true
		tok.Int = n.I
	} else {
		tok.Float = n.F
	}
	return s.emit(tok)
}

func (s *pdfScanner) recover(err error, loc string, issue recovery.Issue) error {
	return s.recoverAt(s.pos, err, loc, issue)
}

// recoverAt routes a recoverable defect through the configured strategy. A nil
// return means the scanner continues with its best-effort value.
func (s *pdfScanner) recoverAt(offset int64, err error, loc string, issue recovery.Issue) error {
	location := s.recLoc
	location.ByteOffset = offset
	location.Issue = issue
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	return recovery.Report(nil, s.cfg.Recovery, err, location)
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, errors.New("array depth exceeded")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, errors.New("dict depth exceeded")
		}
	case TokenKeyword:
		if tok.Str == "]" {
			if s.arrayDepth == 0 {
				if err := s.recoverAt(tok.Pos, errors.New("array depth underflow"), "array", recovery.IssueSyntax); err != nil {
					return Token{}, err
				}
				return Token{}, errSkip
			}
			s.arrayDepth--
		}
		if tok.Str == ">>" {
			if s.dictDepth == 0 {
				if err := s.recoverAt(tok.Pos, errors.New("dict depth underflow"), "dict", recovery.IssueSyntax); err != nil {
					return Token{}, err
				}
				return Token{}, errSkip
			}
			s.dictDepth--
		}
	}
	return tok, nil
}
