package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/security"
)

// ErrSyntax marks a token that is not legal at its grammar position.
var ErrSyntax = errors.New("parser: syntax error")

type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	// NoReferences disables the "int int R" collapse. Content streams use it,
	// where R is not an operator and two numbers followed by R never occur.
	NoReferences bool
}

// ScannerConfig derives the lexer configuration matching cfg.
func (cfg Config) ScannerConfig() scanner.Config {
	return scanner.Config{
		Recovery:        cfg.Recovery,
		MaxStringLength: cfg.Limits.MaxStringLength,
		MaxArrayDepth:   cfg.Limits.MaxNestingDepth,
		MaxDictDepth:    cfg.Limits.MaxNestingDepth,
		MaxStreamLength: cfg.Limits.MaxStreamLength,
	}
}

// LengthResolver resolves an indirect stream /Length. ok is false when the
// referenced object is missing or not an integer.
type LengthResolver func(ref raw.ObjectRef) (n int64, ok bool)

// ObjectParser builds PDF values from a token stream.
type ObjectParser struct {
	s       scanner.Scanner
	cfg     Config
	buf     []scanner.Token
	lengths LengthResolver
	loc     recovery.Location
}

func NewObjectParser(s scanner.Scanner, cfg Config) *ObjectParser {
	return &ObjectParser{s: s, cfg: cfg}
}

// SetLengthResolver installs the callback used for "/Length N G R".
func (p *ObjectParser) SetLengthResolver(fn LengthResolver) { p.lengths = fn }

// Seek repositions the underlying scanner and drops any lookahead.
func (p *ObjectParser) Seek(offset int64) error {
	p.buf = p.buf[:0]
	return p.s.Seek(offset)
}

// Position is the offset of the next unread token.
func (p *ObjectParser) Position() int64 {
	if l := len(p.buf); l > 0 {
		return p.buf[l-1].Pos
	}
	return p.s.Position()
}

// Token returns the next primitive token, honoring unread ones.
func (p *ObjectParser) Token() (scanner.Token, error) {
	if l := len(p.buf); l > 0 {
		t := p.buf[l-1]
		p.buf = p.buf[:l-1]
		return t, nil
	}
	return p.s.Next()
}

// Unread pushes tok back; tokens come out in reverse push order.
func (p *ObjectParser) Unread(tok scanner.Token) { p.buf = append(p.buf, tok) }

// ParseObject parses one direct value. At end of input it returns io.EOF.
func (p *ObjectParser) ParseObject() (raw.Object, error) {
	tok, err := p.Token()
	if err != nil {
		return nil, err
	}
	return p.parseFrom(tok, 0)
}

func (p *ObjectParser) parseFrom(tok scanner.Token, depth int) (raw.Object, error) {
	if p.cfg.Limits.ExceedsNesting(depth) {
		return nil, fmt.Errorf("nesting deeper than %d at offset %d", p.cfg.Limits.MaxNestingDepth, tok.Pos)
	}
	switch tok.Type {
	case scanner.TokenName:
		return raw.Name(tok.Str), nil
	case scanner.TokenNumber:
		if tok.IsInt && !p.cfg.NoReferences {
			if ref, ok, err := p.tryReference(tok); err != nil || ok {
				return ref, err
			}
		}
		return tok.Number(), nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.Null(), nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenArray:
		return p.parseArray(depth + 1)
	case scanner.TokenDict:
		return p.parseDict(depth + 1)
	}
	return nil, p.unexpected(tok)
}

// tryReference looks two tokens ahead for "G R". Anything else is pushed back.
func (p *ObjectParser) tryReference(num scanner.Token) (raw.Object, bool, error) {
	gen, err := p.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if gen.Type != scanner.TokenNumber || !gen.IsInt {
		p.Unread(gen)
		return nil, false, nil
	}
	kw, err := p.Token()
	if err != nil {
		p.Unread(gen)
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !kw.IsKeyword("R") {
		p.Unread(kw)
		p.Unread(gen)
		return nil, false, nil
	}
	if num.Int < 0 || gen.Int < 0 {
		return nil, false, fmt.Errorf("%w: negative reference %d %d R at offset %d", ErrSyntax, num.Int, gen.Int, num.Pos)
	}
	return raw.Ref(int(num.Int), int(gen.Int)), true, nil
}

func (p *ObjectParser) parseArray(depth int) (raw.Object, error) {
	arr := raw.NewArray()
	for {
		tok, err := p.Token()
		if err != nil {
			return nil, p.truncated(err)
		}
		if tok.IsKeyword("]") {
			return arr, nil
		}
		item, err := p.parseFrom(tok, depth)
		if err != nil {
			return nil, err
		}
		if max := p.cfg.Limits.MaxArraySize; max > 0 && arr.Len() >= max {
			return nil, fmt.Errorf("array larger than %d items", max)
		}
		arr.Append(item)
	}
}

func (p *ObjectParser) parseDict(depth int) (raw.Object, error) {
	d := raw.Dict()
	for {
		tok, err := p.Token()
		if err != nil {
			return nil, p.truncated(err)
		}
		if tok.IsKeyword(">>") {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			if tok.IsKeyword("endobj") || tok.Type == scanner.TokenStream {
				// missing ">>"; close here and let the caller see the token
				if err := p.report(tok.Pos, errors.New("dictionary not closed"), recovery.IssueSyntax); err != nil {
					return nil, err
				}
				p.Unread(tok)
				return d, nil
			}
			return nil, fmt.Errorf("%w: dictionary key must be a name, got %s at offset %d", ErrSyntax, tok.Type, tok.Pos)
		}
		vt, err := p.Token()
		if err != nil {
			return nil, p.truncated(err)
		}
		if vt.IsKeyword(">>") {
			// "/Key >>": treat the value as null
			if err := p.report(vt.Pos, fmt.Errorf("key /%s has no value", tok.Str), recovery.IssueSyntax); err != nil {
				return nil, err
			}
			return d, nil
		}
		val, err := p.parseFrom(vt, depth)
		if err != nil {
			return nil, err
		}
		if max := p.cfg.Limits.MaxDictSize; max > 0 && d.Len() >= max {
			return nil, fmt.Errorf("dictionary larger than %d entries", max)
		}
		d.Set(tok.Str, val)
	}
}

// ParseIndirect parses "N G obj <value> endobj" at the cursor. A dictionary
// followed by the stream keyword becomes a stream; its payload is delimited
// by /Length when that value ends at endstream, by scanning otherwise.
func (p *ObjectParser) ParseIndirect() (raw.ObjectRef, raw.Object, error) {
	ref, err := p.parseHeader()
	if err != nil {
		return raw.ObjectRef{}, nil, err
	}
	prev := p.loc
	p.loc.ObjectNum, p.loc.ObjectGen = ref.Num, ref.Gen
	p.s.SetRecoveryLocation(recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser"})
	defer func() {
		p.loc = prev
		p.s.SetRecoveryLocation(prev)
	}()

	tok, err := p.Token()
	if err != nil {
		return ref, nil, p.truncated(err)
	}
	if tok.IsKeyword("endobj") {
		// "N G obj endobj" defines a null object
		return ref, raw.Null(), nil
	}
	obj, err := p.parseFrom(tok, 0)
	if err != nil {
		return ref, nil, err
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		declared, problem := p.declaredLength(dict)
		if len(p.buf) == 0 {
			p.s.SetNextStreamLength(declared)
		}
		next, err := p.Token()
		p.s.SetNextStreamLength(-1)
		switch {
		case err == nil && next.Type == scanner.TokenStream:
			if problem != nil {
				if err := p.report(next.Pos, problem, recovery.IssueStreamLength); err != nil {
					return ref, nil, err
				}
			}
			if declared != int64(len(next.Bytes)) {
				dict.Set("Length", raw.NumberInt(int64(len(next.Bytes))))
			}
			obj = raw.NewStream(dict, next.Bytes)
		case err == nil:
			p.Unread(next)
		case !errors.Is(err, io.EOF):
			return ref, nil, err
		}
	}
	if err := p.expectEndobj(); err != nil {
		return ref, nil, err
	}
	return ref, obj, nil
}

func (p *ObjectParser) parseHeader() (raw.ObjectRef, error) {
	num, err := p.Token()
	if err != nil {
		return raw.ObjectRef{}, err
	}
	gen, err := p.Token()
	if err != nil {
		return raw.ObjectRef{}, p.truncated(err)
	}
	kw, err := p.Token()
	if err != nil {
		return raw.ObjectRef{}, p.truncated(err)
	}
	if num.Type != scanner.TokenNumber || !num.IsInt || gen.Type != scanner.TokenNumber || !gen.IsInt || !kw.IsKeyword("obj") {
		return raw.ObjectRef{}, fmt.Errorf("%w: expected \"N G obj\" at offset %d", ErrSyntax, num.Pos)
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}
	if !ref.Valid() {
		return ref, fmt.Errorf("%w: invalid object number %s at offset %d", ErrSyntax, ref, num.Pos)
	}
	return ref, nil
}

// declaredLength returns the usable /Length, or -1 and the reason a scan is
// needed. The reason only matters if a stream keyword follows.
func (p *ObjectParser) declaredLength(dict *raw.DictObj) (int64, error) {
	v, ok := dict.Get("Length")
	if !ok {
		return -1, errors.New("stream has no Length")
	}
	switch l := v.(type) {
	case raw.NumberObj:
		if l.IsInteger() && l.I >= 0 {
			return l.I, nil
		}
	case raw.RefObj:
		if p.lengths != nil {
			if n, ok := p.lengths(l.R); ok && n >= 0 {
				return n, nil
			}
		}
		return -1, fmt.Errorf("stream Length %s unresolved", l.R)
	}
	return -1, fmt.Errorf("stream Length %s is not a non-negative integer", raw.Serialize(v))
}

func (p *ObjectParser) expectEndobj() error {
	tok, err := p.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return p.report(p.Position(), errors.New("missing endobj at end of input"), recovery.IssueTruncated)
		}
		return err
	}
	if tok.IsKeyword("endobj") {
		return nil
	}
	p.Unread(tok)
	return p.report(tok.Pos, fmt.Errorf("expected endobj, found %s", tok.Type), recovery.IssueSyntax)
}

func (p *ObjectParser) truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrSyntax, io.ErrUnexpectedEOF)
	}
	return err
}

func (p *ObjectParser) unexpected(tok scanner.Token) error {
	what := tok.Type.String()
	if tok.Type == scanner.TokenKeyword {
		what = fmt.Sprintf("keyword %q", tok.Str)
	}
	return fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, what, tok.Pos)
}

func (p *ObjectParser) report(offset int64, err error, issue recovery.Issue) error {
	loc := p.loc
	loc.ByteOffset = offset
	loc.Issue = issue
	loc.Component = "parser"
	return recovery.Report(nil, p.cfg.Recovery, err, loc)
}
