package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/security"
)

// Operation is one operator with the operands that preceded it.
type Operation struct {
	Op Operator
	// Mnemonic is the operator token as read. For OpUnknown it is the only
	// record of the operator and is written back verbatim.
	Mnemonic string
	Operands []raw.Object
	// Image is set for OpBeginImage; the BI ... ID ... EI sequence is one
	// operation.
	Image *InlineImage
}

// InlineImage is the parameter dictionary and raw data of a BI operator.
type InlineImage struct {
	Dict *raw.DictObj
	Data []byte
}

// Name returns the mnemonic to serialize.
func (o Operation) Name() string {
	if o.Op == OpUnknown {
		return o.Mnemonic
	}
	return o.Op.String()
}

// Config controls content stream parsing.
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
}

// Parse decodes an unfiltered content stream with default limits.
func Parse(data []byte) ([]Operation, error) {
	return ParseWithConfig(data, Config{})
}

// ParseWithConfig decodes an unfiltered content stream into operations.
// Operands left over at the end of the stream are reported and dropped.
func ParseWithConfig(data []byte, cfg Config) ([]Operation, error) {
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	pcfg := parser.Config{Recovery: cfg.Recovery, Limits: cfg.Limits, NoReferences: true}
	p := parser.NewObjectParser(scanner.New(bytes.NewReader(data), pcfg.ScannerConfig()), pcfg)

	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := p.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: content stream: %v", parser.ErrSyntax, err)
		}
		switch {
		case tok.Type == scanner.TokenKeyword && tok.Str != "]" && tok.Str != ">>":
			if tok.Str == "BI" {
				img, err := parseInlineImage(p)
				if err != nil {
					return nil, err
				}
				ops = append(ops, Operation{Op: OpBeginImage, Mnemonic: "BI", Operands: operands, Image: img})
				operands = nil
				continue
			}
			op, _ := Lookup(tok.Str)
			ops = append(ops, Operation{Op: op, Mnemonic: tok.Str, Operands: operands})
			operands = nil
		case tok.Type == scanner.TokenInlineImage:
			return nil, fmt.Errorf("%w: ID without BI at offset %d", parser.ErrSyntax, tok.Pos)
		default:
			p.Unread(tok)
			obj, err := p.ParseObject()
			if err != nil {
				return nil, fmt.Errorf("content stream operand at offset %d: %w", tok.Pos, err)
			}
			operands = append(operands, obj)
		}
	}
	if len(operands) > 0 {
		loc := recovery.Location{ByteOffset: int64(len(data)), Component: "contentstream", Issue: recovery.IssueTruncated}
		if err := recovery.Report(nil, cfg.Recovery, fmt.Errorf("%d operands without operator", len(operands)), loc); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

func parseInlineImage(p *parser.ObjectParser) (*InlineImage, error) {
	img := &InlineImage{Dict: raw.Dict()}
	for {
		tok, err := p.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated inline image: %v", parser.ErrSyntax, err)
		}
		if tok.Type == scanner.TokenInlineImage {
			img.Data = tok.Bytes
			return img, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: inline image key at offset %d is a %s", parser.ErrSyntax, tok.Pos, tok.Type)
		}
		val, err := p.ParseObject()
		if err != nil {
			return nil, fmt.Errorf("inline image /%s: %w", tok.Str, err)
		}
		img.Dict.Set(tok.Str, val)
	}
}

// Serialize writes ops one per line. Parsing the result yields equal
// operations.
func Serialize(ops []Operation) []byte {
	var out []byte
	for _, op := range ops {
		out = AppendOperation(out, op)
		out = append(out, '\n')
	}
	return out
}

func AppendOperation(dst []byte, op Operation) []byte {
	for _, v := range op.Operands {
		dst = raw.AppendObject(dst, v)
		dst = append(dst, ' ')
	}
	if op.Op == OpBeginImage && op.Image != nil {
		dst = append(dst, "BI"...)
		if op.Image.Dict != nil {
			for _, k := range op.Image.Dict.Keys() {
				dst = append(dst, ' ')
				dst = raw.AppendName(dst, k)
				dst = append(dst, ' ')
				dst = raw.AppendObject(dst, op.Image.Dict.KV[k])
			}
		}
		dst = append(dst, " ID\n"...)
		dst = append(dst, op.Image.Data...)
		return append(dst, "\nEI"...)
	}
	return append(dst, op.Name()...)
}

// ColorUsage reports whether ops set device RGB or device CMYK colors.
func ColorUsage(ops []Operation) (rgb, cmyk bool) {
	for _, op := range ops {
		switch op.Op {
		case OpSetFillRGB, OpSetStrokeRGB:
			rgb = true
		case OpSetFillCMYK, OpSetStrokeCMYK:
			cmyk = true
		}
	}
	return rgb, cmyk
}
