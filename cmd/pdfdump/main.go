package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/midbel/hexdump"

	"github.com/wudi/pdfcodec/contentstream"
	"github.com/wudi/pdfcodec/document"
	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
	"github.com/wudi/pdfcodec/xref"
)

type options struct {
	pdfPath string
	object  int
	all     bool
	xref    bool
	trailer bool
	decode  bool
	hex     bool
	ops     bool
	tokens  int
	strict  bool
	repair  bool
	verbose bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfdump: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfdump: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfdump [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.BoolVar(&opts.xref, "xref", false, "Dump the cross-reference map")
	flag.BoolVar(&opts.trailer, "trailer", false, "Dump the merged trailer")
	flag.IntVar(&opts.object, "obj", 0, "Dump one object by number")
	flag.BoolVar(&opts.all, "a", false, "Dump every object")
	flag.BoolVar(&opts.decode, "d", false, "Decode stream bodies through their filters")
	flag.BoolVar(&opts.hex, "hex", false, "Print stream bodies as a hex dump")
	flag.BoolVar(&opts.ops, "ops", false, "Print content-stream operations of dumped streams")
	flag.IntVar(&opts.tokens, "tokens", 0, "Print the first N lexical tokens of the file")
	flag.BoolVar(&opts.strict, "strict", false, "Fail on the first recoverable defect")
	flag.BoolVar(&opts.repair, "repair", true, "Rebuild a broken cross-reference map by scanning")
	flag.BoolVar(&opts.verbose, "v", false, "Log recovered defects and progress to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.pdfPath = flag.Arg(0)
	if !opts.xref && !opts.trailer && opts.object == 0 && !opts.all && opts.tokens == 0 {
		opts.xref, opts.trailer = true, true
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	if opts.tokens > 0 {
		return dumpTokens(opts.pdfPath, opts.tokens)
	}

	dopts := document.DefaultOptions()
	dopts.Mode = document.ModeImport
	dopts.Repair = opts.repair
	if opts.verbose {
		dopts.Logger = observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if opts.strict {
		dopts.Recovery = recovery.NewStrictStrategy()
	}
	doc, err := document.OpenFile(ctx, opts.pdfPath, dopts)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if opts.xref {
		if err := emitSection("xref", xrefSummary(doc.XRef())); err != nil {
			return err
		}
	}
	if opts.trailer {
		fmt.Printf("== trailer ==\n%s\n\n", raw.Serialize(doc.Trailer()))
	}

	var refs []raw.ObjectRef
	switch {
	case opts.all:
		refs = doc.Refs()
	case opts.object > 0:
		for _, ref := range doc.Refs() {
			if ref.Num == opts.object {
				refs = append(refs, ref)
			}
		}
		if len(refs) == 0 {
			return fmt.Errorf("object %d not found", opts.object)
		}
	}
	pipe := filters.NewDefaultPipeline(filters.LimitsFrom(dopts.Limits), dopts.Recovery)
	for _, ref := range refs {
		if err := dumpObject(ctx, doc, pipe, ref, opts); err != nil {
			return err
		}
	}
	return nil
}

type sectionSummary struct {
	Offset  int64  `json:"offset"`
	Kind    string `json:"kind"`
	Entries int    `json:"entries"`
}

type entrySummary struct {
	Num    int    `json:"num"`
	Type   string `json:"type"`
	Offset int64  `json:"offset,omitempty"`
	Gen    int    `json:"gen,omitempty"`
	Stream int    `json:"stream,omitempty"`
	Index  int    `json:"index,omitempty"`
}

type mapSummary struct {
	Type      string           `json:"type"`
	StartXRef int64            `json:"startxref"`
	Size      int              `json:"size"`
	Sections  []sectionSummary `json:"sections"`
	Entries   []entrySummary   `json:"entries"`
}

func xrefSummary(m *xref.Map) mapSummary {
	s := mapSummary{Type: m.Type(), StartXRef: m.StartXRef(), Size: m.Size()}
	for _, sec := range m.Sections() {
		s.Sections = append(s.Sections, sectionSummary{Offset: sec.Offset, Kind: sec.Kind, Entries: sec.Entries})
	}
	entries := m.Entries()
	nums := make([]int, 0, len(entries))
	for num := range entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	for _, num := range nums {
		e := entries[num]
		es := entrySummary{Num: num}
		switch e.Type {
		case xref.EntryFree:
			es.Type, es.Offset, es.Gen = "free", e.Offset, e.Gen
		case xref.EntryInUse:
			es.Type, es.Offset, es.Gen = "in-use", e.Offset, e.Gen
		case xref.EntryCompressed:
			es.Type, es.Stream, es.Index = "compressed", e.StreamNum, e.Index
		}
		s.Entries = append(s.Entries, es)
	}
	return s
}

func dumpObject(ctx context.Context, doc *document.Document, pipe *filters.Pipeline, ref raw.ObjectRef, opts options) error {
	res := doc.Get(ctx, ref)
	switch res.Status {
	case document.NotFound:
		fmt.Printf("%d %d obj: not found\n\n", ref.Num, ref.Gen)
		return nil
	case document.StructuralError:
		fmt.Printf("%d %d obj: %v\n\n", ref.Num, ref.Gen, res.Err)
		return nil
	}
	st, ok := res.Object.(*raw.StreamObj)
	if !ok {
		fmt.Printf("%d %d obj\n%s\n\n", ref.Num, ref.Gen, raw.Serialize(res.Object))
		return nil
	}
	fmt.Printf("%d %d obj\n%s\n", ref.Num, ref.Gen, raw.Serialize(st.Dict))

	body := st.Data
	if opts.decode || opts.ops {
		names, params := filters.ExtractFilters(st.Dict)
		data, err := pipe.Decode(ctx, st.Data, names, params)
		if err != nil {
			fmt.Printf("stream: %v\n\n", err)
			return nil
		}
		body = data
	}
	switch {
	case opts.ops:
		ops, err := contentstream.Parse(body)
		if err != nil {
			fmt.Printf("content: %v\n\n", err)
			return nil
		}
		os.Stdout.Write(contentstream.Serialize(ops))
		fmt.Println()
		if err := contentstream.Validate(ops); err != nil {
			fmt.Printf("%% %v\n", err)
		}
		if box, painted, err := contentstream.Bounds(ops); err == nil && painted {
			fmt.Printf("%% path bounds [%g %g %g %g]\n", box.LLX, box.LLY, box.URX, box.URY)
		}
		fmt.Println()
	case opts.hex:
		fmt.Println(hexdump.Dump(body))
	default:
		fmt.Printf("stream (%d bytes)\n\n", len(body))
	}
	return nil
}

func dumpTokens(path string, limit int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	s := scanner.New(f, scanner.Config{Recovery: recovery.NewLenientStrategy()})
	for i := 0; i < limit; i++ {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("token %d: %w", i, err)
		}
		fmt.Printf("%d %s %s\n", tok.Pos, tok.Type, tokenText(tok))
	}
	return nil
}

func tokenText(tok scanner.Token) string {
	switch tok.Type {
	case scanner.TokenName:
		return "/" + tok.Str
	case scanner.TokenNumber:
		return string(raw.AppendNumber(nil, tok.Number()))
	case scanner.TokenString:
		return string(raw.Serialize(raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}))
	case scanner.TokenBoolean:
		return strconv.FormatBool(tok.Bool)
	case scanner.TokenStream, scanner.TokenInlineImage:
		return strconv.Itoa(len(tok.Bytes)) + " bytes"
	}
	return tok.Str
}

func emitSection(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	fmt.Printf("== %s ==\n%s\n\n", name, data)
	return nil
}
