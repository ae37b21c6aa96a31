package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wudi/pdfcodec/document"
	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/optimize"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/writer"
)

type options struct {
	in       string
	out      string
	doc      document.Options
	optimize optimize.Config
	props    map[string]string
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfrewrite: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfrewrite: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	opts := options{doc: document.DefaultOptions(), props: make(map[string]string)}
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfrewrite [flags] -o <out.pdf> <in.pdf>\n")
		flag.PrintDefaults()
	}
	cfg := &opts.doc.Writer
	flag.StringVar(&opts.out, "o", "", "Output path (required)")
	incremental := flag.Bool("append", false, "Append an incremental update instead of rewriting")
	version := flag.String("version", "", "PDF version of the output header (never below the input's)")
	level := flag.String("level", cfg.FlateLevel.String(), "Flate effort: fast, default, best or none")
	compression := flag.String("compression", "default", "Object packing: default, uncompressed or compressed")
	color := flag.String("color", "undefined", "Reject content outside a color mode: undefined, rgb or cmyk")
	flag.BoolVar(&cfg.XRefStreams, "xref-streams", false, "Write a cross-reference stream")
	flag.BoolVar(&cfg.ObjectStreams, "object-streams", false, "Pack small objects into object streams")
	noCompress := flag.Bool("no-compress", false, "Leave unfiltered streams uncompressed")
	noFax := flag.Bool("no-fax", false, "Re-store CCITT bilevel images with Flate")
	flag.BoolVar(&cfg.FlateWrapJPEG, "wrap-jpeg", false, "Flate-wrap JPEG streams when that shrinks them")
	flag.BoolVar(&cfg.Deduplicate, "dedupe", false, "Merge identical objects and streams")
	flag.BoolVar(&cfg.Deterministic, "deterministic", false, "Derive the file identifier from the content")
	flag.BoolVar(&cfg.ParallelCompression, "parallel", false, "Compress streams in parallel")
	flag.IntVar(&cfg.Workers, "workers", 0, "Compression workers with -parallel (0 = GOMAXPROCS)")
	flag.BoolVar(&opts.optimize.CleanUnusedObjects, "clean", false, "Drop objects unreachable from the trailer")
	flag.BoolVar(&opts.optimize.CombineDuplicateDirectObjects, "share-direct", false, "Turn repeated direct arrays and dictionaries into shared objects")
	flag.BoolVar(&opts.doc.Repair, "repair", true, "Rebuild a broken cross-reference map by scanning")
	strict := flag.Bool("strict", false, "Fail on the first recoverable defect")
	verbose := flag.Bool("v", false, "Log progress and recovered defects to stderr")
	flag.Func("set", "Set an information entry, key=value (repeatable)", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return fmt.Errorf("want key=value, got %q", s)
		}
		opts.props[k] = v
		return nil
	})
	flag.Parse()

	if flag.NArg() != 1 || opts.out == "" {
		flag.Usage()
		return options{}, fmt.Errorf("need one input and -o")
	}
	opts.in = flag.Arg(0)

	var err error
	if cfg.FlateLevel, err = filters.ParseLevel(*level); err != nil {
		return options{}, err
	}
	if cfg.Compression, err = writer.ParseCompression(*compression); err != nil {
		return options{}, err
	}
	if cfg.ColorMode, err = writer.ParseColorMode(*color); err != nil {
		return options{}, err
	}
	if *version != "" {
		cfg.Version = writer.PDFVersion(*version)
	}
	cfg.CompressStreams = !*noCompress
	cfg.FaxBilevel = !*noFax

	opts.doc.Mode = document.ModeModify
	if *incremental {
		opts.doc.Mode = document.ModeAppend
	}
	if *verbose {
		opts.doc.Logger = observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if *strict {
		opts.doc.Recovery = recovery.NewStrictStrategy()
	}
	if err := opts.doc.Validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	doc, err := document.OpenFile(ctx, opts.in, opts.doc)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.in, err)
	}
	defer doc.Close()

	if opts.optimize != (optimize.Config{}) {
		rep, err := doc.Optimize(ctx, opts.optimize)
		if err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		fmt.Fprintf(os.Stderr, "optimize: %d removed, %d added\n", len(rep.Removed), len(rep.Added))
	}
	for k, v := range opts.props {
		if err := doc.SetProperty(ctx, k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	if err := doc.SaveFile(ctx, opts.out); err != nil {
		return fmt.Errorf("save %s: %w", opts.out, err)
	}
	return nil
}
