package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/scanner"
)

var (
	objHeader   = regexp.MustCompile(`(\d{1,10})[\x00\t\n\f\r ]+(\d{1,5})[\x00\t\n\f\r ]+obj\b`)
	trailerWord = regexp.MustCompile(`trailer[\x00\t\n\f\r ]*<<`)
)

// repair scans the entire file to reconstruct the location map from
// "N G obj" headers. Later definitions win, as they belong to later updates.
// Objects inside object streams are recovered from the streams' headers, and
// the trailer from the last trailer dictionary or xref stream.
func repair(ctx context.Context, r io.ReaderAt, size int64, cfg ResolverConfig) (*Map, error) {
	data := make([]byte, size)
	n, err := r.ReadAt(data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	data = data[:n]

	m := newMap()
	m.repaired = true
	for _, loc := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := loc[0]
		if start > 0 && !raw.IsWhitespace(data[start-1]) && !raw.IsDelimiter(data[start-1]) {
			continue
		}
		num, err1 := strconv.Atoi(string(data[loc[2]:loc[3]]))
		gen, err2 := strconv.Atoi(string(data[loc[4]:loc[5]]))
		if err1 != nil || err2 != nil || num < 1 {
			continue
		}
		m.entries[num] = Entry{Type: EntryInUse, Offset: int64(start), Gen: gen}
	}
	if len(m.entries) == 0 {
		return nil, fmt.Errorf("%w: no objects found while scanning", ErrNoXRef)
	}

	pcfg := parser.Config{Recovery: cfg.Recovery, Limits: cfg.Limits}
	pipe := filters.NewDefaultPipeline(filters.LimitsFrom(cfg.Limits), cfg.Recovery)
	loader, err := parser.NewObjectLoaderBuilder().
		WithReader(bytes.NewReader(data)).
		WithLocator(m).
		WithConfig(pcfg).
		WithFilters(pipe).
		Build()
	if err != nil {
		return nil, err
	}

	var catalog *raw.ObjectRef
	var streamTrailer *raw.DictObj
	for _, num := range m.Objects() {
		e := m.entries[num]
		ref := raw.ObjectRef{Num: num, Gen: e.Gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			cfg.Logger.Debug("repair: skipping unreadable object")
			continue
		}
		var dict *raw.DictObj
		switch v := obj.(type) {
		case *raw.DictObj:
			dict = v
		case *raw.StreamObj:
			dict = v.Dict
		}
		if dict == nil {
			continue
		}
		switch t, _ := dict.GetName("Type"); t {
		case "Catalog":
			c := ref
			catalog = &c
		case "XRef":
			streamTrailer = dict
		case "ObjStm":
			addObjectStream(ctx, m, num, obj.(*raw.StreamObj), pipe, pcfg)
		}
	}

	trailer := lastTrailer(data, pcfg)
	if trailer == nil && streamTrailer != nil {
		trailer = raw.Dict()
		for _, k := range streamTrailer.Keys() {
			if !sectionOnlyKey(k) && k != "Size" {
				trailer.Set(k, streamTrailer.KV[k])
			}
		}
	}
	if trailer == nil {
		trailer = raw.Dict()
	}
	if _, ok := trailer.Get("Root"); !ok && catalog != nil {
		trailer.Set("Root", raw.Ref(catalog.Num, catalog.Gen))
	}
	trailer.Delete("Prev")
	trailer.Delete("XRefStm")
	m.trailer = trailer
	trailer.Set("Size", raw.NumberInt(int64(maxNum(m)+1)))
	return m, nil
}

// addObjectStream registers the members of an object stream that have no
// direct definition of their own.
func addObjectStream(ctx context.Context, m *Map, num int, st *raw.StreamObj, pipe *filters.Pipeline, cfg parser.Config) {
	count, _ := st.Dict.GetInt("N")
	first, _ := st.Dict.GetInt("First")
	names, params := filters.ExtractFilters(st.Dict)
	data, err := pipe.Decode(ctx, st.Data, names, params)
	if err != nil || first <= 0 || first > int64(len(data)) {
		return
	}
	s := scanner.New(bytes.NewReader(data[:first]), cfg.ScannerConfig())
	for i := int64(0); i < count; i++ {
		a, err := s.Next()
		if err != nil {
			return
		}
		b, err := s.Next()
		if err != nil || !a.IsInt || !b.IsInt {
			return
		}
		m.set(int(a.Int), Entry{Type: EntryCompressed, StreamNum: num, Index: int(i)})
	}
}

// lastTrailer parses the last trailer dictionary that names a Root, or the
// last parseable one.
func lastTrailer(data []byte, cfg parser.Config) *raw.DictObj {
	locs := trailerWord.FindAllIndex(data, -1)
	var fallback *raw.DictObj
	for i := len(locs) - 1; i >= 0; i-- {
		start := int64(locs[i][1] - 2)
		p := parser.NewObjectParser(scanner.New(bytes.NewReader(data), cfg.ScannerConfig()), cfg)
		if err := p.Seek(start); err != nil {
			continue
		}
		obj, err := p.ParseObject()
		if err != nil {
			continue
		}
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if _, ok := d.Get("Root"); ok {
			return d
		}
		if fallback == nil {
			fallback = d
		}
	}
	return fallback
}

func maxNum(m *Map) int {
	max := 0
	for k := range m.entries {
		if k > max {
			max = k
		}
	}
	return max
}
