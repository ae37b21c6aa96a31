package writer

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/security"
)

// encodeStreams applies the stream policy to every stream in refs and stores
// the result back into objects. Work may run in parallel; results land by
// index so the output order never depends on scheduling.
func encodeStreams(ctx context.Context, objects map[raw.ObjectRef]raw.Object, refs []raw.ObjectRef, cfg Config) error {
	var jobs []raw.ObjectRef
	for _, ref := range refs {
		if _, ok := objects[ref].(*raw.StreamObj); ok {
			jobs = append(jobs, ref)
		}
	}
	results := make([]*raw.StreamObj, len(jobs))
	pipe := filters.NewDefaultPipeline(filters.LimitsFrom(security.DefaultLimits()), nil)

	g, gctx := errgroup.WithContext(ctx)
	limit := 1
	if cfg.ParallelCompression {
		limit = cfg.Workers
		if limit <= 0 {
			limit = runtime.GOMAXPROCS(0)
		}
	}
	g.SetLimit(limit)
	for i, ref := range jobs {
		i, ref := i, ref
		st := objects[ref].(*raw.StreamObj)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := encodeStream(gctx, st, cfg, pipe)
			if err != nil {
				return fmt.Errorf("encode stream %s: %w", ref, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, ref := range jobs {
		objects[ref] = results[i]
	}
	cfg.Logger.Debug("streams encoded", observability.Int("count", len(jobs)), observability.Int("workers", limit))
	return nil
}

// encodeStream never mutates st. Streams that already carry filters keep
// their bytes, except JPEG wrapping when it shrinks them and bilevel fax
// images when FaxBilevel is off.
func encodeStream(ctx context.Context, st *raw.StreamObj, cfg Config, pipe *filters.Pipeline) (*raw.StreamObj, error) {
	dict, _ := raw.DeepCopy(st.Dict).(*raw.DictObj)
	if dict == nil {
		dict = raw.Dict()
	}
	data := st.Data
	names, params := filters.ExtractFilters(dict)

	switch {
	case len(names) == 0 && cfg.CompressStreams && len(data) > 0 && cfg.FlateLevel != filters.LevelNone:
		packed, err := filters.Deflate(data, cfg.FlateLevel)
		if err != nil {
			return nil, err
		}
		if len(packed) < len(data) {
			data = packed
			filters.SetFilters(dict, []string{"FlateDecode"}, nil)
		}
	case cfg.FlateWrapJPEG && len(names) == 1 && names[0] == "DCTDecode":
		packed, err := filters.Deflate(data, cfg.FlateLevel)
		if err != nil {
			return nil, err
		}
		if len(packed) < len(data) {
			data = packed
			var dct *raw.DictObj
			if len(params) > 0 {
				dct = params[0]
			}
			filters.SetFilters(dict, []string{"FlateDecode", "DCTDecode"}, []*raw.DictObj{nil, dct})
		}
	case !cfg.FaxBilevel && cfg.CompressStreams && isBilevelFax(dict, names):
		pixels, err := pipe.Decode(ctx, data, names, params)
		if err != nil {
			// K > 0 and damaged data stay as they are
			cfg.Logger.Debug("fax image kept", observability.Error("error", err))
			break
		}
		packed, err := filters.Deflate(pixels, cfg.FlateLevel)
		if err != nil {
			return nil, err
		}
		data = packed
		filters.SetFilters(dict, []string{"FlateDecode"}, nil)
	}
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return raw.NewStream(dict, data), nil
}

func isBilevelFax(dict *raw.DictObj, names []string) bool {
	if len(names) != 1 || names[0] != "CCITTFaxDecode" {
		return false
	}
	bpc, ok := dict.GetInt("BitsPerComponent")
	return !ok || bpc == 1
}

// checkNesting rejects a stream anywhere below the top level of obj and any
// real that cannot be written.
func checkNesting(ref raw.ObjectRef, obj raw.Object) error {
	if !ref.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidRef, ref)
	}
	if obj == nil {
		return fmt.Errorf("%s: nil object", ref)
	}
	root := obj
	if st, ok := obj.(*raw.StreamObj); ok {
		root = st.Dict
	}
	var bad, nonFinite bool
	raw.Walk(root, func(o raw.Object) {
		switch v := o.(type) {
		case *raw.StreamObj:
			bad = true
		case raw.NumberObj:
			if v.Kind == raw.Real && (math.IsInf(v.F, 0) || math.IsNaN(v.F)) {
				nonFinite = true
			}
		}
	})
	if bad {
		return fmt.Errorf("%w: found inside %s", ErrNestedStream, ref)
	}
	if nonFinite {
		return fmt.Errorf("%w: in %s", ErrNonFinite, ref)
	}
	return nil
}
