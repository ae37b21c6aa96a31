package writer

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcodec/cmm"
	"github.com/wudi/pdfcodec/contentstream"
	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/security"
)

// checkColorMode rejects content in refs that uses the device color model the
// configured mode excludes. Page contents and form XObjects are parsed;
// image XObjects are judged by the device family their /ColorSpace resolves
// to. Streams that cannot be decoded or parsed are skipped.
func checkColorMode(ctx context.Context, objects map[raw.ObjectRef]raw.Object, refs []raw.ObjectRef, cfg Config) error {
	if cfg.ColorMode == ColorUndefined {
		return nil
	}
	contents := pageContents(objects)
	pipe := filters.NewDefaultPipeline(filters.LimitsFrom(security.DefaultLimits()), nil)
	cls := cmm.Classifier{
		Resolve: func(o raw.Object) raw.Object {
			if r, ok := o.(raw.RefObj); ok {
				return objects[r.R]
			}
			return o
		},
		Profile: func(st *raw.StreamObj) ([]byte, error) {
			names, params := filters.ExtractFilters(st.Dict)
			return pipe.Decode(ctx, st.Data, names, params)
		},
	}
	for _, ref := range refs {
		st, ok := objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		subtype, _ := st.Dict.GetName("Subtype")
		if subtype == "Image" {
			if err := checkColorSpace(cls, ref, st.Dict, "ColorSpace", cfg.ColorMode); err != nil {
				return err
			}
			continue
		}
		if !contents[ref] && subtype != "Form" {
			continue
		}
		names, params := filters.ExtractFilters(st.Dict)
		data, err := pipe.Decode(ctx, st.Data, names, params)
		if err != nil {
			cfg.Logger.Debug("color check skipped", observability.String("object", ref.String()), observability.Error("error", err))
			continue
		}
		ops, err := contentstream.Parse(data)
		if err != nil {
			cfg.Logger.Debug("color check skipped", observability.String("object", ref.String()), observability.Error("error", err))
			continue
		}
		rgb, cmyk := contentstream.ColorUsage(ops)
		if cfg.ColorMode == ColorRGB && cmyk || cfg.ColorMode == ColorCMYK && rgb {
			return fmt.Errorf("%w: %s uses %s in %s mode", ErrColorMode, ref, other(cfg.ColorMode), cfg.ColorMode)
		}
		for _, op := range ops {
			if op.Image == nil {
				continue
			}
			if err := checkColorSpace(cls, ref, op.Image.Dict, "CS", cfg.ColorMode); err != nil {
				return err
			}
			if err := checkColorSpace(cls, ref, op.Image.Dict, "ColorSpace", cfg.ColorMode); err != nil {
				return err
			}
		}
	}
	return nil
}

func other(m ColorMode) string {
	if m == ColorRGB {
		return "cmyk"
	}
	return "rgb"
}

// checkColorSpace classifies d[key]. Named resources of inline images are
// not looked up and pass.
func checkColorSpace(cls cmm.Classifier, ref raw.ObjectRef, d *raw.DictObj, key string, mode ColorMode) error {
	cs, ok := d.Get(key)
	if !ok {
		return nil
	}
	m := cls.Model(cs)
	switch {
	case mode == ColorRGB && m == cmm.ModelCMYK:
	case mode == ColorCMYK && m == cmm.ModelRGB:
	default:
		return nil
	}
	return fmt.Errorf("%w: %s image color space is %s in %s mode", ErrColorMode, ref, m, mode)
}

// pageContents collects the content streams referenced by page objects.
func pageContents(objects map[raw.ObjectRef]raw.Object) map[raw.ObjectRef]bool {
	out := make(map[raw.ObjectRef]bool)
	for _, obj := range objects {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := d.GetName("Type"); typ != "Page" {
			continue
		}
		switch c := d.KV["Contents"].(type) {
		case raw.RefObj:
			out[c.R] = true
			// Contents may point at an array of streams
			if arr, ok := objects[c.R].(*raw.ArrayObj); ok {
				for _, it := range arr.Items {
					if r, ok := it.(raw.RefObj); ok {
						out[r.R] = true
					}
				}
			}
		case *raw.ArrayObj:
			for _, it := range c.Items {
				if r, ok := it.(raw.RefObj); ok {
					out[r.R] = true
				}
			}
		}
	}
	return out
}
