package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
)

// SetProperty stores value under key in the document information
// dictionary. Values outside ASCII are written as UTF-16BE text strings.
func (d *Document) SetProperty(ctx context.Context, key, value string) error {
	if err := d.mutable(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("property key is empty")
	}
	info, ref, err := d.info(ctx)
	if err != nil {
		return err
	}
	// copy so a loaded object is never changed behind the graph's back
	updated := raw.Dict()
	if info != nil {
		updated, _ = raw.DeepCopy(info).(*raw.DictObj)
	}
	updated.Set(key, raw.TextString(value))

	if ref.Valid() {
		return d.Set(ref, updated)
	}
	ref, err = d.Add(updated)
	if err != nil {
		return err
	}
	d.graph.Trailer.Set("Info", raw.Ref(ref.Num, ref.Gen))
	return nil
}

// Property returns the text value of key in the information dictionary.
func (d *Document) Property(ctx context.Context, key string) (string, bool, error) {
	if err := d.check(); err != nil {
		return "", false, err
	}
	info, _, err := d.info(ctx)
	if err != nil || info == nil {
		return "", false, err
	}
	v, ok := info.Get(key)
	if !ok {
		return "", false, nil
	}
	res := d.Resolve(ctx, v)
	switch res.Status {
	case StructuralError:
		return "", false, res.Err
	case NotFound:
		return "", false, nil
	}
	s, ok := res.Object.(raw.StringObj)
	if !ok {
		return "", false, fmt.Errorf("property %s is a %s", key, res.Object.Type())
	}
	return s.Text(), true, nil
}

// Properties returns every text entry of the information dictionary.
func (d *Document) Properties(ctx context.Context) (map[string]string, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	info, _, err := d.info(ctx)
	if err != nil || info == nil {
		return nil, err
	}
	out := make(map[string]string, info.Len())
	for _, k := range info.Keys() {
		v, _ := info.Get(k)
		if res := d.Resolve(ctx, v); res.OK() {
			if s, ok := res.Object.(raw.StringObj); ok {
				out[k] = s.Text()
			}
		}
	}
	return out, nil
}

// info finds the information dictionary. ref is the zero value when the
// dictionary is missing or stored directly in the trailer.
func (d *Document) info(ctx context.Context) (*raw.DictObj, raw.ObjectRef, error) {
	v, ok := d.graph.Trailer.Get("Info")
	if !ok {
		return nil, raw.ObjectRef{}, nil
	}
	var ref raw.ObjectRef
	if r, ok := v.(raw.RefObj); ok {
		ref = r.R
	}
	res := d.Resolve(ctx, v)
	switch res.Status {
	case StructuralError:
		return nil, ref, fmt.Errorf("info dictionary: %w", res.Err)
	case NotFound:
		return nil, raw.ObjectRef{}, nil
	}
	info, ok := res.Object.(*raw.DictObj)
	if !ok {
		return nil, raw.ObjectRef{}, nil
	}
	return info, ref, nil
}
