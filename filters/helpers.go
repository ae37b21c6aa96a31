package filters

import "github.com/wudi/pdfcodec/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
// Inline-image abbreviations (F, DP) are accepted as well.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := dict.Get("Filter")
	if !ok {
		filterObj, ok = dict.Get("F")
	}
	if !ok {
		return names, params
	}

	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, CanonicalName(f.Val))
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, CanonicalName(n.Val))
			}
		}
	}

	if len(names) > 0 {
		pObj, ok := dict.Get("DecodeParms")
		if !ok {
			pObj, ok = dict.Get("DP")
		}
		if ok {
			switch p := pObj.(type) {
			case *raw.DictObj:
				params = append(params, p)
			case *raw.ArrayObj:
				for _, item := range p.Items {
					d, _ := item.(*raw.DictObj)
					params = append(params, d)
				}
			}
		}
	}

	return names, params
}

// SetFilters writes names and params back into dict, using the single-value
// form when there is exactly one filter.
func SetFilters(dict *raw.DictObj, names []string, params []*raw.DictObj) {
	dict.Delete("DecodeParms")
	switch len(names) {
	case 0:
		dict.Delete("Filter")
		return
	case 1:
		dict.Set("Filter", raw.Name(names[0]))
	default:
		arr := raw.NewArray()
		for _, n := range names {
			arr.Append(raw.Name(n))
		}
		dict.Set("Filter", arr)
	}
	hasParams := false
	for _, p := range params {
		if p != nil && p.Len() > 0 {
			hasParams = true
		}
	}
	if !hasParams {
		return
	}
	if len(names) == 1 {
		dict.Set("DecodeParms", params[0])
		return
	}
	arr := raw.NewArray()
	for i := range names {
		if i < len(params) && params[i] != nil {
			arr.Append(params[i])
			continue
		}
		arr.Append(raw.Null())
	}
	dict.Set("DecodeParms", arr)
}
