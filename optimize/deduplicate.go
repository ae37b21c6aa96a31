package optimize

import (
	"context"

	"github.com/wudi/pdfcodec/ir/raw"
)

// combineObjects repeats until a pass finds nothing: merging two leaves can
// make their parents identical.
func (o *Optimizer) combineObjects(ctx context.Context, doc *raw.Document, includeStreams, includeOthers bool, rep *Report) error {
	changed := true
	for changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed = false
		seen := make(map[digest]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		refs := make([]raw.ObjectRef, 0, len(doc.Objects))
		for ref := range doc.Objects {
			refs = append(refs, ref)
		}
		sortRefs(refs)

		for _, ref := range refs {
			obj := doc.Objects[ref]
			_, isStream := obj.(*raw.StreamObj)
			if isStream && !includeStreams || !isStream && !includeOthers {
				continue
			}
			if !mergeable(obj) {
				continue
			}
			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
				changed = true
			} else {
				seen[h] = ref
			}
		}

		if len(replacements) > 0 {
			o.applyReplacements(doc, replacements)
			var removed []raw.ObjectRef
			for dup := range replacements {
				delete(doc.Objects, dup)
				removed = append(removed, dup)
			}
			sortRefs(removed)
			rep.Removed = append(rep.Removed, removed...)
		}
	}
	return nil
}

// combineDuplicateDirectObjects hoists arrays and dictionaries that occur
// more than once inside indirect objects into new indirect objects. Stream
// dictionaries and the trailer are left alone; their values are read without
// reference resolution by some consumers.
func (o *Optimizer) combineDuplicateDirectObjects(ctx context.Context, doc *raw.Document, rep *Report) error {
	counts := make(map[digest]int)
	samples := make(map[digest]raw.Object)

	var countVisitor func(obj raw.Object)
	countVisitor = func(obj raw.Object) {
		switch t := obj.(type) {
		case *raw.ArrayObj:
			h := hashObject(obj)
			counts[h]++
			if counts[h] == 1 {
				samples[h] = obj
			}
			for _, v := range t.Items {
				countVisitor(v)
			}
		case *raw.DictObj:
			h := hashObject(obj)
			counts[h]++
			if counts[h] == 1 {
				samples[h] = obj
			}
			for _, k := range t.Keys() {
				countVisitor(t.KV[k])
			}
		}
	}

	refs := make([]raw.ObjectRef, 0, len(doc.Objects))
	nextID := 1
	for ref := range doc.Objects {
		refs = append(refs, ref)
		if ref.Num >= nextID {
			nextID = ref.Num + 1
		}
	}
	sortRefs(refs)

	// The top-level object is already indirect; only its children count.
	for _, ref := range refs {
		switch t := doc.Objects[ref].(type) {
		case *raw.ArrayObj:
			for _, v := range t.Items {
				countVisitor(v)
			}
		case *raw.DictObj:
			for _, k := range t.Keys() {
				countVisitor(t.KV[k])
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	candidates := make(map[digest]raw.ObjectRef)
	// walk samples in first-seen order so numbering is stable
	for _, ref := range refs {
		raw.Walk(doc.Objects[ref], func(obj raw.Object) {
			switch obj.(type) {
			case *raw.ArrayObj, *raw.DictObj:
			default:
				return
			}
			h := hashObject(obj)
			if counts[h] < 2 {
				return
			}
			if _, done := candidates[h]; done {
				return
			}
			nref := raw.ObjectRef{Num: nextID}
			nextID++
			doc.Objects[nref] = raw.DeepCopy(samples[h])
			candidates[h] = nref
			rep.Added = append(rep.Added, nref)
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, ref := range refs {
		o.replaceDirectInObject(doc.Objects[ref], candidates)
	}
	return nil
}

func (o *Optimizer) replaceDirectInObject(obj raw.Object, candidates map[digest]raw.ObjectRef) {
	hoist := func(val raw.Object) (raw.Object, bool) {
		switch val.(type) {
		case *raw.ArrayObj, *raw.DictObj:
			if ref, ok := candidates[hashObject(val)]; ok {
				return raw.Ref(ref.Num, ref.Gen), true
			}
		}
		return nil, false
	}
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if r, ok := hoist(val); ok {
				t.Items[i] = r
				continue
			}
			o.replaceDirectInObject(val, candidates)
		}
	case *raw.DictObj:
		for _, key := range t.Keys() {
			val := t.KV[key]
			if r, ok := hoist(val); ok {
				t.KV[key] = r
				continue
			}
			o.replaceDirectInObject(val, candidates)
		}
	}
}

func (o *Optimizer) applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range doc.Objects {
		o.replaceRefsInObject(obj, replacements)
	}
	if doc.Trailer != nil {
		o.replaceRefsInObject(doc.Trailer, replacements)
	}
}

func (o *Optimizer) replaceRefsInObject(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.Items[i] = raw.Ref(newRef.Num, newRef.Gen)
				}
			} else {
				o.replaceRefsInObject(val, replacements)
			}
		}
	case *raw.DictObj:
		for key, val := range t.KV {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.R]; found {
					t.KV[key] = raw.Ref(newRef.Num, newRef.Gen)
				}
			} else {
				o.replaceRefsInObject(val, replacements)
			}
		}
	case *raw.StreamObj:
		o.replaceRefsInObject(t.Dict, replacements)
	}
}
