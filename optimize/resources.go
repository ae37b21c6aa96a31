package optimize

import (
	"context"
	"sort"

	"github.com/wudi/pdfcodec/ir/raw"
)

// cleanUnusedObjects drops every object the trailer cannot reach.
func (o *Optimizer) cleanUnusedObjects(ctx context.Context, doc *raw.Document, rep *Report) error {
	if doc.Trailer == nil {
		return nil
	}

	reachable := make(map[raw.ObjectRef]bool)
	o.markReachable(doc, doc.Trailer, reachable)

	var dropped []raw.ObjectRef
	for ref := range doc.Objects {
		if !reachable[ref] {
			dropped = append(dropped, ref)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sortRefs(dropped)
	for _, ref := range dropped {
		delete(doc.Objects, ref)
	}
	rep.Removed = append(rep.Removed, dropped...)
	return nil
}

func (o *Optimizer) markReachable(doc *raw.Document, obj raw.Object, reachable map[raw.ObjectRef]bool) {
	switch t := obj.(type) {
	case raw.RefObj:
		if reachable[t.R] {
			return
		}
		reachable[t.R] = true
		if target, ok := doc.Objects[t.R]; ok {
			o.markReachable(doc, target, reachable)
		}
	case *raw.ArrayObj:
		for _, v := range t.Items {
			o.markReachable(doc, v, reachable)
		}
	case *raw.DictObj:
		for _, v := range t.KV {
			o.markReachable(doc, v, reachable)
		}
	case *raw.StreamObj:
		o.markReachable(doc, t.Dict, reachable)
	}
}

func sortRefs(refs []raw.ObjectRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
}
