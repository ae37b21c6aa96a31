package document

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcodec/observability"
	"github.com/wudi/pdfcodec/optimize"
)

// Optimize runs the space optimizations over the whole object table. Objects
// are rewritten in place, which an incremental update cannot describe, so it
// is refused outside Modify mode.
func (d *Document) Optimize(ctx context.Context, cfg optimize.Config) (optimize.Report, error) {
	if err := d.mutable(); err != nil {
		return optimize.Report{}, err
	}
	if d.opts.Mode != ModeModify {
		return optimize.Report{}, fmt.Errorf("%w: optimizing needs a full rewrite", ErrNotModifiable)
	}
	doc, err := d.Raw(ctx)
	if err != nil {
		return optimize.Report{}, err
	}
	rep, err := optimize.New(cfg).Optimize(ctx, doc)
	if err != nil {
		return rep, err
	}
	for _, ref := range rep.Removed {
		d.graph.Delete(ref)
		d.touched[ref.Num] = true
	}
	for _, ref := range rep.Added {
		d.graph.Set(ref, doc.Objects[ref])
		d.touched[ref.Num] = true
	}
	d.opts.Logger.Info("document optimized",
		observability.Int("removed", len(rep.Removed)),
		observability.Int("added", len(rep.Added)))
	return rep, nil
}
