package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
)

type Config struct {
	CombineDuplicateDirectObjects   bool
	CombineIdenticalIndirectObjects bool
	CombineDuplicateStreams         bool
	CleanUnusedObjects              bool
}

// Report lists the object numbers an optimization pass removed or created.
// Callers that keep a free list use Removed to thread it.
type Report struct {
	Removed []raw.ObjectRef
	Added   []raw.ObjectRef
}

type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	return &Optimizer{config: config}
}

// Optimize rewrites doc.Objects and doc.Trailer in place.
func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document) (Report, error) {
	var rep Report
	if doc == nil || doc.Objects == nil {
		return rep, nil
	}
	if o.config.CleanUnusedObjects {
		if err := o.cleanUnusedObjects(ctx, doc, &rep); err != nil {
			return rep, fmt.Errorf("failed to clean unused objects: %w", err)
		}
	}

	if o.config.CombineIdenticalIndirectObjects {
		if err := o.combineObjects(ctx, doc, true, true, &rep); err != nil {
			return rep, fmt.Errorf("failed to combine identical indirect objects: %w", err)
		}
	} else if o.config.CombineDuplicateStreams {
		if err := o.combineObjects(ctx, doc, true, false, &rep); err != nil {
			return rep, fmt.Errorf("failed to combine duplicate streams: %w", err)
		}
	}

	if o.config.CombineDuplicateDirectObjects {
		if err := o.combineDuplicateDirectObjects(ctx, doc, &rep); err != nil {
			return rep, fmt.Errorf("failed to combine duplicate direct objects: %w", err)
		}
	}
	return rep, nil
}

// Deduplicate merges byte-identical indirect objects and streams and returns
// the numbers it removed.
func Deduplicate(ctx context.Context, doc *raw.Document) ([]raw.ObjectRef, error) {
	rep, err := New(Config{CombineIdenticalIndirectObjects: true}).Optimize(ctx, doc)
	return rep.Removed, err
}
