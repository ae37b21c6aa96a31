package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// OpenFile maps path read-only and opens it. The mapping is released by
// Close, or before returning when opening fails.
func OpenFile(ctx context.Context, path string, opts Options) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidPDF, path)
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	release := func() error {
		return errors.Join(m.Unmap(), f.Close())
	}

	d, err := Open(ctx, bytes.NewReader(m), int64(len(m)), opts)
	if err != nil {
		if rerr := release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}
	d.release = release
	return d, nil
}
