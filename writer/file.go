package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile writes through fn into a temporary file next to path and renames
// it into place once fn and the sync succeed. On failure path is untouched.
func WriteFile(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err = fn(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

// WriteGraphFile is WriteFile for a full rewrite of g.
func WriteGraphFile(ctx context.Context, w Writer, g *Graph, path string, cfg Config) error {
	return WriteFile(path, func(out io.Writer) error {
		return w.Write(ctx, g, out, cfg)
	})
}
