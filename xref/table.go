package xref

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/parser"
	"github.com/wudi/pdfcodec/recovery"
	"github.com/wudi/pdfcodec/scanner"
)

func newScanner(r io.ReaderAt, cfg parser.Config) scanner.Scanner {
	return scanner.New(r, cfg.ScannerConfig())
}

// readTable parses a classic table; the xref keyword is already consumed.
func (w *walk) readTable(ctx context.Context) (map[int]Entry, *raw.DictObj, error) {
	entries := make(map[int]Entry)
	for {
		tok, err := w.parser.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: xref table: %v", ErrNoXRef, err)
		}
		if tok.IsKeyword("trailer") {
			break
		}
		cnt, err := w.parser.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: xref table: %v", ErrNoXRef, err)
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt || cnt.Type != scanner.TokenNumber || !cnt.IsInt ||
			tok.Int < 0 || cnt.Int < 0 {
			return nil, nil, fmt.Errorf("%w: invalid subsection header at offset %d", ErrNoXRef, tok.Pos)
		}
		// an entry takes at least "0 0 n" plus a separator
		if cnt.Int > w.size/6+1 {
			return nil, nil, fmt.Errorf("%w: subsection of %d entries exceeds file size", ErrNoXRef, cnt.Int)
		}
		start := int(tok.Int)
		if err := w.readSubsection(ctx, entries, start, int(cnt.Int)); err != nil {
			return nil, nil, err
		}
	}
	obj, err := w.parser.ParseObject()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: trailer: %v", ErrNoXRef, err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, nil, fmt.Errorf("%w: trailer is a %s", ErrNoXRef, obj.Type())
	}
	return entries, trailer, nil
}

func (w *walk) readSubsection(ctx context.Context, entries map[int]Entry, start, count int) error {
	for i := 0; i < count; i++ {
		off, err := w.parser.Token()
		if err != nil {
			return fmt.Errorf("%w: xref entry: %v", ErrNoXRef, err)
		}
		if off.IsKeyword("trailer") {
			w.parser.Unread(off)
			return w.report(ctx, off.Pos, fmt.Errorf("subsection %d declares %d entries, found %d", start, count, i), recovery.IssueXRefEntry)
		}
		gen, err := w.parser.Token()
		if err != nil {
			return fmt.Errorf("%w: xref entry: %v", ErrNoXRef, err)
		}
		kind, err := w.parser.Token()
		if err != nil {
			return fmt.Errorf("%w: xref entry: %v", ErrNoXRef, err)
		}
		if !off.IsInt || !gen.IsInt || kind.Type != scanner.TokenKeyword || (kind.Str != "n" && kind.Str != "f") {
			return fmt.Errorf("%w: malformed xref entry at offset %d", ErrNoXRef, off.Pos)
		}

		// a common producer bug numbers the first subsection from 1 while
		// still listing the free head of object 0
		if i == 0 && start == 1 && kind.Str == "f" && gen.Int == 65535 && off.Int == 0 {
			if err := w.report(ctx, off.Pos, fmt.Errorf("subsection starts at 1 with the free list head"), recovery.IssueXRefEntry); err != nil {
				return err
			}
			start = 0
		}
		num := start + i
		if _, dup := entries[num]; dup {
			continue
		}
		if kind.Str == "f" {
			entries[num] = Entry{Type: EntryFree, Offset: off.Int, Gen: int(gen.Int)}
			continue
		}
		if num == 0 {
			continue
		}
		if off.Int <= 0 || off.Int+w.shift >= w.size {
			msg := fmt.Errorf("object %d has offset %d outside the file", num, off.Int)
			if err := w.report(ctx, off.Pos, msg, recovery.IssueXRefEntry); err != nil {
				return err
			}
			entries[num] = Entry{Type: EntryFree, Gen: int(gen.Int)}
			continue
		}
		entries[num] = Entry{Type: EntryInUse, Offset: off.Int, Gen: int(gen.Int)}
	}
	return nil
}

// AppendTable writes a classic section for entries followed by the trailer.
// Consecutive object numbers share a subsection.
func AppendTable(dst []byte, entries map[int]Entry, trailer *raw.DictObj) []byte {
	dst = append(dst, "xref\n"...)
	for _, run := range runs(entries) {
		dst = strconv.AppendInt(dst, int64(run[0]), 10)
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(run[1]), 10)
		dst = append(dst, '\n')
		for num := run[0]; num < run[0]+run[1]; num++ {
			dst = appendTableEntry(dst, entries[num])
		}
	}
	dst = append(dst, "trailer\n"...)
	dst = raw.AppendObject(dst, trailer)
	return append(dst, '\n')
}

// appendTableEntry writes the fixed 20-byte line.
func appendTableEntry(dst []byte, e Entry) []byte {
	kind := byte('n')
	if e.Type == EntryFree {
		kind = 'f'
	}
	dst = appendPadded(dst, e.Offset, 10)
	dst = append(dst, ' ')
	dst = appendPadded(dst, int64(e.Gen), 5)
	return append(dst, ' ', kind, ' ', '\n')
}

func appendPadded(dst []byte, v int64, width int) []byte {
	s := strconv.FormatInt(v, 10)
	for i := len(s); i < width; i++ {
		dst = append(dst, '0')
	}
	return append(dst, s...)
}

// runs returns [start, count] pairs covering the keys of entries.
func runs(entries map[int]Entry) [][2]int {
	nums := make([]int, 0, len(entries))
	for n := range entries {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var out [][2]int
	for _, n := range nums {
		if l := len(out); l > 0 && out[l-1][0]+out[l-1][1] == n {
			out[l-1][1]++
			continue
		}
		out = append(out, [2]int{n, 1})
	}
	return out
}
