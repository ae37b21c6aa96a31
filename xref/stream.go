package xref

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfcodec/filters"
	"github.com/wudi/pdfcodec/ir/raw"
	"github.com/wudi/pdfcodec/recovery"
)

// readStream parses the cross-reference stream object at off.
func (w *walk) readStream(ctx context.Context, off int64) (map[int]Entry, *raw.DictObj, error) {
	if off < 0 || off >= w.size {
		return nil, nil, fmt.Errorf("%w: xref stream offset %d outside file", ErrNoXRef, off)
	}
	if err := w.parser.Seek(off); err != nil {
		return nil, nil, err
	}
	ref, obj, err := w.parser.ParseIndirect()
	if err != nil {
		if errors.Is(err, recovery.ErrAborted) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: no xref table or stream at offset %d: %v", ErrNoXRef, off, err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, nil, fmt.Errorf("%w: object %s at offset %d is not a stream", ErrNoXRef, ref, off)
	}
	if t, _ := st.Dict.GetName("Type"); t != "XRef" {
		return nil, nil, fmt.Errorf("%w: stream %s at offset %d has /Type %q", ErrNoXRef, ref, off, t)
	}

	names, params := filters.ExtractFilters(st.Dict)
	data, err := w.filters.Decode(ctx, st.Data, names, params)
	if err != nil {
		if errors.Is(err, recovery.ErrAborted) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: xref stream %s: %v", ErrUnsupported, ref, err)
	}
	widths, err := streamWidths(st.Dict)
	if err != nil {
		return nil, nil, fmt.Errorf("xref stream %s: %w", ref, err)
	}
	index, err := streamIndex(st.Dict)
	if err != nil {
		return nil, nil, fmt.Errorf("xref stream %s: %w", ref, err)
	}

	rowLen := widths[0] + widths[1] + widths[2]
	entries := make(map[int]Entry)
	pos := 0
	for _, sub := range index {
		for i := 0; i < sub[1]; i++ {
			if pos+rowLen > len(data) {
				msg := fmt.Errorf("xref stream %s ends after %d rows", ref, pos/rowLen)
				if err := w.report(ctx, off, msg, recovery.IssueTruncated); err != nil {
					return nil, nil, err
				}
				return entries, st.Dict, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if widths[0] > 0 {
				typ = field(row[:widths[0]])
			}
			f2 := field(row[widths[0] : widths[0]+widths[1]])
			f3 := field(row[widths[0]+widths[1]:])
			num := sub[0] + i
			if _, dup := entries[num]; dup {
				continue
			}
			switch typ {
			case 0:
				entries[num] = Entry{Type: EntryFree, Offset: f2, Gen: int(f3)}
			case 1:
				if num != 0 {
					entries[num] = Entry{Type: EntryInUse, Offset: f2, Gen: int(f3)}
				}
			case 2:
				entries[num] = Entry{Type: EntryCompressed, StreamNum: int(f2), Index: int(f3)}
			}
			// other types are reserved and refer to the null object
		}
	}
	return entries, st.Dict, nil
}

func streamWidths(d *raw.DictObj) ([3]int, error) {
	var out [3]int
	arr, ok := d.GetArray("W")
	if !ok || arr.Len() < 3 {
		return out, fmt.Errorf("%w: missing or short /W", ErrUnsupported)
	}
	sum := 0
	for i := 0; i < 3; i++ {
		n, ok := arr.Items[i].(raw.NumberObj)
		if !ok || !n.IsInteger() || n.I < 0 || n.I > 8 {
			return out, fmt.Errorf("%w: /W field %d", ErrUnsupported, i)
		}
		out[i] = int(n.I)
		sum += out[i]
	}
	if sum == 0 {
		return out, fmt.Errorf("%w: /W is all zero", ErrUnsupported)
	}
	return out, nil
}

func streamIndex(d *raw.DictObj) ([][2]int, error) {
	arr, ok := d.GetArray("Index")
	if !ok {
		size, ok := d.GetInt("Size")
		if !ok {
			return nil, fmt.Errorf("%w: xref stream without /Size", ErrNoXRef)
		}
		return [][2]int{{0, int(size)}}, nil
	}
	if arr.Len()%2 != 0 {
		return nil, fmt.Errorf("%w: odd /Index length %d", ErrNoXRef, arr.Len())
	}
	out := make([][2]int, 0, arr.Len()/2)
	for i := 0; i < arr.Len(); i += 2 {
		a, ok1 := arr.Items[i].(raw.NumberObj)
		b, ok2 := arr.Items[i+1].(raw.NumberObj)
		if !ok1 || !ok2 || !a.IsInteger() || !b.IsInteger() || a.I < 0 || b.I < 0 {
			return nil, fmt.Errorf("%w: bad /Index pair at %d", ErrNoXRef, i)
		}
		out = append(out, [2]int{int(a.I), int(b.I)})
	}
	return out, nil
}

// field decodes a big-endian unsigned integer.
func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// EncodeStream packs entries into cross-reference stream rows. It returns
// the /W widths, the /Index array and the unfiltered row data.
func EncodeStream(entries map[int]Entry) ([3]int, *raw.ArrayObj, []byte) {
	var max2, max3 int64
	for _, e := range entries {
		f2, f3 := streamFields(e)
		if f2 > max2 {
			max2 = f2
		}
		if f3 > max3 {
			max3 = f3
		}
	}
	w := [3]int{1, byteWidth(max2), byteWidth(max3)}
	index := raw.NewArray()
	var data []byte
	for _, run := range runs(entries) {
		index.Append(raw.NumberInt(int64(run[0])))
		index.Append(raw.NumberInt(int64(run[1])))
		for num := run[0]; num < run[0]+run[1]; num++ {
			e := entries[num]
			f2, f3 := streamFields(e)
			data = append(data, byte(streamType(e)))
			data = appendField(data, f2, w[1])
			data = appendField(data, f3, w[2])
		}
	}
	return w, index, data
}

func streamType(e Entry) int {
	switch e.Type {
	case EntryInUse:
		return 1
	case EntryCompressed:
		return 2
	}
	return 0
}

func streamFields(e Entry) (int64, int64) {
	if e.Type == EntryCompressed {
		return int64(e.StreamNum), int64(e.Index)
	}
	return e.Offset, int64(e.Gen)
}

func byteWidth(v int64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func appendField(dst []byte, v int64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}
