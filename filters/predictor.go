package filters

import (
	"fmt"

	"github.com/wudi/pdfcodec/ir/raw"
)

type predictorParams struct {
	predictor int
	colors    int
	bpc       int
	columns   int
}

func readPredictorParams(d *raw.DictObj) predictorParams {
	return predictorParams{
		predictor: intParam(d, "Predictor", 1),
		colors:    intParam(d, "Colors", 1),
		bpc:       intParam(d, "BitsPerComponent", 8),
		columns:   intParam(d, "Columns", 1),
	}
}

func (p predictorParams) validate() error {
	if p.colors < 1 || p.colors > 32 {
		return fmt.Errorf("predictor: invalid Colors %d", p.colors)
	}
	switch p.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("predictor: invalid BitsPerComponent %d", p.bpc)
	}
	if p.columns < 1 || p.columns > 1<<20 {
		return fmt.Errorf("predictor: invalid Columns %d", p.columns)
	}
	return nil
}

func (p predictorParams) rowSize() int { return (p.colors*p.bpc*p.columns + 7) / 8 }

func (p predictorParams) bytesPerPixel() int {
	bpp := (p.colors*p.bpc + 7) / 8
	if bpp < 1 {
		return 1
	}
	return bpp
}

// applyPredictor undoes a TIFF or PNG predictor.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	p := readPredictorParams(params)
	if p.predictor <= 1 {
		return data, nil
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	switch {
	case p.predictor == 2:
		return tiffDecode(data, p)
	case p.predictor >= 10 && p.predictor <= 15:
		return pngDecode(data, p)
	}
	return nil, fmt.Errorf("predictor: unsupported value %d", p.predictor)
}

func pngDecode(data []byte, p predictorParams) ([]byte, error) {
	rowSize := p.rowSize()
	bpp := p.bytesPerPixel()
	out := make([]byte, 0, len(data))
	prev := make([]byte, rowSize)
	row := make([]byte, rowSize)
	for len(data) > 0 {
		ft := data[0]
		data = data[1:]
		n := copy(row, data)
		data = data[n:]
		// a short final row is decoded as far as it goes
		cur := row[:n]
		switch ft {
		case 0:
		case 1:
			for i := bpp; i < n; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2:
			for i := 0; i < n; i++ {
				cur[i] += prev[i]
			}
		case 3:
			for i := 0; i < n; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < n; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("predictor: invalid PNG filter type %d", ft)
		}
		out = append(out, cur...)
		copy(prev, cur)
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func tiffDecode(data []byte, p predictorParams) ([]byte, error) {
	rowSize := p.rowSize()
	out := append([]byte(nil), data...)
	for start := 0; start < len(out); start += rowSize {
		end := start + rowSize
		if end > len(out) {
			end = len(out)
		}
		row := out[start:end]
		switch p.bpc {
		case 8:
			for i := p.colors; i < len(row); i++ {
				row[i] += row[i-p.colors]
			}
		case 16:
			step := 2 * p.colors
			for i := step; i+1 < len(row); i += 2 {
				v := uint16(row[i])<<8 | uint16(row[i+1])
				l := uint16(row[i-step])<<8 | uint16(row[i-step+1])
				v += l
				row[i], row[i+1] = byte(v>>8), byte(v)
			}
		default:
			return nil, fmt.Errorf("predictor: TIFF predictor with %d bits per component not supported", p.bpc)
		}
	}
	return out, nil
}

// encodePredictor applies PNG predictors for encoding. Every row uses the Up
// filter, which suits the column-aligned records of cross-reference streams.
func encodePredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	p := readPredictorParams(params)
	if p.predictor <= 1 {
		return data, nil
	}
	if p.predictor < 10 {
		return nil, fmt.Errorf("predictor: encoding predictor %d not supported", p.predictor)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	rowSize := p.rowSize()
	if len(data)%rowSize != 0 {
		return nil, fmt.Errorf("predictor: %d bytes is not a whole number of %d-byte rows", len(data), rowSize)
	}
	out := make([]byte, 0, len(data)+len(data)/rowSize)
	prev := make([]byte, rowSize)
	for start := 0; start < len(data); start += rowSize {
		row := data[start : start+rowSize]
		out = append(out, 2)
		for i, c := range row {
			out = append(out, c-prev[i])
		}
		prev = row
	}
	return out, nil
}
