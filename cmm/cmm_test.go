package cmm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wudi/pdfcodec/ir/raw"
)

func TestClassifierModel(t *testing.T) {
	iccN := func(n int64) *raw.StreamObj {
		d := raw.Dict()
		d.Set("N", raw.NumberInt(n))
		return raw.NewStream(d, nil)
	}
	altOnly := raw.Dict()
	altOnly.Set("Alternate", raw.Name("DeviceCMYK"))

	objects := map[raw.ObjectRef]raw.Object{
		{Num: 5}: iccN(4),
		{Num: 6}: raw.Name("DeviceRGB"),
	}
	c := Classifier{Resolve: func(o raw.Object) raw.Object {
		return objects[o.(raw.RefObj).R]
	}}

	cases := []struct {
		name string
		cs   raw.Object
		want Model
	}{
		{"device gray", raw.Name("DeviceGray"), ModelGray},
		{"inline abbreviation", raw.Name("CMYK"), ModelCMYK},
		{"resource name", raw.Name("CS0"), ModelUnknown},
		{"indirect name", raw.Ref(6, 0), ModelRGB},
		{"icc by N", raw.NewArray(raw.Name("ICCBased"), raw.Ref(5, 0)), ModelCMYK},
		{"icc alternate", raw.NewArray(raw.Name("ICCBased"), raw.NewStream(altOnly, nil)), ModelCMYK},
		{"indexed", raw.NewArray(raw.Name("Indexed"), raw.Name("DeviceRGB"), raw.NumberInt(255), raw.Str(nil)), ModelRGB},
		{"separation", raw.NewArray(raw.Name("Separation"), raw.Name("Spot"), raw.Name("DeviceCMYK"), raw.Dict()), ModelCMYK},
		{"devicen", raw.NewArray(raw.Name("DeviceN"), raw.NewArray(raw.Name("A")), raw.Name("DeviceGray"), raw.Dict()), ModelGray},
		{"pattern", raw.NewArray(raw.Name("Pattern"), raw.Name("DeviceRGB")), ModelRGB},
		{"calrgb", raw.NewArray(raw.Name("CalRGB"), raw.Dict()), ModelRGB},
		{"lab", raw.NewArray(raw.Name("Lab"), raw.Dict()), ModelUnknown},
		{"empty", raw.NewArray(), ModelUnknown},
		{"missing ref", raw.Ref(9, 0), ModelUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Model(tc.cs))
		})
	}
}

func TestClassifierReadsProfileHeader(t *testing.T) {
	st := raw.NewStream(raw.Dict(), iccHeader("GRAY"))
	c := Classifier{Profile: func(s *raw.StreamObj) ([]byte, error) { return s.Data, nil }}
	assert.Equal(t, ModelGray, c.Model(raw.NewArray(raw.Name("ICCBased"), st)))

	c.Profile = func(*raw.StreamObj) ([]byte, error) { return nil, errors.New("bad filter") }
	assert.Equal(t, ModelUnknown, c.Model(raw.NewArray(raw.Name("ICCBased"), st)))
}

func TestClassifierStopsOnCycles(t *testing.T) {
	arr := raw.NewArray(raw.Name("Indexed"), nil)
	arr.Items[1] = arr
	assert.Equal(t, ModelUnknown, Classifier{}.Model(arr))
}
