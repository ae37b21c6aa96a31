// Package cmm classifies PDF color spaces by the device color model they end
// up in.
package cmm

import (
	"github.com/wudi/pdfcodec/ir/raw"
)

// Model is a device color family.
type Model int

const (
	ModelUnknown Model = iota
	ModelGray
	ModelRGB
	ModelCMYK
)

func (m Model) String() string {
	switch m {
	case ModelGray:
		return "gray"
	case ModelRGB:
		return "rgb"
	case ModelCMYK:
		return "cmyk"
	}
	return "unknown"
}

// Resolver dereferences indirect objects; it returns nil when the target is missing.
type Resolver func(raw.Object) raw.Object

// ProfileReader returns the decoded bytes of an ICC profile stream.
type ProfileReader func(*raw.StreamObj) ([]byte, error)

// Classifier resolves color space objects to a Model.
type Classifier struct {
	Resolve Resolver
	// Profile is consulted for ICCBased spaces without a usable /N. May be nil.
	Profile ProfileReader
}

const maxDepth = 8

// Model classifies cs. Names may use the abbreviations allowed in inline images.
func (c Classifier) Model(cs raw.Object) Model {
	return c.model(cs, 0)
}

func (c Classifier) resolve(o raw.Object) raw.Object {
	if _, ok := o.(raw.RefObj); ok && c.Resolve != nil {
		return c.Resolve(o)
	}
	return o
}

func (c Classifier) model(cs raw.Object, depth int) Model {
	if depth > maxDepth {
		return ModelUnknown
	}
	switch v := c.resolve(cs).(type) {
	case raw.NameObj:
		return nameModel(v.Val)
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return ModelUnknown
		}
		family, ok := c.resolve(v.Items[0]).(raw.NameObj)
		if !ok {
			return ModelUnknown
		}
		switch family.Val {
		case "ICCBased":
			if v.Len() < 2 {
				return ModelUnknown
			}
			st, ok := c.resolve(v.Items[1]).(*raw.StreamObj)
			if !ok {
				return ModelUnknown
			}
			return c.iccModel(st, depth)
		case "Indexed", "I":
			if v.Len() < 2 {
				return ModelUnknown
			}
			return c.model(v.Items[1], depth+1)
		case "Pattern":
			// a colored pattern carries its own colors
			if v.Len() < 2 {
				return ModelUnknown
			}
			return c.model(v.Items[1], depth+1)
		case "Separation":
			if v.Len() < 3 {
				return ModelUnknown
			}
			return c.model(v.Items[2], depth+1)
		case "DeviceN":
			if v.Len() < 3 {
				return ModelUnknown
			}
			return c.model(v.Items[2], depth+1)
		case "CalRGB":
			return ModelRGB
		case "CalGray":
			return ModelGray
		}
		return nameModel(family.Val)
	}
	return ModelUnknown
}

// iccModel trusts /N first, then the profile header, then /Alternate.
func (c Classifier) iccModel(st *raw.StreamObj, depth int) Model {
	n, _ := st.Dict.GetInt("N")
	switch n {
	case 1:
		return ModelGray
	case 3:
		return ModelRGB
	case 4:
		return ModelCMYK
	}
	if c.Profile != nil {
		if data, err := c.Profile(st); err == nil {
			if p, err := NewICCProfile(data); err == nil && p.Model() != ModelUnknown {
				return p.Model()
			}
		}
	}
	if alt, ok := st.Dict.Get("Alternate"); ok {
		return c.model(alt, depth+1)
	}
	return ModelUnknown
}

func nameModel(name string) Model {
	switch name {
	case "DeviceGray", "G":
		return ModelGray
	case "DeviceRGB", "RGB":
		return ModelRGB
	case "DeviceCMYK", "CMYK":
		return ModelCMYK
	}
	return ModelUnknown
}
