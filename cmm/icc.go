package cmm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const iccHeaderSize = 128

// ICCProfile reads the fixed header of an embedded ICC profile.
type ICCProfile struct {
	data []byte
}

// NewICCProfile checks the header size, the declared length and the 'acsp'
// file signature.
func NewICCProfile(data []byte) (*ICCProfile, error) {
	if len(data) < iccHeaderSize {
		return nil, errors.New("invalid ICC profile data")
	}
	if size := binary.BigEndian.Uint32(data[0:4]); size != 0 && int64(size) > int64(len(data)) {
		return nil, fmt.Errorf("ICC profile declares %d bytes, have %d", size, len(data))
	}
	if string(data[36:40]) != "acsp" {
		return nil, errors.New("ICC profile signature missing")
	}
	return &ICCProfile{data: data}, nil
}

// ColorSpace returns the data color space signature, e.g. "RGB " or "CMYK".
func (p *ICCProfile) ColorSpace() string { return string(p.data[16:20]) }

// Class returns the profile class, e.g. "mntr" or "prtr".
func (p *ICCProfile) Class() string { return string(p.data[12:16]) }

// Version is the major.minor profile version.
func (p *ICCProfile) Version() string {
	return fmt.Sprintf("%d.%d", p.data[8], p.data[9]>>4)
}

func (p *ICCProfile) Data() []byte { return p.data }

// Model maps the data color space onto a device family.
func (p *ICCProfile) Model() Model {
	switch p.ColorSpace() {
	case "GRAY":
		return ModelGray
	case "RGB ":
		return ModelRGB
	case "CMYK":
		return ModelCMYK
	}
	return ModelUnknown
}
