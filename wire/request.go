package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bodgit/tpq/quantize"
)

type settingsHeader struct {
	TileSize         uint32
	PaletteCount     uint8
	ColorsPerPalette uint8
	BitsPerChannel   uint8
	DitherMode       uint8
	DitherPattern    uint8
	ColorZero        uint8
	ColorZeroValue   [3]uint8
	FractionOfPixels float64
	DitherWeight     float64
}

type requestHeader struct {
	Seq      uint64
	Settings settingsHeader
	Width    uint32
	Height   uint32
}

// Request asks a worker to run one quantization. It implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces.
type Request struct {
	Seq      uint64
	Settings quantize.Settings
	Image    quantize.SourceImage
}

// MarshalBinary encodes the request into binary form and returns the result
func (req *Request) MarshalBinary() ([]byte, error) {
	s := req.Settings
	for _, v := range []int{s.TileSize, req.Image.Width, req.Image.Height} {
		if v < 0 || int64(v) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d does not fit in 32 bits", ErrMalformed, v)
		}
	}
	h := requestHeader{
		Seq: req.Seq,
		Settings: settingsHeader{
			TileSize:         uint32(s.TileSize),
			PaletteCount:     uint8(s.PaletteCount),
			ColorsPerPalette: uint8(s.ColorsPerPalette),
			BitsPerChannel:   uint8(s.BitsPerChannel),
			DitherMode:       uint8(s.DitherMode),
			DitherPattern:    uint8(s.DitherPattern),
			ColorZero:        uint8(s.ColorZero),
			ColorZeroValue:   [3]uint8{s.ColorZeroValue.R, s.ColorZeroValue.G, s.ColorZeroValue.B},
			FractionOfPixels: s.FractionOfPixels,
			DitherWeight:     s.DitherWeight,
		},
		Width:  uint32(req.Image.Width),
		Height: uint32(req.Image.Height),
	}

	b := new(bytes.Buffer)
	b.Grow(binary.Size(h) + len(req.Image.Pix))
	if err := binary.Write(b, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if _, err := b.Write(req.Image.Pix); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// UnmarshalBinary decodes the request from binary form. Settings are not
// validated here; the engine does that.
func (req *Request) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)

	var h requestHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("%w: request header: %v", ErrMalformed, err)
	}

	pix := b[len(b)-r.Len():]
	if uint64(len(pix)) != uint64(h.Width)*uint64(h.Height)*4 {
		return fmt.Errorf("%w: %d pixel bytes for %dx%d", ErrMalformed, len(pix), h.Width, h.Height)
	}

	hs := h.Settings
	req.Seq = h.Seq
	req.Settings = quantize.Settings{
		TileSize:         int(hs.TileSize),
		PaletteCount:     int(hs.PaletteCount),
		ColorsPerPalette: int(hs.ColorsPerPalette),
		BitsPerChannel:   int(hs.BitsPerChannel),
		FractionOfPixels: hs.FractionOfPixels,
		DitherMode:       quantize.DitherMode(hs.DitherMode),
		DitherWeight:     hs.DitherWeight,
		DitherPattern:    quantize.DitherPattern(hs.DitherPattern),
		ColorZero:        quantize.ColorZero(hs.ColorZero),
		ColorZeroValue:   quantize.RGB{R: hs.ColorZeroValue[0], G: hs.ColorZeroValue[1], B: hs.ColorZeroValue[2]},
	}
	req.Image = quantize.SourceImage{
		Width:  int(h.Width),
		Height: int(h.Height),
		Pix:    append([]byte(nil), pix...),
	}
	return nil
}
