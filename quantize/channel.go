package quantize

import "math"

// Step returns the distance between adjacent representable channel values
// at the given bit depth.
func Step(bits int) float64 {
	return 255 / float64(int(1)<<uint(bits)-1)
}

// QuantizeChannel snaps an 8-bit channel value to the nearest level
// representable with the given number of bits.
func QuantizeChannel(v float64, bits int) uint8 {
	step := Step(bits)
	q := math.Round(v/step) * step
	switch {
	case q < 0:
		return 0
	case q > 255:
		return 255
	}
	return uint8(math.Round(q))
}

// QuantizeColor applies QuantizeChannel to each channel.
func QuantizeColor(c RGB, bits int) RGB {
	return RGB{
		QuantizeChannel(float64(c.R), bits),
		QuantizeChannel(float64(c.G), bits),
		QuantizeChannel(float64(c.B), bits),
	}
}
