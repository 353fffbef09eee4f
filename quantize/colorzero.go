package quantize

// colorZeroPolicy captures how slot 0 behaves for one run.
type colorZeroPolicy struct {
	behavior ColorZero
	value    RGB // raw ColorZeroValue
	working  RGB // ColorZeroValue after channel quantization
}

func newColorZeroPolicy(s Settings) colorZeroPolicy {
	return colorZeroPolicy{
		behavior: s.ColorZero,
		value:    s.ColorZeroValue,
		working:  QuantizeColor(s.ColorZeroValue, s.BitsPerChannel),
	}
}

// isKey reports whether the source pixel at (x, y) is forced to global
// index 0.
func (p colorZeroPolicy) isKey(src SourceImage, x, y int) bool {
	switch p.behavior {
	case ColorZeroTransparentFromTransparent:
		return src.Alpha(x, y) == 0
	case ColorZeroTransparentFromColor:
		return src.RGB(x, y) == p.value
	}
	return false
}

// excludes reports whether a working color is served by slot 0 without
// costing the tile any budget.
func (p colorZeroPolicy) excludes(c RGB) bool {
	return p.behavior == ColorZeroShared && c == p.working
}

// slotZero returns the fixed slot 0 color, if the behaviour has one. It is
// always representable at the run's bit depth.
func (p colorZeroPolicy) slotZero() (RGB, bool) {
	switch p.behavior {
	case ColorZeroShared, ColorZeroTransparentFromColor:
		return p.working, true
	case ColorZeroTransparentFromTransparent:
		return RGB{}, true
	}
	return RGB{}, false
}

// firstSlot is the lowest slot an ordinary pixel may resolve to.
func (p colorZeroPolicy) firstSlot() int {
	if p.behavior.Transparent() {
		return 1
	}
	return 0
}

// layout orders a block's retained colors into palette slots. Colors must
// already be sorted by descending frequency, so under ColorZeroUnique the
// most frequent color lands in slot 0.
func (p colorZeroPolicy) layout(colors []RGB, size int) PaletteBlock {
	b := PaletteBlock{Colors: make([]RGB, size)}
	if c, ok := p.slotZero(); ok {
		b.Colors[0] = c
		b.Used = 1
	}
	for _, c := range colors {
		if b.Used >= size {
			break
		}
		b.Colors[b.Used] = c
		b.Used++
	}
	return b
}
