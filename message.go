package tpq

import "github.com/bodgit/tpq/quantize"

// Message is a notification from a run. Every message carries the sequence
// token of the run that produced it; see Session.Accept.
type Message interface {
	Seq() uint64
	message()
}

// Progress reports the percentage complete, 0 to 100. Successive values
// within a run never decrease.
type Progress struct {
	Sequence uint64
	Percent  int
}

// Partial carries the palettes and tile map before pixels are mapped. Its
// Result has nil Indices.
type Partial struct {
	Sequence uint64
	Result   *quantize.Result
}

// Completed carries the final result. It is the last message of a
// successful run.
type Completed struct {
	Sequence uint64
	Result   *quantize.Result
}

// Failed carries the reason a run failed. It is the last message of an
// unsuccessful run.
type Failed struct {
	Sequence uint64
	Err      error
}

func (m Progress) Seq() uint64  { return m.Sequence }
func (m Partial) Seq() uint64   { return m.Sequence }
func (m Completed) Seq() uint64 { return m.Sequence }
func (m Failed) Seq() uint64    { return m.Sequence }

func (Progress) message()  {}
func (Partial) message()   {}
func (Completed) message() {}
func (Failed) message()    {}
