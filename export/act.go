package export

import (
	"io"

	"github.com/bodgit/tpq/quantize"
)

const actLen = 256 * 3

// encodeACT writes the block as the first entries of a 256 color table.
func encodeACT(w io.Writer, r *quantize.Result, opts Options) error {
	b := make([]byte, actLen)
	for i, c := range r.Blocks[opts.Block].Colors {
		b[i*3+0] = c.R
		b[i*3+1] = c.G
		b[i*3+2] = c.B
	}
	_, err := w.Write(b)
	return err
}
