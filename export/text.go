package export

import (
	"bufio"
	"fmt"
	"io"
	"regexp"

	"github.com/bodgit/tpq/quantize"
)

func encodeGPL(w io.Writer, r *quantize.Result, opts Options) error {
	colors := r.Blocks[opts.Block].Colors

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "GIMP Palette")
	fmt.Fprintf(bw, "Name: %s P%d\n", opts.name(), opts.Block)
	fmt.Fprintf(bw, "Columns: %d\n", len(colors))
	fmt.Fprintln(bw, "#")
	for _, c := range colors {
		fmt.Fprintf(bw, "%d %d %d\n", c.R, c.G, c.B)
	}
	return bw.Flush()
}

func encodeJASC(w io.Writer, r *quantize.Result, opts Options) error {
	colors := r.Blocks[opts.Block].Colors

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "JASC-PAL")
	fmt.Fprintln(bw, "0100")
	fmt.Fprintf(bw, "%d\n", len(colors))
	for _, c := range colors {
		fmt.Fprintf(bw, "%d %d %d\n", c.R, c.G, c.B)
	}
	return bw.Flush()
}

var notIdentifier = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Identifier turns an arbitrary name into a valid C identifier.
func Identifier(name string) string {
	id := notIdentifier.ReplaceAllString(name, "_")
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "_" + id
	}
	return id
}

// encodeFirmwareC writes the block as an SGDK palette array.
func encodeFirmwareC(w io.Writer, r *quantize.Result, opts Options) error {
	colors := r.Blocks[opts.Block].Colors

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#include <genesis.h>")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "const u16 %s_pal%d[%d] = {\n", Identifier(opts.name()), opts.Block, len(colors))
	for i, c := range colors {
		sep := ","
		if i == len(colors)-1 {
			sep = ""
		}
		fmt.Fprintf(bw, "  RGB24_TO_VDPCOLOR(0x%06X)%s\n", c.Uint32(), sep)
	}
	fmt.Fprintln(bw, "};")
	return bw.Flush()
}
