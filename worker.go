package tpq

import (
	"bufio"
	"fmt"
	"io"

	"github.com/bodgit/tpq/quantize"
	"github.com/bodgit/tpq/wire"
)

// ServeWorker reads one request from r, runs it and writes the resulting
// frames to w. It is the other end of a ProcessExecutor. The returned error
// only covers the transport; engine errors are sent as a failed frame.
func ServeWorker(r io.Reader, w io.Writer) error {
	tag, payload, err := wire.ReadFrame(r)
	if err != nil {
		return err
	}
	if tag != wire.TagRequest {
		return fmt.Errorf("%w: expected request, got %v", wire.ErrMalformed, tag)
	}

	var req wire.Request
	if err := req.UnmarshalBinary(payload); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var werr error
	send := func(tag wire.Tag, b []byte) {
		if werr != nil {
			return
		}
		if werr = wire.WriteFrame(bw, tag, b); werr == nil {
			werr = bw.Flush()
		}
	}
	sendResult := func(tag wire.Tag, res *quantize.Result) {
		b, err := wire.Result{Result: res}.MarshalBinary()
		if err != nil {
			werr = err
			return
		}
		send(tag, b)
	}

	res, err := quantize.Quantize(req.Settings, req.Image, quantize.Observer{
		Progress: func(percent int) {
			send(wire.TagProgress, []byte{uint8(percent)})
		},
		Partial: func(r *quantize.Result) {
			sendResult(wire.TagPartial, r)
		},
	})
	if err != nil {
		send(wire.TagFailed, wire.MarshalError(err))
	} else {
		sendResult(wire.TagCompleted, res)
	}

	return werr
}
