package tpq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/bodgit/tpq/wire"
)

// WorkerCommand is the hidden subcommand that serves a ProcessExecutor.
const WorkerCommand = "worker"

// ProcessExecutor runs each job in a child process speaking the wire
// protocol on its standard input and output. Terminating a job kills the
// process, which releases everything the engine allocated.
type ProcessExecutor struct {
	// Path is the worker binary. Defaults to the running executable.
	Path string
	// Args are passed to the worker. Defaults to WorkerCommand.
	Args []string
	// Env, if set, replaces the worker's environment.
	Env []string
}

func (e ProcessExecutor) command(ctx context.Context) (*exec.Cmd, error) {
	path := e.Path
	if path == "" {
		var err error
		if path, err = os.Executable(); err != nil {
			return nil, err
		}
	}
	args := e.Args
	if args == nil {
		args = []string{WorkerCommand}
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = e.Env
	return cmd, nil
}

// Execute implements Executor.
func (e ProcessExecutor) Execute(ctx context.Context, job Job, emit Emit) error {
	cmd, err := e.command(ctx)
	if err != nil {
		return err
	}

	req := wire.Request{Seq: job.Seq, Settings: job.Settings, Image: job.Image}
	b, err := req.MarshalBinary()
	if err != nil {
		return err
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := wire.WriteFrame(stdin, wire.TagRequest, b); err != nil {
			errc <- err
		}
		stdin.Close()
	}()

	terminal, readErr := e.relay(stdout, job.Seq, emit)

	// Drain anything left so the child doesn't block before exiting
	io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()
	writeErr := <-errc

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if terminal {
		return nil
	}

	for _, err := range []error{readErr, writeErr, waitErr} {
		if err != nil {
			return fmt.Errorf("%w%s", err, stderrSuffix(stderr.String()))
		}
	}
	return fmt.Errorf("worker exited without a result%s", stderrSuffix(stderr.String()))
}

func stderrSuffix(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return ""
	}
	return ": " + s
}

// relay forwards frames from the worker until a terminal frame or the end
// of the stream.
func (e ProcessExecutor) relay(r io.Reader, seq uint64, emit Emit) (bool, error) {
	progress := -1
	for {
		tag, payload, err := wire.ReadFrame(r)
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}

		switch tag {
		case wire.TagProgress:
			if len(payload) != 1 {
				return false, wire.ErrMalformed
			}
			// Never let a misbehaving worker move progress backwards
			if p := int(payload[0]); p > progress {
				progress = p
				emit(Progress{Sequence: seq, Percent: p})
			}
		case wire.TagPartial:
			var res wire.Result
			if err := res.UnmarshalBinary(payload); err != nil {
				return false, err
			}
			emit(Partial{Sequence: seq, Result: res.Result})
		case wire.TagCompleted:
			var res wire.Result
			if err := res.UnmarshalBinary(payload); err != nil {
				return false, err
			}
			emit(Completed{Sequence: seq, Result: res.Result})
			return true, nil
		case wire.TagFailed:
			emit(Failed{Sequence: seq, Err: wire.UnmarshalError(payload)})
			return true, nil
		default:
			return false, fmt.Errorf("%w: unexpected %v frame", wire.ErrMalformed, tag)
		}
	}
}
