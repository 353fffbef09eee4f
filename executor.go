package tpq

import (
	"context"
	"fmt"

	"github.com/bodgit/tpq/quantize"
)

// Job is a single quantization handed to an Executor. The image is owned by
// the job.
type Job struct {
	Seq      uint64
	Settings quantize.Settings
	Image    quantize.SourceImage
}

// Emit delivers a message for a job. It reports false once the job has
// been terminated, after which nothing more should be sent.
type Emit func(Message) bool

// Executor runs jobs somewhere. Execute must either emit exactly one
// Completed or Failed message and return nil, or return an error without
// a terminal message. When ctx is cancelled Execute should return promptly
// with the context's cause.
type Executor interface {
	Execute(ctx context.Context, job Job, emit Emit) error
}

// GoroutineExecutor runs jobs on a goroutine in the current process. The
// engine can't be interrupted, so a terminated job is abandoned and its
// remaining output dropped.
type GoroutineExecutor struct{}

type outcome struct {
	result *quantize.Result
	err    error
	crash  error
}

// Execute implements Executor.
func (GoroutineExecutor) Execute(ctx context.Context, job Job, emit Emit) error {
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{crash: fmt.Errorf("panic: %v", p)}
			}
		}()

		r, err := quantize.Quantize(job.Settings, job.Image, quantize.Observer{
			Progress: func(percent int) {
				emit(Progress{Sequence: job.Seq, Percent: percent})
			},
			Partial: func(r *quantize.Result) {
				emit(Partial{Sequence: job.Seq, Result: r})
			},
		})
		done <- outcome{result: r, err: err}
	}()

	select {
	case o := <-done:
		switch {
		case o.crash != nil:
			return o.crash
		case o.err != nil:
			emit(Failed{Sequence: job.Seq, Err: o.err})
		default:
			emit(Completed{Sequence: job.Seq, Result: o.result})
		}
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
