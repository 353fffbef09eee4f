/*
Package tpq runs tile-constrained palette quantization on behalf of an
interactive caller.

A Session runs at most one quantization at a time. Starting a new run
terminates the previous one and every message is tagged with the sequence
token of the run that produced it, so late messages from a superseded run
can be recognised and discarded with Session.Accept.
*/
package tpq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/bodgit/tpq/quantize"
	"github.com/google/uuid"
)

var (
	// ErrEngineCrash is reported when the executor fails rather than the
	// engine returning an error.
	ErrEngineCrash = errors.New("tpq: engine crashed")
	// ErrSuperseded is the cause of a run terminated by a newer one.
	ErrSuperseded = errors.New("tpq: run superseded")
	// ErrTerminated is the cause of a run terminated by its caller.
	ErrTerminated = errors.New("tpq: run terminated")
)

const messageBuffer = 16

// Session is the caller-facing quantization contract.
type Session struct {
	mu       sync.Mutex
	seq      uint64
	current  *Run
	executor Executor
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithExecutor sets where runs execute. The default is GoroutineExecutor.
func WithExecutor(e Executor) Option {
	return func(s *Session) {
		s.executor = e
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession returns a new Session.
//
// With the default GoroutineExecutor a terminated or superseded run keeps
// computing until the engine finishes, holding its buffers until then; only
// its messages are dropped. Use WithExecutor(ProcessExecutor{}) when
// terminating a run must release its memory straight away.
func NewSession(options ...Option) *Session {
	s := &Session{
		executor: GoroutineExecutor{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Run is a single quantization started by a Session.
type Run struct {
	seq    uint64
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu     sync.RWMutex
	closed bool
	msgs   chan Message
}

// Seq returns the run's sequence token.
func (r *Run) Seq() uint64 {
	return r.seq
}

// ID returns a unique identifier for log correlation.
func (r *Run) ID() uuid.UUID {
	return r.id
}

// Messages returns the run's messages in order. The channel is closed after
// the terminal message, or without one if the run is terminated.
func (r *Run) Messages() <-chan Message {
	return r.msgs
}

// Terminate stops the run. It is safe to call more than once.
func (r *Run) Terminate() {
	r.cancel(ErrTerminated)
}

// Err returns why the run was terminated, or nil.
func (r *Run) Err() error {
	if r.ctx.Err() == nil {
		return nil
	}
	return context.Cause(r.ctx)
}

// emit sends m unless the run has been terminated. Abandoned engine
// goroutines may still call it after the channel is closed.
func (r *Run) emit(m Message) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed || r.ctx.Err() != nil {
		return false
	}
	select {
	case r.msgs <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Run) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	close(r.msgs)
}

func (r *Run) execute(e Executor, job Job, logger *slog.Logger) {
	defer r.close()

	logger = logger.With("run", r.id, "seq", r.seq)
	logger.Debug("run started", "width", job.Image.Width, "height", job.Image.Height)

	err := e.Execute(r.ctx, job, func(m Message) bool {
		switch m := m.(type) {
		case Completed:
			if m.Result.Fidelity.Lossy() {
				logger.Warn("colors merged to fit palettes", "merges", m.Result.Fidelity.Merges, "tiles", len(m.Result.Fidelity.Tiles), "error", m.Result.Fidelity.Error)
			}
			logger.Debug("run completed", "colors", m.Result.DistinctColors(), "palettes", len(m.Result.Blocks))
		case Failed:
			logger.Debug("run failed", "error", m.Err)
		}
		return r.emit(m)
	})

	switch {
	case err == nil:
	case r.ctx.Err() != nil:
		logger.Debug("run terminated", "cause", context.Cause(r.ctx))
	default:
		logger.Error("executor failed", "error", err)
		r.emit(Failed{Sequence: r.seq, Err: fmt.Errorf("%w: %v", ErrEngineCrash, err)})
	}
}

// Start validates the settings and image, terminates any run in flight and
// starts a new one. The image is copied so the caller may reuse it.
func (s *Session) Start(ctx context.Context, settings quantize.Settings, m quantize.SourceImage) (*Run, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	job := Job{Settings: settings, Image: m.Clone()}

	s.mu.Lock()
	if s.current != nil {
		s.current.cancel(ErrSuperseded)
	}
	s.seq++
	job.Seq = s.seq

	runCtx, cancel := context.WithCancelCause(ctx)
	r := &Run{
		seq:    s.seq,
		id:     uuid.New(),
		ctx:    runCtx,
		cancel: cancel,
		msgs:   make(chan Message, messageBuffer),
	}
	s.current = r
	s.mu.Unlock()

	go r.execute(s.executor, job, s.logger)

	return r, nil
}

// Seq returns the sequence token of the most recent run.
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Accept reports whether m belongs to the most recent run. Anything else is
// stale and must not be applied.
func (s *Session) Accept(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && m.Seq() == s.seq
}

// Terminate stops the current run, if any.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Terminate()
	}
}

// Run quantizes m synchronously, calling progress (which may be nil) as the
// run advances.
func (s *Session) Run(ctx context.Context, settings quantize.Settings, m quantize.SourceImage, progress func(int)) (*quantize.Result, error) {
	r, err := s.Start(ctx, settings, m)
	if err != nil {
		return nil, err
	}

	for msg := range r.Messages() {
		if !s.Accept(msg) {
			continue
		}
		switch msg := msg.(type) {
		case Progress:
			if progress != nil {
				progress(msg.Percent)
			}
		case Completed:
			return msg.Result, nil
		case Failed:
			return nil, msg.Err
		}
	}

	if err := r.Err(); err != nil {
		return nil, err
	}
	return nil, ErrEngineCrash
}
