package tpq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bodgit/tpq/quantize"
	"github.com/bodgit/tpq/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workerEnv = "TPQ_TEST_WORKER"

// TestMain lets the test binary act as its own worker process.
func TestMain(m *testing.M) {
	switch os.Getenv(workerEnv) {
	case "":
	case "crash":
		fmt.Fprintln(os.Stderr, "out of memory")
		os.Exit(3)
	case "hang":
		wire.ReadFrame(os.Stdin)
		time.Sleep(time.Hour)
		os.Exit(0)
	default:
		if err := ServeWorker(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func testImage(w, h int) quantize.SourceImage {
	m := quantize.SourceImage{Width: w, Height: h, Pix: make([]byte, w*h*4)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			m.Pix[i+0] = uint8(x * 13)
			m.Pix[i+1] = uint8(y * 11)
			m.Pix[i+2] = uint8((x + y) * 7)
			m.Pix[i+3] = 0xff
		}
	}
	return m
}

func testSettings() quantize.Settings {
	s := quantize.DefaultSettings()
	s.TileSize = 4
	s.PaletteCount = 3
	s.ColorsPerPalette = 4
	return s
}

func collect(t *testing.T, r *Run) []Message {
	t.Helper()

	var msgs []Message
	timeout := time.After(30 * time.Second)
	for {
		select {
		case m, ok := <-r.Messages():
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		case <-timeout:
			t.Fatal("timed out waiting for run to finish")
		}
	}
}

// blockingExecutor hands each job to the test and then waits to be
// terminated.
type blockingExecutor struct {
	jobs chan Job
}

func (e blockingExecutor) Execute(ctx context.Context, job Job, emit Emit) error {
	emit(Progress{Sequence: job.Seq, Percent: 0})
	e.jobs <- job
	<-ctx.Done()
	emit(Progress{Sequence: job.Seq, Percent: 50})
	return context.Cause(ctx)
}

type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, Job, Emit) error {
	return errors.New("boom")
}

func TestRunMatchesQuantize(t *testing.T) {
	s, m := testSettings(), testImage(16, 12)

	want, err := quantize.Quantize(s, m, quantize.Observer{})
	require.NoError(t, err)

	var progress []int
	got, err := NewSession().Run(context.Background(), s, m, func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.True(t, want.Equal(got))
	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestRunMessages(t *testing.T) {
	session := NewSession()
	r, err := session.Start(context.Background(), testSettings(), testImage(16, 16))
	require.NoError(t, err)

	msgs := collect(t, r)
	require.NotEmpty(t, msgs)

	last := -1
	partial := false
	for i, msg := range msgs {
		assert.Equal(t, r.Seq(), msg.Seq())
		assert.True(t, session.Accept(msg))
		switch msg := msg.(type) {
		case Progress:
			assert.Greater(t, msg.Percent, last)
			last = msg.Percent
		case Partial:
			assert.False(t, partial)
			assert.Nil(t, msg.Result.Indices)
			partial = true
		case Completed:
			assert.True(t, partial, "partial must precede completion")
			assert.Equal(t, len(msgs)-1, i, "completed must be the last message")
			assert.NotNil(t, msg.Result.Indices)
		default:
			t.Fatalf("unexpected %T", msg)
		}
	}
	assert.Nil(t, r.Err())
}

func TestStartRejectsInvalid(t *testing.T) {
	session := NewSession(WithExecutor(failingExecutor{}))

	s := testSettings()
	s.ColorsPerPalette = 17
	_, err := session.Start(context.Background(), s, testImage(4, 4))
	assert.ErrorIs(t, err, quantize.ErrInvalidSettings)

	_, err = session.Start(context.Background(), testSettings(), quantize.SourceImage{Width: 4, Height: 4})
	assert.ErrorIs(t, err, quantize.ErrInvalidImage)

	assert.Zero(t, session.Seq())
}

func TestStartCopiesImage(t *testing.T) {
	e := blockingExecutor{jobs: make(chan Job, 1)}
	session := NewSession(WithExecutor(e))

	m := testImage(8, 8)
	r, err := session.Start(context.Background(), testSettings(), m)
	require.NoError(t, err)

	job := <-e.jobs
	m.Pix[0] = ^m.Pix[0]
	assert.NotEqual(t, m.Pix[0], job.Image.Pix[0])

	r.Terminate()
	collect(t, r)
}

func TestStartSupersedes(t *testing.T) {
	e := blockingExecutor{jobs: make(chan Job, 2)}
	session := NewSession(WithExecutor(e))

	first, err := session.Start(context.Background(), testSettings(), testImage(8, 8))
	require.NoError(t, err)
	<-e.jobs

	second, err := session.Start(context.Background(), testSettings(), testImage(8, 8))
	require.NoError(t, err)
	<-e.jobs

	assert.Greater(t, second.Seq(), first.Seq())
	assert.Equal(t, second.Seq(), session.Seq())

	msgs := collect(t, first)
	assert.ErrorIs(t, first.Err(), ErrSuperseded)
	for _, msg := range msgs {
		assert.False(t, session.Accept(msg))
		_, ok := msg.(Progress)
		assert.True(t, ok, "a superseded run only reports progress")
	}
	assert.True(t, session.Accept(Progress{Sequence: second.Seq()}))

	session.Terminate()
	collect(t, second)
	assert.ErrorIs(t, second.Err(), ErrTerminated)
}

func TestRunTerminated(t *testing.T) {
	e := blockingExecutor{jobs: make(chan Job, 1)}
	session := NewSession(WithExecutor(e))

	go func() {
		<-e.jobs
		session.Terminate()
	}()

	_, err := session.Run(context.Background(), testSettings(), testImage(8, 8), nil)
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestRunCancelled(t *testing.T) {
	e := blockingExecutor{jobs: make(chan Job, 1)}
	session := NewSession(WithExecutor(e))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-e.jobs
		cancel()
	}()

	_, err := session.Run(ctx, testSettings(), testImage(8, 8), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorFailure(t *testing.T) {
	session := NewSession(WithExecutor(failingExecutor{}))

	r, err := session.Start(context.Background(), testSettings(), testImage(8, 8))
	require.NoError(t, err)

	msgs := collect(t, r)
	require.Len(t, msgs, 1)
	failed, ok := msgs[0].(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrEngineCrash)
	assert.Contains(t, failed.Err.Error(), "boom")
}

func workerExecutor(mode string) ProcessExecutor {
	return ProcessExecutor{
		Path: os.Args[0],
		Args: []string{WorkerCommand},
		Env:  append(os.Environ(), workerEnv+"="+mode),
	}
}

func TestProcessExecutor(t *testing.T) {
	s, m := testSettings(), testImage(20, 12)

	want, err := quantize.Quantize(s, m, quantize.Observer{})
	require.NoError(t, err)

	session := NewSession(WithExecutor(workerExecutor("serve")))
	r, err := session.Start(context.Background(), s, m)
	require.NoError(t, err)

	msgs := collect(t, r)
	require.NotEmpty(t, msgs)

	completed, ok := msgs[len(msgs)-1].(Completed)
	require.True(t, ok, "got %T", msgs[len(msgs)-1])
	assert.True(t, want.Equal(completed.Result))

	last := -1
	for _, msg := range msgs {
		assert.Equal(t, r.Seq(), msg.Seq())
		if p, ok := msg.(Progress); ok {
			assert.Greater(t, p.Percent, last)
			last = p.Percent
		}
	}
}

func TestProcessExecutorCrash(t *testing.T) {
	session := NewSession(WithExecutor(workerExecutor("crash")))

	_, err := session.Run(context.Background(), testSettings(), testImage(8, 8), nil)
	require.ErrorIs(t, err, ErrEngineCrash)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestProcessExecutorTerminate(t *testing.T) {
	session := NewSession(WithExecutor(workerExecutor("hang")))

	r, err := session.Start(context.Background(), testSettings(), testImage(8, 8))
	require.NoError(t, err)

	time.AfterFunc(100*time.Millisecond, r.Terminate)

	// The worker never answers, so the channel only closes once it is killed
	msgs := collect(t, r)
	assert.Empty(t, msgs)
	assert.ErrorIs(t, r.Err(), ErrTerminated)
}

func TestServeWorker(t *testing.T) {
	s, m := testSettings(), testImage(12, 12)

	req := wire.Request{Seq: 7, Settings: s, Image: m}
	b, err := req.MarshalBinary()
	require.NoError(t, err)

	in := new(bytes.Buffer)
	require.NoError(t, wire.WriteFrame(in, wire.TagRequest, b))

	out := new(bytes.Buffer)
	require.NoError(t, ServeWorker(in, out))

	var tags []wire.Tag
	var payload []byte
	for out.Len() > 0 {
		tag, p, err := wire.ReadFrame(out)
		require.NoError(t, err)
		tags = append(tags, tag)
		payload = p
	}

	require.NotEmpty(t, tags)
	assert.Equal(t, wire.TagProgress, tags[0])
	assert.Equal(t, wire.TagCompleted, tags[len(tags)-1])
	assert.Contains(t, tags, wire.TagPartial)

	var res wire.Result
	require.NoError(t, res.UnmarshalBinary(payload))
	want, err := quantize.Quantize(s, m, quantize.Observer{})
	require.NoError(t, err)
	assert.True(t, want.Equal(res.Result))
}

func TestServeWorkerFailure(t *testing.T) {
	s := testSettings()
	s.BitsPerChannel = 0

	req := wire.Request{Seq: 1, Settings: s, Image: testImage(4, 4)}
	b, err := req.MarshalBinary()
	require.NoError(t, err)

	in := new(bytes.Buffer)
	require.NoError(t, wire.WriteFrame(in, wire.TagRequest, b))

	out := new(bytes.Buffer)
	require.NoError(t, ServeWorker(in, out))

	tag, payload, err := wire.ReadFrame(out)
	require.NoError(t, err)
	assert.Equal(t, wire.TagFailed, tag)
	assert.ErrorIs(t, wire.UnmarshalError(payload), quantize.ErrInvalidSettings)
}

func TestServeWorkerRejectsFrame(t *testing.T) {
	in := new(bytes.Buffer)
	require.NoError(t, wire.WriteFrame(in, wire.TagProgress, []byte{1}))

	assert.ErrorIs(t, ServeWorker(in, new(bytes.Buffer)), wire.ErrMalformed)
}
