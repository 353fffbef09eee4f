package tpq

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/bodgit/tpq/quantize"
	"github.com/bodgit/tpq/source"
)

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
}

// IsImage reports whether file has an extension Batch will pick up.
func IsImage(file string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(file))]
	return ok
}

// QuantizeFunc runs one quantization of the image loaded from file.
// quantize.Quantize without an observer is the default; callers can
// substitute a cached or isolated version.
type QuantizeFunc func(ctx context.Context, file string, s quantize.Settings, m quantize.SourceImage) (*quantize.Result, error)

// HandleFunc receives each finished image.
type HandleFunc func(file string, m quantize.SourceImage, r *quantize.Result) error

// Batch quantizes every image below a directory with a pool of workers.
type Batch struct {
	Settings quantize.Settings
	Source   source.Options
	// Workers defaults to GOMAXPROCS.
	Workers  int
	Quantize QuantizeFunc
	Handle   HandleFunc
	// Ignore, if set, skips matching files such as earlier outputs.
	Ignore func(file string) bool
	Logger *slog.Logger
}

func (b *Batch) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b.Logger
}

func (b *Batch) quantize(ctx context.Context, file string, m quantize.SourceImage) (*quantize.Result, error) {
	if b.Quantize != nil {
		return b.Quantize(ctx, file, b.Settings, m)
	}
	return quantize.Quantize(b.Settings, m, quantize.Observer{})
}

func (b *Batch) findImages(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.WalkDir(base, func(file string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories
			if file != base && d.Name()[0] == '.' {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal image file
			if !d.Type().IsRegular() || !IsImage(file) {
				return nil
			}
			if b.Ignore != nil && b.Ignore(file) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (b *Batch) imageWorker(ctx context.Context, in <-chan string) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			m, err := source.Load(file, b.Source)
			if err != nil {
				b.logger().Warn("skipping image", "file", file, "error", err)
				continue
			}

			r, err := b.quantize(ctx, file, m)
			if err != nil {
				errc <- err
				return
			}
			if r.Fidelity.Lossy() {
				b.logger().Info("colors merged", "file", file, "merges", r.Fidelity.Merges)
			}

			if b.Handle != nil {
				if err := b.Handle(file, m, r); err != nil {
					errc <- err
					return
				}
			}
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Scan walks path and quantizes every image found. The first error stops
// the walk.
func (b *Batch) Scan(ctx context.Context, path string) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var errcList []<-chan error

	files, errc, err := b.findImages(ctx, dir)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	for i := 0; i < workers; i++ {
		errc, err := b.imageWorker(ctx, files)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}
