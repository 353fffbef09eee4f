package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bodgit/tpq"
	"github.com/bodgit/tpq/config"
	"github.com/bodgit/tpq/export"
	"github.com/bodgit/tpq/quantize"
	"github.com/bodgit/tpq/source"
	"github.com/bodgit/tpq/store"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// env is everything a command needs once flags and configuration have been
// resolved.
type env struct {
	settings quantize.Settings
	source   source.Options
	formats  []export.Format
	dir      string
	preview  bool

	executor tpq.Executor
	cache    *store.Cache
	logger   *slog.Logger
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    config.Get("NO_COLOR", "") != "",
	}))
}

func openCache(file string) (*store.Cache, error) {
	if file == "" {
		return nil, fmt.Errorf("no cache database, use --cache or TPQ_CACHE")
	}
	return store.Open(file)
}

// flagOverrides turns the global settings flags into a preset so they
// layer on top of the configuration file.
func flagOverrides(c *cli.Context) config.Preset {
	p := config.Preset{
		TileSize:         c.Int("tile-size"),
		Palettes:         c.Int("palettes"),
		ColorsPerPalette: c.Int("colors"),
		BitsPerChannel:   c.Int("bits"),
		FractionOfPixels: c.Float64("fraction"),
		DitherMode:       c.String("dither"),
		DitherPattern:    c.String("dither-pattern"),
		ColorZero:        c.String("color-zero"),
		ColorZeroValue:   c.String("color-zero-value"),
	}
	if c.IsSet("dither-weight") {
		w := c.Float64("dither-weight")
		p.DitherWeight = &w
	}
	return p
}

func newEnv(c *cli.Context) (*env, error) {
	logger := newLogger(c.Bool("verbose"))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	s, err := cfg.Resolve(c.String("preset"))
	if err != nil {
		return nil, err
	}
	if err := flagOverrides(c).Apply(&s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	e := &env{
		settings: s,
		dir:      cfg.Output.Directory,
		preview:  cfg.Output.Preview || c.Bool("preview"),
		executor: tpq.GoroutineExecutor{},
		logger:   logger,
	}

	names := cfg.Output.Formats
	if c.IsSet("format") {
		names = c.StringSlice("format")
	}
	for _, name := range names {
		f, err := export.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		e.formats = append(e.formats, f)
	}

	if d := c.String("output"); d != "" {
		e.dir = d
	}

	if size := c.String("resize"); size != "" {
		if e.source.Width, e.source.Height, err = source.ParseSize(size); err != nil {
			return nil, err
		}
	}
	e.source.Colors = c.Int("prereduce")
	if m := c.String("method"); m != "" {
		if e.source.Method, err = source.ParseMethod(m); err != nil {
			return nil, err
		}
	}

	if c.Bool("isolate") {
		e.executor = tpq.ProcessExecutor{}
	}

	if file := c.String("cache"); file != "" {
		if e.cache, err = store.Open(file); err != nil {
			return nil, err
		}
	}

	logger.Debug("settings resolved", "tile_size", s.TileSize, "palettes", s.PaletteCount, "colors", s.ColorsPerPalette, "bits", s.BitsPerChannel, "dither", s.DitherMode, "color_zero", s.ColorZero)

	return e, nil
}

func (e *env) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// quantize runs one image through the cache and a fresh session.
func (e *env) quantize(ctx context.Context, name string, m quantize.SourceImage) (*quantize.Result, error) {
	var key string
	if e.cache != nil {
		var err error
		if key, err = store.Key(e.settings, m); err != nil {
			return nil, err
		}
		r, err := e.cache.Find(key)
		if err != nil {
			return nil, err
		}
		if r != nil {
			e.logger.Debug("cache hit", "file", name, "key", key)
			return r, nil
		}
	}

	session := tpq.NewSession(tpq.WithExecutor(e.executor), tpq.WithLogger(e.logger.With("file", name)))
	r, err := session.Run(ctx, e.settings, m, func(p int) {
		e.logger.Debug("progress", "file", name, "percent", p)
	})
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, name, m, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (e *env) outputDir(file string) string {
	if e.dir != "" {
		return e.dir
	}
	return filepath.Dir(file)
}

// write exports r in every configured format next to file, or into the
// output directory.
func (e *env) write(file string, r *quantize.Result) error {
	dir := e.outputDir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeOutputs(dir, export.BaseName(file), e.settings, r, e.formats, e.preview)
}

func writeOutputs(dir, base string, s quantize.Settings, r *quantize.Result, formats []export.Format, preview bool) error {
	var g errgroup.Group

	save := func(name string, f export.Format, opts export.Options) {
		g.Go(func() error {
			b, err := export.Export(r, f, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return os.WriteFile(filepath.Join(dir, name), b, 0o644)
		})
	}

	for _, f := range formats {
		if !f.PerBlock() {
			save(export.Filename(base, s, f, 0), f, export.Options{Name: base})
			continue
		}
		for block := range r.Blocks {
			save(export.Filename(base, s, f, block), f, export.Options{Name: base, Block: block})
		}
	}

	if preview {
		g.Go(func() error {
			return writePNG(filepath.Join(dir, base+"-preview.png"), r.Image())
		})
	}

	return g.Wait()
}

func writePNG(file string, m image.Image) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	if err := png.Encode(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (e *env) runFile(ctx context.Context, file string) error {
	m, err := source.Load(file, e.source)
	if err != nil {
		return err
	}

	start := time.Now()
	r, err := e.quantize(ctx, file, m)
	if err != nil {
		return err
	}
	e.logger.Info("quantized", "file", file, "colors", r.DistinctColors(), "palettes", len(r.Blocks), "took", time.Since(start))

	return e.write(file, r)
}

func (e *env) batch(workers int) *tpq.Batch {
	return &tpq.Batch{
		Settings: e.settings,
		Source:   e.source,
		Workers:  workers,
		Quantize: func(ctx context.Context, file string, _ quantize.Settings, m quantize.SourceImage) (*quantize.Result, error) {
			return e.quantize(ctx, file, m)
		},
		Handle: func(file string, _ quantize.SourceImage, r *quantize.Result) error {
			e.logger.Info("quantized", "file", file, "colors", r.DistinctColors(), "palettes", len(r.Blocks))
			return e.write(file, r)
		},
		Ignore: isOutput,
		Logger: e.logger,
	}
}
