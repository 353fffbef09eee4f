package main

import (
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/tpq"
	"github.com/bodgit/tpq/config"
	"github.com/bodgit/tpq/export"
	"github.com/bodgit/tpq/source"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	defaultConfig = "tpq.toml"
	defaultMaxAge = 30 * 24 * time.Hour
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "output `FORMAT`, one of " + strings.Join(formatNames(), ", "),
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write outputs to `DIRECTORY`",
		},
		&cli.BoolFlag{
			Name:  "preview",
			Usage: "also write a PNG preview",
		},
		&cli.StringFlag{
			Name:  "resize",
			Usage: "resize the source to `WxH` first",
		},
		&cli.IntFlag{
			Name:  "prereduce",
			Usage: "reduce the source to `N` colors first",
		},
		&cli.StringFlag{
			Name:  "method",
			Value: source.MedianCut.String(),
			Usage: "pre-reduction `METHOD`, mediancut or colorquant",
		},
	}
}

func formatNames() []string {
	var names []string
	for _, f := range export.Formats() {
		names = append(names, f.String())
	}
	return names
}

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	app := cli.NewApp()

	app.Name = "tpq"
	app.Usage = "Tile-constrained palette quantizer"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			EnvVars: []string{"TPQ_CONFIG"},
			Value:   filepath.Join(cwd, defaultConfig),
			Usage:   "path to configuration file",
		},
		&cli.StringFlag{
			Name:    "cache",
			EnvVars: []string{"TPQ_CACHE"},
			Usage:   "path to result cache database",
		},
		&cli.StringFlag{
			Name:    "preset",
			Aliases: []string{"p"},
			EnvVars: []string{"TPQ_PRESET"},
			Usage:   "settings `PRESET` to start from",
		},
		&cli.BoolFlag{
			Name:    "isolate",
			EnvVars: []string{"TPQ_ISOLATE"},
			Usage:   "run the engine in a separate process",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
		&cli.IntFlag{
			Name:  "tile-size",
			Usage: "tile edge in pixels",
		},
		&cli.IntFlag{
			Name:  "palettes",
			Usage: "number of palettes",
		},
		&cli.IntFlag{
			Name:  "colors",
			Usage: "colors per palette",
		},
		&cli.IntFlag{
			Name:  "bits",
			Usage: "bits per color channel",
		},
		&cli.Float64Flag{
			Name:  "fraction",
			Usage: "fraction of pixels sampled per tile",
		},
		&cli.StringFlag{
			Name:  "dither",
			Usage: "dither `MODE`, off, fast or slow",
		},
		&cli.Float64Flag{
			Name:  "dither-weight",
			Usage: "dither strength between 0 and 1",
		},
		&cli.StringFlag{
			Name:  "dither-pattern",
			Usage: "ordered dither `PATTERN`",
		},
		&cli.StringFlag{
			Name:  "color-zero",
			Usage: "color zero `BEHAVIOUR`, unique, shared, transparent-from-transparent or transparent-from-color",
		},
		&cli.StringFlag{
			Name:  "color-zero-value",
			Usage: "color zero as `#RRGGBB`",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:        "run",
			Usage:       "Quantize a single image",
			Description: "",
			ArgsUsage:   "IMAGE",
			Flags:       outputFlags(),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				e, err := newEnv(c)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer e.Close()

				if err := e.runFile(c.Context, c.Args().First()); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "batch",
			Usage:       "Quantize every image in a directory",
			Description: "",
			ArgsUsage:   "DIRECTORY",
			Flags: append(outputFlags(), &cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "number of images to process at once",
			}),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				e, err := newEnv(c)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer e.Close()

				if err := e.batch(c.Int("workers")).Scan(c.Context, c.Args().First()); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "watch",
			Usage:       "Re-quantize images in a directory as they change",
			Description: "",
			ArgsUsage:   "DIRECTORY",
			Flags: append(outputFlags(), &cli.DurationFlag{
				Name:  "delay",
				Value: 500 * time.Millisecond,
				Usage: "wait for changes to settle for `DURATION`",
			}),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				e, err := newEnv(c)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer e.Close()

				if err := e.watch(c.Context, c.Args().First(), c.Duration("delay")); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "unpack",
			Usage:       "Convert a tiles file back to PNG",
			Description: "",
			ArgsUsage:   "FILE [OUTPUT]",
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				in := c.Args().First()
				out := c.Args().Get(1)
				if out == "" {
					out = strings.TrimSuffix(in, filepath.Ext(in)) + ".png"
				}

				if err := unpack(in, out); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:        "presets",
			Usage:       "List the available presets",
			Description: "",
			Action: func(c *cli.Context) error {
				cfg, err := config.Load(c.String("config"))
				if err != nil {
					return cli.Exit(err, 1)
				}

				for _, name := range cfg.PresetNames() {
					s, err := cfg.Resolve(name)
					if err != nil {
						return cli.Exit(err, 1)
					}
					fmt.Fprintf(c.App.Writer, "%-12s %dx%d tiles, %d palettes of %d colors, %d bits\n", name, s.TileSize, s.TileSize, s.PaletteCount, s.ColorsPerPalette, s.BitsPerChannel)
				}

				return nil
			},
		},
		{
			Name:  "cache",
			Usage: "Manage the result cache",
			Subcommands: []*cli.Command{
				{
					Name:  "list",
					Usage: "List cached results",
					Action: func(c *cli.Context) error {
						cache, err := openCache(c.String("cache"))
						if err != nil {
							return cli.Exit(err, 1)
						}
						defer cache.Close()

						entries, err := cache.Entries()
						if err != nil {
							return cli.Exit(err, 1)
						}

						for _, e := range entries {
							fmt.Fprintf(c.App.Writer, "%s %s %dx%d %s\n", e.Key, e.Created.Format(time.RFC3339), e.Width, e.Height, e.Name)
						}

						return nil
					},
				},
				{
					Name:  "prune",
					Usage: "Remove old cached results",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "older-than",
							Usage: "remove results older than `AGE`, e.g. 12h or 30d",
						},
					},
					Action: func(c *cli.Context) error {
						cache, err := openCache(c.String("cache"))
						if err != nil {
							return cli.Exit(err, 1)
						}
						defer cache.Close()

						age := config.GetDuration("TPQ_CACHE_MAX_AGE", defaultMaxAge)
						if s := c.String("older-than"); s != "" {
							if age, err = config.ParseDuration(s); err != nil {
								return cli.Exit(err, 1)
							}
						}

						n, err := cache.Prune(time.Now().Add(-age))
						if err != nil {
							return cli.Exit(err, 1)
						}
						fmt.Fprintf(c.App.Writer, "removed %d results\n", n)

						return nil
					},
				},
			},
		},
		{
			Name:   tpq.WorkerCommand,
			Usage:  "Serve a single request on stdin",
			Hidden: true,
			Action: func(c *cli.Context) error {
				if err := tpq.ServeWorker(os.Stdin, os.Stdout); err != nil {
					return cli.Exit(err, 1)
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func unpack(in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := export.DecodeTiles(f)
	if err != nil {
		return err
	}

	w, err := os.Create(out)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := png.Encode(w, m); err != nil {
		return err
	}
	return w.Close()
}
