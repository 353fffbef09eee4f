package tpq

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/bodgit/tpq/quantize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, file string, w, h int) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))

	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.SetNRGBA(x, y, color.NRGBA{uint8(x * 20), uint8(y * 20), 0x80, 0xff})
		}
	}

	f, err := os.Create(file)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, m))
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("title.PNG"))
	assert.True(t, IsImage("a/b/c.jpeg"))
	assert.True(t, IsImage("sprite.bmp"))
	assert.False(t, IsImage("notes.txt"))
	assert.False(t, IsImage("png"))
}

func TestBatchScan(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "one.png"), 8, 8)
	writePNG(t, filepath.Join(dir, "sub", "two.png"), 12, 4)
	writePNG(t, filepath.Join(dir, ".hidden", "three.png"), 8, 8)
	writePNG(t, filepath.Join(dir, ".four.png"), 8, 8)
	writePNG(t, filepath.Join(dir, "one-preview.png"), 8, 8)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o644))

	var mu sync.Mutex
	var files []string

	b := &Batch{
		Settings: testSettings(),
		Workers:  2,
		Ignore: func(file string) bool {
			return strings.HasSuffix(file, "-preview.png")
		},
		Handle: func(file string, m quantize.SourceImage, r *quantize.Result) error {
			mu.Lock()
			defer mu.Unlock()
			rel, err := filepath.Rel(dir, file)
			if err != nil {
				return err
			}
			files = append(files, rel)
			assert.Equal(t, m.Width, r.Width)
			assert.Equal(t, m.Height, r.Height)
			return nil
		},
	}
	require.NoError(t, b.Scan(context.Background(), dir))

	sort.Strings(files)
	assert.Equal(t, []string{"one.png", filepath.Join("sub", "two.png")}, files)
}

func TestBatchScanCustomQuantize(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "one.png"), 8, 8)

	session := NewSession()
	var calls int
	b := &Batch{
		Settings: testSettings(),
		Workers:  1,
		Quantize: func(ctx context.Context, _ string, s quantize.Settings, m quantize.SourceImage) (*quantize.Result, error) {
			calls++
			return session.Run(ctx, s, m, nil)
		},
	}
	require.NoError(t, b.Scan(context.Background(), dir))
	assert.Equal(t, 1, calls)
}

func TestBatchScanError(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 4, 4)
	}

	errStop := errors.New("stop")
	b := &Batch{
		Settings: testSettings(),
		Handle: func(string, quantize.SourceImage, *quantize.Result) error {
			return errStop
		},
	}
	assert.ErrorIs(t, b.Scan(context.Background(), dir), errStop)
}
