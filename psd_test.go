package psd

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParse(t *testing.T) {
	for _, version := range []uint16{VersionPSD, VersionPSB} {
		t.Run(exampleName(version), func(t *testing.T) {
			doc, err := Parse(exampleDocument(version).bytes())
			require.NoError(t, err)

			assert.Equal(t, version, doc.Header().Version)
			assert.Equal(t, version == VersionPSB, doc.Header().IsBig())
			assert.Equal(t, 400, doc.Width())
			assert.Equal(t, 800, doc.Height())
			assert.Equal(t, 3, doc.ChannelCount())
			assert.Equal(t, 8, doc.BitDepth())
			assert.Equal(t, 0, doc.Depth())
			assert.Equal(t, ColorModeRGB, doc.ColorMode())

			layers := doc.Layers()
			require.Len(t, layers, 14)
			assert.Len(t, doc.Children(), 13)
			assert.Equal(t, "Layer 7", layers[7].Name())
			assert.Equal(t, uint8(128), layers[7].Opacity())

			group, ok := doc.Children()[2].(*Group)
			require.True(t, ok)
			assert.Equal(t, "Group 1", group.Name())
			assert.Len(t, group.Children(), 2)

			assert.Equal(t, CompressionRLE, doc.ImageData().Compression)
			merged, err := doc.Composite(false, false)
			require.NoError(t, err)
			require.Len(t, merged, 400*800*4)
			assert.Equal(t, []byte{255, 128, 0, 255}, merged[:4])
			assert.Equal(t, []byte{255, 128, 0, 255}, merged[len(merged)-4:])
		})
	}
}

func exampleName(version uint16) string {
	if version == VersionPSB {
		return "psb"
	}
	return "psd"
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.psd")
	require.NoError(t, os.WriteFile(path, exampleDocument(VersionPSD).bytes(), 0o644))

	doc, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, doc.Layers(), 14)

	doc, err = Open(path, Options{CopyChannelData: true})
	require.NoError(t, err)
	assert.Len(t, doc.Layers(), 14)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.psd"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestParseHeaderErrors(t *testing.T) {
	tests := []struct {
		name     string
		patch    func(b []byte) []byte
		expected error
		check    func(error) bool
	}{
		{
			name:     "signature",
			patch:    func(b []byte) []byte { copy(b, "8BPX"); return b },
			expected: ErrInvalidSignature,
			check:    IsValidationError,
		},
		{
			name:     "version",
			patch:    func(b []byte) []byte { b[5] = 3; return b },
			expected: ErrInvalidVersion,
			check:    IsValidationError,
		},
		{
			name:     "reserved",
			patch:    func(b []byte) []byte { b[8] = 1; return b },
			expected: ErrInvalidReserved,
			check:    IsValidationError,
		},
		{
			name:     "no channels",
			patch:    func(b []byte) []byte { b[13] = 0; return b },
			expected: ErrInvalidChannelCount,
			check:    IsValidationError,
		},
		{
			name:     "too many channels",
			patch:    func(b []byte) []byte { b[13] = 57; return b },
			expected: ErrInvalidChannelCount,
			check:    IsValidationError,
		},
		{
			name:     "zero height",
			patch:    func(b []byte) []byte { copy(b[14:18], []byte{0, 0, 0, 0}); return b },
			expected: ErrInvalidDimensions,
			check:    IsValidationError,
		},
		{
			name: "psd wider than 30000",
			patch: func(b []byte) []byte {
				copy(b[18:22], []byte{0, 0, 0x75, 0x31})
				return b
			},
			expected: ErrInvalidDimensions,
			check:    IsValidationError,
		},
		{
			name:     "depth",
			patch:    func(b []byte) []byte { b[23] = 7; return b },
			expected: ErrInvalidDepth,
			check:    IsValidationError,
		},
		{
			name:     "color mode",
			patch:    func(b []byte) []byte { b[25] = 5; return b },
			expected: ErrInvalidColorMode,
			check:    IsValidationError,
		},
		{
			name:     "truncated header",
			patch:    func(b []byte) []byte { return b[:20] },
			expected: ErrOutOfBounds,
			check:    IsBoundsError,
		},
		{
			name:     "truncated image data",
			patch:    func(b []byte) []byte { return b[:len(b)-1] },
			expected: ErrOutOfBounds,
			check:    IsBoundsError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.patch(exampleDocument(VersionPSD).bytes()))
			assert.ErrorIs(t, err, tt.expected)
			assert.True(t, tt.check(err))
			assert.False(t, IsUnsupported(err))
		})
	}
}

func TestPSBAllowsLargeDimensions(t *testing.T) {
	d := newTestDocument(40000, 1)
	d.version = VersionPSB
	d.channels = 1
	d.mode = ColorModeGrayscale

	doc, err := Parse(d.bytes())
	require.NoError(t, err)
	assert.Equal(t, 40000, doc.Width())

	d.version = VersionPSD
	_, err = Parse(d.bytes())
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestChannelDataOwnership(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		expected byte
	}{
		{name: "borrowed", opts: Options{}, expected: 0},
		{name: "copied", opts: Options{CopyChannelData: true}, expected: exampleLayerColor(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := exampleDocument(VersionPSD).bytes()
			doc, err := ParseWithOptions(buf, tt.opts)
			require.NoError(t, err)

			for i := range buf {
				buf[i] = 0
			}
			layer, ok := doc.LayerByName("Layer 1")
			require.True(t, ok)
			red, ok := layer.Channel(ChannelRed)
			require.True(t, ok)
			assert.Equal(t, tt.expected, red.Data[0])
		})
	}
}

func TestParseLogsSkippedData(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := exampleDocument(VersionPSD)
	d.layers[0].blocks = append(d.layers[0].blocks, aliBlock("zzzz", []byte{1, 2, 3, 4}))

	doc, err := ParseWithOptions(d.bytes(), Options{Logger: zap.New(core)})
	require.NoError(t, err)
	assert.Len(t, doc.UnknownResources(), 1)

	assert.Equal(t, 1, logs.FilterMessage("skipping image resource").Len())
	unknown := logs.FilterMessage("keeping unknown layer info").All()
	require.Len(t, unknown, 1)
	assert.Equal(t, "zzzz", unknown[0].ContextMap()["key"])
}

func TestConcurrentReads(t *testing.T) {
	doc, err := Parse(exampleDocument(VersionPSD).bytes())
	require.NoError(t, err)

	want, err := doc.Composite(false, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := doc.Composite(false, false)
			if err != nil {
				errs <- err
				return
			}
			if string(got) != string(want) {
				errs <- assert.AnError
			}
			for _, l := range doc.Layers() {
				if _, err := l.Composite(true, true); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func FuzzParse(f *testing.F) {
	small := newTestDocument(4, 2)
	small.layers = []testLayer{pixelLayer("a", 0, 0, 2, 2, 1, 2, 3)}
	f.Add(small.bytes())
	f.Add(exampleDocument(VersionPSD).bytes()[:200])
	f.Add([]byte("8BPS"))
	minCount := newTestDocument(1, 1)
	minCount.layerInfo = []byte{0x80, 0x00}
	f.Add(minCount.bytes())

	f.Fuzz(func(t *testing.T, data []byte) {
		doc, err := Parse(data)
		if err != nil {
			return
		}
		doc.Walk(func(n Node) bool {
			_ = n.Name()
			_ = n.ComposedOpacity()
			return true
		})
	})
}
