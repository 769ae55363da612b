package psd

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergedImage(t *testing.T) {
	red := []byte{0, 100, 200, 255}
	green := []byte{1, 1, 1, 1}
	blue := []byte{7, 7, 9, 9}
	alpha := []byte{255, 128, 0, 255}

	tests := []struct {
		name     string
		document func() *testDocument
		expected []byte
	}{
		{
			name: "raw",
			document: func() *testDocument {
				d := newTestDocument(2, 2)
				d.image = bytes.Join([][]byte{red, green, blue}, nil)
				return d
			},
			expected: []byte{0, 1, 7, 255, 100, 1, 7, 255, 200, 1, 9, 255, 255, 1, 9, 255},
		},
		{
			name: "rle",
			document: func() *testDocument {
				d := newTestDocument(2, 2)
				d.compression = CompressionRLE
				d.image = rleImage(2, 2, 2, red, green, blue)
				return d
			},
			expected: []byte{0, 1, 7, 255, 100, 1, 7, 255, 200, 1, 9, 255, 255, 1, 9, 255},
		},
		{
			name: "rle psb",
			document: func() *testDocument {
				d := newTestDocument(2, 2)
				d.version = VersionPSB
				d.compression = CompressionRLE
				d.image = rleImage(2, 2, 4, red, green, blue)
				return d
			},
			expected: []byte{0, 1, 7, 255, 100, 1, 7, 255, 200, 1, 9, 255, 255, 1, 9, 255},
		},
		{
			name: "with alpha",
			document: func() *testDocument {
				d := newTestDocument(2, 2)
				d.channels = 4
				d.image = bytes.Join([][]byte{red, green, blue, alpha}, nil)
				return d
			},
			expected: []byte{0, 1, 7, 255, 100, 1, 7, 128, 200, 1, 9, 0, 255, 1, 9, 255},
		},
		{
			name: "grayscale",
			document: func() *testDocument {
				d := newTestDocument(2, 2)
				d.mode = ColorModeGrayscale
				d.channels = 1
				d.image = red
				return d
			},
			expected: []byte{0, 0, 0, 255, 100, 100, 100, 255, 200, 200, 200, 255, 255, 255, 255, 255},
		},
		{
			name: "grayscale with alpha",
			document: func() *testDocument {
				d := newTestDocument(2, 2)
				d.mode = ColorModeGrayscale
				d.channels = 2
				d.image = bytes.Join([][]byte{red, alpha}, nil)
				return d
			},
			expected: []byte{0, 0, 0, 255, 100, 100, 100, 128, 200, 200, 200, 0, 255, 255, 255, 255},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.document().bytes())
			require.NoError(t, err)
			rgba, err := doc.Composite(false, false)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rgba)

			opaque, err := doc.Composite(true, true)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, opaque)
		})
	}
}

func TestMergedImageZip(t *testing.T) {
	planes := []byte{
		10, 20, 30, 40,
		1, 2, 3, 4,
		5, 5, 5, 5,
	}
	predicted := []byte{
		10, 10, 30, 10,
		1, 1, 3, 1,
		5, 0, 5, 0,
	}
	expected := []byte{10, 1, 5, 255, 20, 2, 5, 255, 30, 3, 5, 255, 40, 4, 5, 255}

	for _, tt := range []struct {
		compression Compression
		data        []byte
	}{
		{CompressionZip, planes},
		{CompressionZipPrediction, predicted},
	} {
		t.Run(tt.compression.String(), func(t *testing.T) {
			d := newTestDocument(2, 2)
			d.compression = tt.compression
			d.image = zipped(t, tt.data)

			doc, err := Parse(d.bytes())
			require.NoError(t, err)
			assert.Len(t, doc.ImageData().Channels, 1)
			_, err = doc.Composite(false, false)
			assert.ErrorIs(t, err, ErrUnsupportedCompression)

			doc, err = ParseWithOptions(d.bytes(), Options{DecodeZip: true})
			require.NoError(t, err)
			require.Len(t, doc.ImageData().Channels, 3)
			assert.Equal(t, CompressionRaw, doc.ImageData().Red.Compression)
			rgba, err := doc.Composite(false, false)
			require.NoError(t, err)
			assert.Equal(t, expected, rgba)
		})
	}

	t.Run("short stream", func(t *testing.T) {
		d := newTestDocument(2, 2)
		d.compression = CompressionZip
		d.image = zipped(t, []byte{1, 2})
		_, err := ParseWithOptions(d.bytes(), Options{DecodeZip: true})
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})
}

func TestMergedImageUnsupportedDepth(t *testing.T) {
	d := newTestDocument(2, 2)
	d.depth = 16
	d.image = make([]byte, 3*2*2*2)

	_, err := Parse(d.bytes())
	assert.ErrorIs(t, err, ErrUnsupportedDepth)
	assert.True(t, IsUnsupported(err))
	assert.False(t, IsValidationError(err))
}

func TestEncodePNG(t *testing.T) {
	rgba := []byte{
		255, 0, 0, 255, 0, 255, 0, 128,
		0, 0, 255, 0, 10, 20, 30, 255,
	}
	buf := new(bytes.Buffer)
	require.NoError(t, EncodePNG(buf, 2, 2, rgba))

	img, err := png.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
	assert.Equal(t, color.NRGBA{R: 0, G: 255, B: 0, A: 128}, color.NRGBAModel.Convert(img.At(1, 0)))
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, color.NRGBAModel.Convert(img.At(1, 1)))

	err = EncodePNG(new(bytes.Buffer), 2, 2, rgba[:12])
	assert.ErrorIs(t, err, ErrInvalidPixelCount)
}

func TestNRGBA(t *testing.T) {
	rgba := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	img := NRGBA(2, 1, rgba)
	assert.Equal(t, 8, img.Stride)
	assert.Equal(t, color.NRGBA{R: 5, G: 6, B: 7, A: 8}, img.NRGBAAt(1, 0))

	rgba[4] = 99
	assert.Equal(t, uint8(99), img.NRGBAAt(1, 0).R)
}

// background is an opaque 4x4 blue layer at the bottom of the stack
func background() testLayer {
	return pixelLayer("background", 0, 0, 4, 4, 0, 0, 255)
}

func flatten(t *testing.T, options RendererOptions, layers ...testLayer) []byte {
	t.Helper()
	d := newTestDocument(4, 4)
	d.layers = layers
	doc, err := Parse(d.bytes())
	require.NoError(t, err)
	img, err := NewRenderer(doc, options).Render()
	require.NoError(t, err)
	require.Equal(t, 4, img.Bounds().Dx())
	require.Equal(t, 4, img.Bounds().Dy())
	return img.Pix
}

func pixelAt(pix []byte, x, y int) []byte {
	i := (y*4 + x) * 4
	return pix[i : i+4]
}

func TestFlatten(t *testing.T) {
	red := pixelLayer("red", 1, 1, 2, 2, 255, 0, 0)

	t.Run("normal", func(t *testing.T) {
		pix := flatten(t, RendererOptions{}, red, background())
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 0, 0))
		assert.Equal(t, []byte{255, 0, 0, 255}, pixelAt(pix, 1, 1))
		assert.Equal(t, []byte{255, 0, 0, 255}, pixelAt(pix, 2, 2))
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 3, 3))
	})

	t.Run("half opacity", func(t *testing.T) {
		half := red
		half.opacity = 128
		pix := flatten(t, RendererOptions{}, half, background())
		assert.Equal(t, []byte{128, 0, 127, 255}, pixelAt(pix, 1, 1))
	})

	t.Run("multiply", func(t *testing.T) {
		bottom := pixelLayer("bottom", 0, 0, 4, 4, 200, 100, 50)
		top := pixelLayer("top", 1, 1, 2, 2, 0, 255, 255)
		top.blendMode = BlendMultiply
		pix := flatten(t, RendererOptions{}, top, bottom)
		assert.Equal(t, []byte{0, 100, 50, 255}, pixelAt(pix, 1, 1))
		assert.Equal(t, []byte{200, 100, 50, 255}, pixelAt(pix, 0, 0))
	})

	t.Run("blend ignored over transparency", func(t *testing.T) {
		top := pixelLayer("top", 1, 1, 2, 2, 0, 255, 255)
		top.blendMode = BlendMultiply
		pix := flatten(t, RendererOptions{}, top)
		assert.Equal(t, []byte{0, 255, 255, 255}, pixelAt(pix, 1, 1))
		assert.Equal(t, []byte{0, 0, 0, 0}, pixelAt(pix, 0, 0))
	})

	t.Run("hidden layers", func(t *testing.T) {
		hidden := red
		hidden.flags = 0x02
		pix := flatten(t, RendererOptions{}, hidden, background())
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 1, 1))

		pix = flatten(t, RendererOptions{IncludeHidden: true}, hidden, background())
		assert.Equal(t, []byte{255, 0, 0, 255}, pixelAt(pix, 1, 1))
	})

	t.Run("hidden groups", func(t *testing.T) {
		group := groupLayers("hidden", 255, red)
		group[0].flags = 0x02
		pix := flatten(t, RendererOptions{}, append(group, background())...)
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 1, 1))
	})

	t.Run("group opacity", func(t *testing.T) {
		group := groupLayers("half", 128, red)
		pix := flatten(t, RendererOptions{}, append(group, background())...)
		assert.Equal(t, []byte{128, 0, 127, 255}, pixelAt(pix, 1, 1))
	})

	t.Run("text layers", func(t *testing.T) {
		text := pixelLayer("text", 1, 1, 2, 2, 0, 255, 0)
		text.blocks = [][]byte{aliBlock(KeyTypeTool, typeToolBody("Hi", sampleEngineData()))}

		pix := flatten(t, RendererOptions{}, text, background())
		assert.Equal(t, []byte{0, 255, 0, 255}, pixelAt(pix, 1, 1))

		pix = flatten(t, RendererOptions{ExcludeTextLayers: true}, text, background())
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 1, 1))
	})

	t.Run("layers without pixels", func(t *testing.T) {
		adjustment := testLayer{name: "adjustment", top: 1, left: 1, bottom: 3, right: 3, opacity: 255}
		pix := flatten(t, RendererOptions{}, adjustment, background())
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 1, 1))
	})

	t.Run("clipped to canvas", func(t *testing.T) {
		overhang := pixelLayer("overhang", 3, 3, 4, 4, 255, 0, 0)
		pix := flatten(t, RendererOptions{}, overhang, background())
		assert.Equal(t, []byte{255, 0, 0, 255}, pixelAt(pix, 3, 3))
		assert.Equal(t, []byte{0, 0, 255, 255}, pixelAt(pix, 2, 2))
	})
}

func TestFlattenDocumentAndGroup(t *testing.T) {
	d := newTestDocument(4, 4)
	d.layers = append(
		groupLayers("g", 255,
			pixelLayer("a", 1, 1, 2, 2, 255, 0, 0),
			pixelLayer("b", 2, 2, 2, 2, 0, 255, 0),
		),
		background(),
	)
	doc, err := Parse(d.bytes())
	require.NoError(t, err)

	img, err := doc.Flatten()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(3, 3))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(0, 0))

	group := doc.Children()[0].(*Group)
	img, err = group.Flatten()
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(2, 0))

	layer, ok := doc.LayerByName("b")
	require.True(t, ok)
	img, err = NewRenderer(layer, RendererOptions{}).Render()
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(1, 1))

	empty := groupLayers("empty", 255)
	d.layers = empty
	doc, err = Parse(d.bytes())
	require.NoError(t, err)
	img, err = doc.Children()[0].(*Group).Flatten()
	require.NoError(t, err)
	assert.Equal(t, 0, img.Bounds().Dx())
}

func TestSavePNG(t *testing.T) {
	doc, err := Parse(exampleDocument(VersionPSD).bytes())
	require.NoError(t, err)
	img, err := doc.Flatten()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "flat.png")
	require.NoError(t, SavePNG(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 400, decoded.Bounds().Dx())
	assert.Equal(t, 800, decoded.Bounds().Dy())

	// Layer 1 is at (20, 10) and not covered by anything above it
	assert.Equal(t, color.NRGBA{R: exampleLayerColor(1), G: 100, B: 50, A: 255}, color.NRGBAModel.Convert(decoded.At(25, 15)))
	// Layer 5 is hidden
	assert.Equal(t, color.NRGBA{}, color.NRGBAModel.Convert(decoded.At(105, 55)))

	err = SavePNG(filepath.Join(t.TempDir(), "missing", "flat.png"), img)
	assert.Error(t, err)
}
