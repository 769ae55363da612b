package psd

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Compression identifies how a channel's bytes are encoded
type Compression uint16

const (
	CompressionRaw           Compression = 0
	CompressionRLE           Compression = 1
	CompressionZip           Compression = 2
	CompressionZipPrediction Compression = 3
)

var compressionNames = map[Compression]string{
	CompressionRaw:           "raw",
	CompressionRLE:           "rle",
	CompressionZip:           "zip",
	CompressionZipPrediction: "zip_prediction",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("compression(%d)", uint16(c))
}

func parseCompression(v uint16) (Compression, error) {
	if v > uint16(CompressionZipPrediction) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCompression, v)
	}
	return Compression(v), nil
}

// ChannelBytes is one encoded channel plane. For RLE channels the per-line
// length table has already been stripped.
type ChannelBytes struct {
	Compression Compression
	Data        []byte
	// Width is the row length in pixels. Only ZIP prediction needs it.
	Width int
}

// codec decodes channel planes. The zero value rejects ZIP channels.
type codec struct {
	zip bool
	// depth is the bits per channel of the samples, 0 means 8
	depth int
}

func (d codec) checkDepth() error {
	if d.depth != 0 && d.depth != 8 {
		return fmt.Errorf("%w: %d bits per channel", ErrUnsupportedDepth, d.depth)
	}
	return nil
}

// DecodeChannel decodes ch into dst, writing byte i of the plane to
// dst[offset+i*stride]. Output beyond len(dst) is dropped and truncated
// input ends the plane early.
func DecodeChannel(ch ChannelBytes, stride, offset int, dst []byte) error {
	return codec{}.decodeChannel(ch, stride, offset, dst)
}

func (d codec) decodeChannel(ch ChannelBytes, stride, offset int, dst []byte) error {
	if stride <= 0 {
		stride = 1
	}
	switch ch.Compression {
	case CompressionRaw:
		copyStrided(ch.Data, stride, offset, dst)
	case CompressionRLE:
		decodePackBits(ch.Data, stride, offset, dst)
	case CompressionZip, CompressionZipPrediction:
		if !d.zip {
			return fmt.Errorf("%w: %s", ErrUnsupportedCompression, ch.Compression)
		}
		plane, err := inflate(ch.Data)
		if err != nil {
			return err
		}
		if ch.Compression == CompressionZipPrediction {
			undoDeltaPrediction(plane, ch.Width)
		}
		copyStrided(plane, stride, offset, dst)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidCompression, uint16(ch.Compression))
	}
	return nil
}

func copyStrided(src []byte, stride, offset int, dst []byte) {
	o := offset
	for _, b := range src {
		if o >= len(dst) {
			return
		}
		dst[o] = b
		o += stride
	}
}

// decodePackBits expands PackBits runs. A header byte h in 0..127 copies
// h+1 literal bytes, 129..255 repeats the next byte 257-h times and 128 is
// skipped.
func decodePackBits(src []byte, stride, offset int, dst []byte) {
	o := offset
	i := 0
	for i < len(src) && o < len(dst) {
		h := int(src[i])
		i++
		switch {
		case h < 128:
			for n := h + 1; n > 0 && i < len(src); n-- {
				if o < len(dst) {
					dst[o] = src[i]
				}
				o += stride
				i++
			}
		case h > 128:
			if i >= len(src) {
				return
			}
			v := src[i]
			i++
			for n := 257 - h; n > 0 && o < len(dst); n-- {
				dst[o] = v
				o += stride
			}
		}
	}
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip channel: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate zip channel: %w", err)
	}
	return out, nil
}

// undoDeltaPrediction reverses horizontal differencing of 8-bit rows
func undoDeltaPrediction(plane []byte, width int) {
	if width <= 1 {
		return
	}
	for row := 0; row+width <= len(plane); row += width {
		for i := row + 1; i < row+width; i++ {
			plane[i] += plane[i-1]
		}
	}
}

// GenerateRGBA decodes up to four channels into a width*height*4 RGBA
// buffer. With only red present the image is treated as grayscale. A
// missing alpha channel yields fully opaque pixels.
func GenerateRGBA(width, height int, red ChannelBytes, green, blue, alpha *ChannelBytes) ([]byte, error) {
	return codec{}.generateRGBA(width, height, red, green, blue, alpha)
}

func (d codec) generateRGBA(width, height int, red ChannelBytes, green, blue, alpha *ChannelBytes) ([]byte, error) {
	if err := d.checkDepth(); err != nil {
		return nil, err
	}
	pixelCount := width * height
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidPixelCount, width, height)
	}

	if (green == nil) != (blue == nil) {
		missing := "green"
		if blue == nil {
			missing = "blue"
		}
		return nil, fmt.Errorf("%w: missing %s channel in RGB image", ErrMissingColorChannel, missing)
	}

	out := make([]byte, pixelCount*4)
	if err := d.decodeChannel(red, 4, 0, out); err != nil {
		return nil, fmt.Errorf("failed to decode red channel: %w", err)
	}

	if green != nil {
		if err := d.decodeChannel(*green, 4, 1, out); err != nil {
			return nil, fmt.Errorf("failed to decode green channel: %w", err)
		}
		if err := d.decodeChannel(*blue, 4, 2, out); err != nil {
			return nil, fmt.Errorf("failed to decode blue channel: %w", err)
		}
	} else {
		for i := 0; i < len(out); i += 4 {
			out[i+1] = out[i]
			out[i+2] = out[i]
		}
	}

	if alpha != nil {
		if err := d.decodeChannel(*alpha, 4, 3, out); err != nil {
			return nil, fmt.Errorf("failed to decode alpha channel: %w", err)
		}
	} else {
		fillAlpha(out)
	}

	return out, nil
}

// DecodeGrayscale decodes one channel into an opaque gray RGBA buffer
func DecodeGrayscale(pixelCount int, ch ChannelBytes) ([]byte, error) {
	return codec{}.decodeGrayscale(pixelCount, ch)
}

func (d codec) decodeGrayscale(pixelCount int, ch ChannelBytes) ([]byte, error) {
	if err := d.checkDepth(); err != nil {
		return nil, err
	}
	if pixelCount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPixelCount, pixelCount)
	}
	out := make([]byte, pixelCount*4)
	if err := d.decodeChannel(ch, 4, 0, out); err != nil {
		return nil, err
	}
	for i := 0; i < len(out); i += 4 {
		out[i+1] = out[i]
		out[i+2] = out[i]
		out[i+3] = 255
	}
	return out, nil
}

func fillAlpha(rgba []byte) {
	for i := 3; i < len(rgba); i += 4 {
		rgba[i] = 255
	}
}

// ApplyOpacity scales the alpha of every RGBA pixel by opacity/255 in place
// and returns the same slice.
func ApplyOpacity(rgba []byte, opacity float64) ([]byte, error) {
	if math.IsNaN(opacity) || opacity < 0 || opacity > 255 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOpacity, opacity)
	}
	if opacity == 255 {
		return rgba, nil
	}
	for i := 3; i < len(rgba); i += 4 {
		// the epsilon absorbs error from composed opacity products
		rgba[i] = uint8(math.Floor(float64(rgba[i])*opacity/255 + 1e-9))
	}
	return rgba, nil
}
