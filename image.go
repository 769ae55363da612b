package psd

import (
	"fmt"

	"go.uber.org/zap"
)

// ImageData is the merged composite stored after the layer and mask
// section. Channels holds every plane in file order; Red, Green, Blue and
// Alpha point into it. For grayscale documents Red is the gray plane and
// Green and Blue are nil.
type ImageData struct {
	Compression Compression
	Channels    []ChannelBytes

	Red   *ChannelBytes
	Green *ChannelBytes
	Blue  *ChannelBytes
	Alpha *ChannelBytes
}

func (p *parser) parseImageData(c *Cursor) (*ImageData, error) {
	tag, err := c.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("failed to read compression: %w", err)
	}
	compression, err := parseCompression(tag)
	if err != nil {
		return nil, err
	}
	p.log.Debug("section", zap.String("section", "image_data"), zap.Int("offset", c.Position()), zap.Int("length", c.Remaining()))

	h := p.header
	width, height := int(h.Width), int(h.Height)
	count := int(h.Channels)
	img := &ImageData{Compression: compression}

	switch compression {
	case CompressionRaw:
		if h.Depth != 8 {
			return nil, fmt.Errorf("%w: %d bits per channel", ErrUnsupportedDepth, h.Depth)
		}
		img.Channels = make([]ChannelBytes, count)
		for i := range img.Channels {
			data, err := c.Take(width * height)
			if err != nil {
				return nil, fmt.Errorf("failed to read channel %d: %w", i, err)
			}
			img.Channels[i] = ChannelBytes{Compression: compression, Data: p.channelData(data), Width: width}
		}

	case CompressionRLE:
		sums := make([]int, count)
		for i := 0; i < count*height; i++ {
			n, err := c.ReadLength(p.spec.RLEScanlineLengthSize)
			if err != nil {
				return nil, fmt.Errorf("failed to read line length table: %w", err)
			}
			sums[i/height] += n
		}
		img.Channels = make([]ChannelBytes, count)
		for i := range img.Channels {
			data, err := c.Take(sums[i])
			if err != nil {
				return nil, fmt.Errorf("failed to read channel %d: %w", i, err)
			}
			img.Channels[i] = ChannelBytes{Compression: compression, Data: p.channelData(data), Width: width}
		}

	case CompressionZip, CompressionZipPrediction:
		data, err := c.Take(c.Remaining())
		if err != nil {
			return nil, err
		}
		if img.Channels, err = p.splitZipImage(compression, data, count, width, height); err != nil {
			return nil, err
		}
	}

	img.assignColorChannels(h.Mode)
	return img, nil
}

// splitZipImage inflates the whole stream into raw planes when ZIP
// decoding is enabled. Otherwise the stream is kept as a single undecoded
// channel.
func (p *parser) splitZipImage(compression Compression, data []byte, count, width, height int) ([]ChannelBytes, error) {
	if !p.codec.zip {
		p.log.Debug("zip image data kept undecoded", zap.Int("length", len(data)))
		return []ChannelBytes{{Compression: compression, Data: p.channelData(data), Width: width}}, nil
	}

	planes, err := inflate(data)
	if err != nil {
		return nil, err
	}
	size := width * height
	channels := make([]ChannelBytes, 0, count)
	for i := 0; i < count && (i+1)*size <= len(planes); i++ {
		plane := planes[i*size : (i+1)*size]
		if compression == CompressionZipPrediction {
			undoDeltaPrediction(plane, width)
		}
		channels = append(channels, ChannelBytes{Compression: CompressionRaw, Data: plane, Width: width})
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: inflated %d bytes for a %dx%d image", ErrOutOfBounds, len(planes), width, height)
	}
	return channels, nil
}

func (img *ImageData) assignColorChannels(mode ColorMode) {
	at := func(i int) *ChannelBytes {
		if i < len(img.Channels) {
			return &img.Channels[i]
		}
		return nil
	}

	img.Red = at(0)
	switch mode {
	case ColorModeRGB:
		img.Green, img.Blue = at(1), at(2)
		if img.Green == nil || img.Blue == nil {
			img.Green, img.Blue = nil, nil
		}
		img.Alpha = at(3)
	case ColorModeGrayscale:
		img.Alpha = at(1)
	}
}
