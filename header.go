package psd

import (
	"fmt"
)

// ColorMode is the document color mode
type ColorMode uint16

// Color modes
const (
	ColorModeBitmap       ColorMode = 0
	ColorModeGrayscale    ColorMode = 1
	ColorModeIndexed      ColorMode = 2
	ColorModeRGB          ColorMode = 3
	ColorModeCMYK         ColorMode = 4
	ColorModeMultichannel ColorMode = 7
	ColorModeDuotone      ColorMode = 8
	ColorModeLab          ColorMode = 9
)

var colorModeNames = map[ColorMode]string{
	ColorModeBitmap:       "Bitmap",
	ColorModeGrayscale:    "Grayscale",
	ColorModeIndexed:      "IndexedColor",
	ColorModeRGB:          "RGBColor",
	ColorModeCMYK:         "CMYKColor",
	ColorModeMultichannel: "Multichannel",
	ColorModeDuotone:      "Duotone",
	ColorModeLab:          "LabColor",
}

func (m ColorMode) String() string {
	if name, ok := colorModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(m))
}

// File versions
const (
	VersionPSD uint16 = 1
	VersionPSB uint16 = 2
)

const (
	headerSignature = "8BPS"
	maxChannels     = 56
	maxSizePSD      = 30000
	maxSizePSB      = 300000
)

// FileVersionSpec holds the field widths that differ between PSD and PSB
type FileVersionSpec struct {
	// RLEScanlineLengthSize is the width of each entry of an RLE line table
	RLEScanlineLengthSize int
	// LayerMaskLengthSize is the width of the layer and mask section length
	LayerMaskLengthSize int
	// LayerInfoLengthSize is the width of the layer info length
	LayerInfoLengthSize int
	// ChannelLengthSize is the width of each layer channel length
	ChannelLengthSize int
	// VariableALILength is set when some ALI keys carry 8 byte lengths
	VariableALILength bool
	MaxDimension      uint32
}

var (
	psdSpec = FileVersionSpec{
		RLEScanlineLengthSize: 2,
		LayerMaskLengthSize:   4,
		LayerInfoLengthSize:   4,
		ChannelLengthSize:     4,
		MaxDimension:          maxSizePSD,
	}
	psbSpec = FileVersionSpec{
		RLEScanlineLengthSize: 4,
		LayerMaskLengthSize:   8,
		LayerInfoLengthSize:   8,
		ChannelLengthSize:     8,
		VariableALILength:     true,
		MaxDimension:          maxSizePSB,
	}
)

// Header represents the PSD file header
type Header struct {
	Version  uint16
	Channels uint16
	Height   uint32
	Width    uint32
	Depth    uint16
	Mode     ColorMode
}

// ModeName returns the human-readable color mode name
func (h Header) ModeName() string {
	return h.Mode.String()
}

// IsBig returns true if this is a PSB (large document format)
func (h Header) IsBig() bool {
	return h.Version == VersionPSB
}

// IsRGB returns true if the color mode is RGB
func (h Header) IsRGB() bool {
	return h.Mode == ColorModeRGB
}

// Spec returns the field widths for the header's version
func (h Header) Spec() FileVersionSpec {
	if h.IsBig() {
		return psbSpec
	}
	return psdSpec
}

// parseHeader reads and validates the header, then skips the color mode
// data section that follows it
func parseHeader(c *Cursor) (*Header, error) {
	sig, err := c.ReadString(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if sig != headerSignature {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignature, sig)
	}

	h := &Header{}
	if h.Version, err = c.ReadUint16(); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if h.Version != VersionPSD && h.Version != VersionPSB {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, h.Version)
	}

	reserved, err := c.Take(6)
	if err != nil {
		return nil, fmt.Errorf("failed to read reserved bytes: %w", err)
	}
	for _, b := range reserved {
		if b != 0 {
			return nil, fmt.Errorf("%w: % x", ErrInvalidReserved, reserved)
		}
	}

	if h.Channels, err = c.ReadUint16(); err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}
	if h.Channels < 1 || h.Channels > maxChannels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannelCount, h.Channels)
	}

	if h.Height, err = c.ReadUint32(); err != nil {
		return nil, fmt.Errorf("failed to read height: %w", err)
	}
	if h.Width, err = c.ReadUint32(); err != nil {
		return nil, fmt.Errorf("failed to read width: %w", err)
	}
	limit := h.Spec().MaxDimension
	if h.Height < 1 || h.Height > limit || h.Width < 1 || h.Width > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidDimensions, h.Width, h.Height, limit)
	}

	if h.Depth, err = c.ReadUint16(); err != nil {
		return nil, fmt.Errorf("failed to read depth: %w", err)
	}
	switch h.Depth {
	case 1, 8, 16, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, h.Depth)
	}

	mode, err := c.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("failed to read mode: %w", err)
	}
	h.Mode = ColorMode(mode)
	if _, ok := colorModeNames[h.Mode]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColorMode, mode)
	}

	colorDataLen, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("failed to read color data length: %w", err)
	}
	if err := c.Skip(int(colorDataLen)); err != nil {
		return nil, fmt.Errorf("failed to skip color data: %w", err)
	}

	return h, nil
}
