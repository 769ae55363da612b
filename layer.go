package psd

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// BlendMode is a four character blend mode key
type BlendMode string

// Blend modes
const (
	BlendPassThrough  BlendMode = "pass"
	BlendNormal       BlendMode = "norm"
	BlendDissolve     BlendMode = "diss"
	BlendDarken       BlendMode = "dark"
	BlendMultiply     BlendMode = "mul "
	BlendColorBurn    BlendMode = "idiv"
	BlendLinearBurn   BlendMode = "lbrn"
	BlendDarkerColor  BlendMode = "dkCl"
	BlendLighten      BlendMode = "lite"
	BlendScreen       BlendMode = "scrn"
	BlendColorDodge   BlendMode = "div "
	BlendLinearDodge  BlendMode = "lddg"
	BlendLighterColor BlendMode = "lgCl"
	BlendOverlay      BlendMode = "over"
	BlendSoftLight    BlendMode = "sLit"
	BlendHardLight    BlendMode = "hLit"
	BlendVividLight   BlendMode = "vLit"
	BlendLinearLight  BlendMode = "lLit"
	BlendPinLight     BlendMode = "pLit"
	BlendHardMix      BlendMode = "hMix"
	BlendDifference   BlendMode = "diff"
	BlendExclusion    BlendMode = "smud"
	BlendSubtract     BlendMode = "fsub"
	BlendDivide       BlendMode = "fdiv"
	BlendHue          BlendMode = "hue "
	BlendSaturation   BlendMode = "sat "
	BlendColor        BlendMode = "colr"
	BlendLuminosity   BlendMode = "lum "
)

var blendModeNames = map[BlendMode]string{
	BlendPassThrough:  "pass_through",
	BlendNormal:       "normal",
	BlendDissolve:     "dissolve",
	BlendDarken:       "darken",
	BlendMultiply:     "multiply",
	BlendColorBurn:    "color_burn",
	BlendLinearBurn:   "linear_burn",
	BlendDarkerColor:  "darker_color",
	BlendLighten:      "lighten",
	BlendScreen:       "screen",
	BlendColorDodge:   "color_dodge",
	BlendLinearDodge:  "linear_dodge",
	BlendLighterColor: "lighter_color",
	BlendOverlay:      "overlay",
	BlendSoftLight:    "soft_light",
	BlendHardLight:    "hard_light",
	BlendVividLight:   "vivid_light",
	BlendLinearLight:  "linear_light",
	BlendPinLight:     "pin_light",
	BlendHardMix:      "hard_mix",
	BlendDifference:   "difference",
	BlendExclusion:    "exclusion",
	BlendSubtract:     "subtract",
	BlendDivide:       "divide",
	BlendHue:          "hue",
	BlendSaturation:   "saturation",
	BlendColor:        "color",
	BlendLuminosity:   "luminosity",
}

// String returns the readable name, e.g. "color_dodge" for "div "
func (m BlendMode) String() string {
	if name, ok := blendModeNames[m]; ok {
		return name
	}
	return strings.TrimSpace(string(m))
}

func parseBlendMode(key string) (BlendMode, error) {
	m := BlendMode(key)
	if _, ok := blendModeNames[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBlendMode, key)
	}
	return m, nil
}

// Clipping says whether a layer is clipped to the layer below
type Clipping uint8

const (
	ClippingBase    Clipping = 0
	ClippingNonBase Clipping = 1
)

// ChannelKind is the id of a layer channel
type ChannelKind int16

const (
	ChannelRed                       ChannelKind = 0
	ChannelGreen                     ChannelKind = 1
	ChannelBlue                      ChannelKind = 2
	ChannelTransparencyMask          ChannelKind = -1
	ChannelUserSuppliedLayerMask     ChannelKind = -2
	ChannelRealUserSuppliedLayerMask ChannelKind = -3
)

func (k ChannelKind) known() bool {
	return k >= ChannelRealUserSuppliedLayerMask && k <= ChannelBlue
}

// ChannelInfo is one entry of a layer record's channel list
type ChannelInfo struct {
	Kind ChannelKind
	// Length excludes the two byte compression tag
	Length int
}

// MaskFlags are the layer mask flag bits
type MaskFlags struct {
	PositionRelativeToLayer        bool
	LayerMaskDisabled              bool
	InvertMaskWhenBlending         bool
	UserMaskFromRenderingOtherData bool
	MasksHaveParametersApplied     bool
}

func parseMaskFlags(b uint8) MaskFlags {
	return MaskFlags{
		PositionRelativeToLayer:        b&0x01 != 0,
		LayerMaskDisabled:              b&0x02 != 0,
		InvertMaskWhenBlending:         b&0x04 != 0,
		UserMaskFromRenderingOtherData: b&0x08 != 0,
		MasksHaveParametersApplied:     b&0x10 != 0,
	}
}

// MaskParameters are present when MasksHaveParametersApplied is set.
// Nil fields were not stored.
type MaskParameters struct {
	UserMaskDensity   *uint8
	UserMaskFeather   *float64
	VectorMaskDensity *uint8
	VectorMaskFeather *float64
}

// RealMaskData describes the real user supplied layer mask
type RealMaskData struct {
	Flags           MaskFlags
	BackgroundColor uint8
	Rectangle
}

// MaskData is the layer mask block of a layer record. A zero Rectangle
// means the layer has no mask.
type MaskData struct {
	Rectangle
	BackgroundColor uint8
	Flags           MaskFlags
	Parameters      *MaskParameters
	RealData        *RealMaskData
}

// Area returns the number of pixels covered by r, or 0 when r is empty
func (r Rectangle) Area() int {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// LayerRecord is one entry of the layer info section with its decoded
// additional layer information
type LayerRecord struct {
	Name string
	// Bottom and Right are inclusive
	Top, Left, Bottom, Right int32

	Channels           []ChannelInfo
	BlendMode          BlendMode
	Opacity            uint8
	Clipping           Clipping
	Hidden             bool
	TransparencyLocked bool
	Mask               MaskData

	AdditionalLayerInfo []AdditionalLayerInfo

	// DividerType is set from a section divider block
	DividerType *GroupDivider
	// Text is the text of a type layer
	Text       *string
	EngineData *EngineData
}

// Width returns Right-Left+1
func (r *LayerRecord) Width() int { return int(r.Right) - int(r.Left) + 1 }

// Height returns Bottom-Top+1
func (r *LayerRecord) Height() int { return int(r.Bottom) - int(r.Top) + 1 }

// LayerChannels maps channel kinds to their encoded bytes
type LayerChannels map[ChannelKind]ChannelBytes

func (p *parser) parseLayerRecord(c *Cursor) (*LayerRecord, error) {
	rec := &LayerRecord{}
	var err error

	for _, v := range []*int32{&rec.Top, &rec.Left, &rec.Bottom, &rec.Right} {
		if *v, err = c.ReadInt32(); err != nil {
			return nil, fmt.Errorf("failed to read layer rectangle: %w", err)
		}
	}
	// stored exclusive; empty layers store zero
	if rec.Bottom != 0 {
		rec.Bottom--
	}
	if rec.Right != 0 {
		rec.Right--
	}

	count, err := c.ReadUint16()
	if err != nil {
		return nil, err
	}
	rec.Channels = make([]ChannelInfo, 0, count)
	for i := uint16(0); i < count; i++ {
		id, err := c.ReadInt16()
		if err != nil {
			return nil, err
		}
		length, err := c.ReadLength(p.spec.ChannelLengthSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read length of channel %d: %w", id, err)
		}
		rec.Channels = append(rec.Channels, ChannelInfo{Kind: ChannelKind(id), Length: length - 2})
	}

	sig, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}
	if sig != "8BIM" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBlendingModeSignature, sig)
	}
	key, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}
	if rec.BlendMode, err = parseBlendMode(key); err != nil {
		return nil, err
	}

	if rec.Opacity, err = c.ReadUint8(); err != nil {
		return nil, err
	}
	clipping, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	if clipping > uint8(ClippingNonBase) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidClipping, clipping)
	}
	rec.Clipping = Clipping(clipping)

	flags, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	rec.TransparencyLocked = flags&0x01 != 0
	// documented as "visible" but set for hidden layers
	rec.Hidden = flags&0x02 != 0

	// filler
	if err := c.Skip(1); err != nil {
		return nil, err
	}

	extraLen, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	extra, err := c.Sub(int(extraLen))
	if err != nil {
		return nil, fmt.Errorf("%w: extra data of %d bytes: %w", ErrLayerExtraDataMismatch, extraLen, err)
	}

	if rec.Mask, err = parseMaskData(extra); err != nil {
		return nil, fmt.Errorf("failed to read mask data: %w", err)
	}

	// blending ranges
	rangesLen, err := extra.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := extra.Skip(int(rangesLen)); err != nil {
		return nil, fmt.Errorf("failed to skip blending ranges: %w", err)
	}

	if rec.Name, err = extra.ReadPascalString(4); err != nil {
		return nil, fmt.Errorf("failed to read layer name: %w", err)
	}

	for extra.Remaining() > 0 {
		ali, err := p.parseAdditionalLayerInfo(extra)
		if err != nil {
			return nil, fmt.Errorf("failed to read additional layer info of %q: %w", rec.Name, err)
		}
		rec.AdditionalLayerInfo = append(rec.AdditionalLayerInfo, ali)
	}

	if err := p.deriveRecordProperties(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// deriveRecordProperties lifts the divider type, text and unicode name out
// of the additional layer info blocks
func (p *parser) deriveRecordProperties(rec *LayerRecord) error {
	var nested *GroupDivider
	for _, ali := range rec.AdditionalLayerInfo {
		switch v := ali.(type) {
		case *SectionDividerSetting:
			t := v.Type
			if v.Key() == KeySectionDivider {
				rec.DividerType = &t
			} else {
				nested = &t
			}
		case *TypeToolObjectSetting:
			if text, err := v.TextData.GetString("Txt "); err == nil {
				rec.Text = &text
			}
			if raw, err := v.TextData.GetRawData("EngineData"); err == nil {
				data, err := parseEngineData(raw, p.opts.MaxEngineDataDepth)
				if err != nil {
					return fmt.Errorf("failed to parse engine data of %q: %w", rec.Name, err)
				}
				rec.EngineData = data
			}
		case *UnicodeLayerName:
			rec.Name = v.Name
		}
	}
	if rec.DividerType == nil {
		rec.DividerType = nested
	}
	return nil
}

func parseMaskData(c *Cursor) (MaskData, error) {
	var m MaskData

	size, err := c.ReadUint32()
	if err != nil {
		return m, err
	}
	if size == 0 {
		return m, nil
	}
	body, err := c.Sub(int(size))
	if err != nil {
		return m, err
	}

	if m.Rectangle, err = readRectangle(body); err != nil {
		return m, err
	}
	if m.BackgroundColor, err = body.ReadUint8(); err != nil {
		return m, err
	}
	flags, err := body.ReadUint8()
	if err != nil {
		return m, err
	}
	m.Flags = parseMaskFlags(flags)

	if size == 20 {
		return m, nil
	}

	if m.Flags.MasksHaveParametersApplied {
		if m.Parameters, err = parseMaskParameters(body); err != nil {
			return m, err
		}
	}

	if body.Remaining() >= 18 {
		rd := &RealMaskData{}
		realFlags, err := body.ReadUint8()
		if err != nil {
			return m, err
		}
		rd.Flags = parseMaskFlags(realFlags)
		if rd.BackgroundColor, err = body.ReadUint8(); err != nil {
			return m, err
		}
		if rd.Rectangle, err = readRectangle(body); err != nil {
			return m, err
		}
		m.RealData = rd
	}
	return m, nil
}

func parseMaskParameters(c *Cursor) (*MaskParameters, error) {
	flags, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}

	params := &MaskParameters{}
	readDensity := func(bit uint8) (*uint8, error) {
		if flags&bit == 0 {
			return nil, nil
		}
		v, err := c.ReadUint8()
		return &v, err
	}
	readFeather := func(bit uint8) (*float64, error) {
		if flags&bit == 0 {
			return nil, nil
		}
		v, err := c.ReadFloat64()
		return &v, err
	}

	if params.UserMaskDensity, err = readDensity(0x01); err != nil {
		return nil, err
	}
	if params.UserMaskFeather, err = readFeather(0x02); err != nil {
		return nil, err
	}
	if params.VectorMaskDensity, err = readDensity(0x04); err != nil {
		return nil, err
	}
	if params.VectorMaskFeather, err = readFeather(0x08); err != nil {
		return nil, err
	}
	return params, nil
}

// parseLayerChannels reads the channel image data that follows all layer
// records, in the order of rec.Channels
func (p *parser) parseLayerChannels(c *Cursor, rec *LayerRecord) (LayerChannels, error) {
	channels := make(LayerChannels, len(rec.Channels))

	for _, info := range rec.Channels {
		if info.Length < 0 {
			// no room for a compression tag
			if err := c.Skip(info.Length + 2); err != nil {
				return nil, fmt.Errorf("failed to skip channel %d: %w", info.Kind, err)
			}
			continue
		}

		tag, err := c.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("failed to read compression of channel %d: %w", info.Kind, err)
		}
		compression, err := parseCompression(tag)
		if err != nil {
			return nil, err
		}
		data, err := c.Take(info.Length)
		if err != nil {
			return nil, fmt.Errorf("failed to read channel %d: %w", info.Kind, err)
		}

		if !info.Kind.known() {
			p.log.Debug("ignoring unknown channel", zap.Int16("channel", int16(info.Kind)), zap.String("layer", rec.Name))
			continue
		}

		width, height := rec.Width(), rec.Height()
		switch info.Kind {
		case ChannelUserSuppliedLayerMask:
			width, height = rec.Mask.Width(), rec.Mask.Height()
		case ChannelRealUserSuppliedLayerMask:
			if rec.Mask.RealData != nil {
				width, height = rec.Mask.RealData.Width(), rec.Mask.RealData.Height()
			}
		}

		switch compression {
		case CompressionRLE:
			table := height * p.spec.RLEScanlineLengthSize
			if height < 0 || table > len(data) {
				// nothing after the line table; decodes as an empty plane
				p.log.Debug("short rle channel", zap.Int16("channel", int16(info.Kind)), zap.Int("length", len(data)))
				table = len(data)
			}
			data = data[table:]
		case CompressionZip, CompressionZipPrediction:
			if !p.codec.zip {
				p.log.Debug("zip channel kept undecoded", zap.Int16("channel", int16(info.Kind)), zap.String("layer", rec.Name))
			}
		}

		channels[info.Kind] = ChannelBytes{
			Compression: compression,
			Data:        p.channelData(data),
			Width:       width,
		}
	}
	return channels, nil
}
