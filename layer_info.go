package psd

import (
	"fmt"

	"go.uber.org/zap"
)

// Additional layer info keys decoded by this package
const (
	KeySectionDivider          = "lsct"
	KeyNestedSectionDivider    = "lsdk"
	KeyTypeTool                = "TySh"
	KeyUnicodeLayerName        = "luni"
	KeyVectorStroke            = "vstk"
	KeyObjectEffects           = "lfx2"
	KeyMultipleObjectEffects   = "lmfx"
	KeyObjectBasedUndocumented = "cinf"
	KeyGradientFill            = "GdFl"
	KeySolidColor              = "SoCo"
	KeyPatternFill             = "PtFl"
	KeyVectorStrokeContent     = "vscg"
	KeyVectorOrigination       = "vogk"
	KeyFillOpacity             = "iOpa"
	KeyVectorMask              = "vmsk"
	KeyVectorMaskCS6           = "vsms"
	KeyHueSaturation           = "hue2"
	KeyLayerID                 = "lyid"
	KeyArtboard                = "artb"
	KeyLinkedLayer             = "lnk2"
	KeyLinkedLayerD            = "lnkD"
	KeyLinkedLayer3            = "lnk3"
	KeyPlacedLayer             = "SoLd"
	KeyPlacedLayerE            = "SoLE"
	KeyPattern                 = "Patt"
	KeyPattern2                = "Pat2"
	KeyPattern3                = "Pat3"
)

// keys whose length field is 8 bytes wide in PSB files
var wideALIKeys = map[string]bool{
	"LMsk": true, "Lr16": true, "Lr32": true, "Layr": true, "Mt16": true,
	"Mt32": true, "Mtrn": true, "Alph": true, "FMsk": true, "Ink2": true,
	"FEid": true, "FXid": true, "PxSD": true, "cinf": true,
}

// AdditionalLayerInfo is one tagged block following a layer record or the
// layer info section. The concrete type depends on Key.
type AdditionalLayerInfo interface {
	Key() string
	Signature() string
}

type aliHeader struct {
	signature string
	key       string
}

func (h aliHeader) Key() string       { return h.key }
func (h aliHeader) Signature() string { return h.signature }

// GroupDivider is the section divider type of a layer record
type GroupDivider uint32

const (
	GroupDividerOther                  GroupDivider = 0
	GroupDividerOpenFolder             GroupDivider = 1
	GroupDividerClosedFolder           GroupDivider = 2
	GroupDividerBoundingSectionDivider GroupDivider = 3
)

func (g GroupDivider) String() string {
	switch g {
	case GroupDividerOther:
		return "other"
	case GroupDividerOpenFolder:
		return "open folder"
	case GroupDividerClosedFolder:
		return "closed folder"
	case GroupDividerBoundingSectionDivider:
		return "bounding section divider"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(g))
	}
}

// SectionDividerSetting is an lsct or lsdk block
type SectionDividerSetting struct {
	aliHeader
	Type GroupDivider
	// BlendMode is empty when the block is shorter than 12 bytes
	BlendMode BlendMode
	// SubType is 0 for normal groups and 1 for scene groups
	SubType    uint32
	HasSubType bool
}

// UnicodeLayerName is the luni block
type UnicodeLayerName struct {
	aliHeader
	Name string
}

// LayerID is the lyid block
type LayerID struct {
	aliHeader
	ID uint32
}

// FillOpacity is the iOpa block
type FillOpacity struct {
	aliHeader
	Opacity uint8
}

// DescriptorBlock holds the blocks whose payload is a single descriptor:
// vstk, GdFl, PtFl, artb (versioned), lfx2, lmfx, cinf (version and
// descriptor version), SoCo, vscg, vogk (version) and SoLd/SoLE
// (identifier and version).
type DescriptorBlock struct {
	aliHeader
	Identifier        string
	Version           uint32
	DescriptorVersion uint32
	Descriptor        *Descriptor
}

// HSL is a hue, saturation, lightness triple
type HSL struct {
	Hue        int16
	Saturation int16
	Lightness  int16
}

// HSLChange is one hue range adjustment
type HSLChange struct {
	BeginRamp    int16
	BeginSustain int16
	EndSustain   int16
	EndRamp      int16
	HSL
}

// HueSaturation is the hue2 block
type HueSaturation struct {
	aliHeader
	Version      uint16
	Colorize     bool
	Colorization HSL
	Master       HSL
	// Adjustment has six ranges and is nil when colorizing
	Adjustment []HSLChange
}

// UnknownLayerInfo keeps the raw body of a block this package does not decode
type UnknownLayerInfo struct {
	aliHeader
	Data []byte
}

// parseAdditionalLayerInfo reads one block. The body is decoded through a
// cursor limited to the declared size and c always ends up past the block.
func (p *parser) parseAdditionalLayerInfo(c *Cursor) (AdditionalLayerInfo, error) {
	sig, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}
	if sig != "8BIM" && sig != "8B64" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAdditionalLayerInfoSignature, sig)
	}
	key, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}

	width := 4
	if p.spec.VariableALILength && wideALIKeys[key] {
		width = 8
	}
	size, err := c.ReadLength(width)
	if err != nil {
		return nil, fmt.Errorf("failed to read size of %q: %w", key, err)
	}
	if size > c.Remaining() {
		return nil, fmt.Errorf("%w: %q declares %d bytes, %d left", ErrLayerExtraDataMismatch, key, size, c.Remaining())
	}
	body, err := c.Sub(size)
	if err != nil {
		return nil, err
	}

	h := aliHeader{signature: sig, key: key}
	ali, err := p.parseAdditionalLayerInfoBody(h, body, size)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q block: %w", key, err)
	}
	return ali, nil
}

func (p *parser) parseAdditionalLayerInfoBody(h aliHeader, c *Cursor, size int) (AdditionalLayerInfo, error) {
	switch h.key {
	case KeySectionDivider, KeyNestedSectionDivider:
		return parseSectionDivider(h, c, size)
	case KeyTypeTool:
		return p.parseTypeTool(h, c)
	case KeyUnicodeLayerName:
		name, err := c.ReadUnicodeString(0)
		if err != nil {
			return nil, err
		}
		return &UnicodeLayerName{aliHeader: h, Name: name}, nil
	case KeyLayerID:
		id, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		return &LayerID{aliHeader: h, ID: id}, nil
	case KeyFillOpacity:
		v, err := c.ReadUint8()
		if err != nil {
			return nil, err
		}
		return &FillOpacity{aliHeader: h, Opacity: v}, nil
	case KeyVectorStroke, KeyGradientFill, KeyPatternFill, KeyArtboard:
		return p.parseDescriptorBlock(h, c, layoutVersioned)
	case KeyObjectEffects, KeyMultipleObjectEffects, KeyObjectBasedUndocumented:
		return p.parseDescriptorBlock(h, c, layoutTwoVersions)
	case KeySolidColor:
		return p.parseDescriptorBlock(h, c, layoutVersionPlain)
	case KeyVectorStrokeContent, KeyVectorOrigination:
		return p.parseDescriptorBlock(h, c, layoutVersionVersioned)
	case KeyPlacedLayer, KeyPlacedLayerE:
		return p.parseDescriptorBlock(h, c, layoutPlaced)
	case KeyVectorMask, KeyVectorMaskCS6:
		return parseVectorMask(h, c)
	case KeyHueSaturation:
		return parseHueSaturation(h, c)
	case KeyLinkedLayer, KeyLinkedLayerD, KeyLinkedLayer3:
		return p.parseLinkedLayers(h, c)
	case KeyPattern, KeyPattern2, KeyPattern3:
		return p.parsePatterns(h, c)
	}

	p.log.Debug("keeping unknown layer info", zap.String("key", h.key), zap.Int("size", size))
	data, err := c.Take(c.Remaining())
	if err != nil {
		return nil, err
	}
	return &UnknownLayerInfo{aliHeader: h, Data: data}, nil
}

func parseSectionDivider(h aliHeader, c *Cursor, size int) (*SectionDividerSetting, error) {
	t, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	if t > uint32(GroupDividerBoundingSectionDivider) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupDividerType, t)
	}
	s := &SectionDividerSetting{aliHeader: h, Type: GroupDivider(t)}
	if size < 12 {
		return s, nil
	}

	sig, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}
	if sig != "8BIM" {
		return nil, fmt.Errorf("%w: signature %q", ErrInvalidSectionDividerSetting, sig)
	}
	key, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}
	if s.BlendMode, err = parseBlendMode(key); err != nil {
		return nil, err
	}
	if size < 16 {
		return s, nil
	}

	if s.SubType, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	if s.SubType > 1 {
		return nil, fmt.Errorf("%w: subtype %d", ErrInvalidSectionDividerSetting, s.SubType)
	}
	s.HasSubType = true
	return s, nil
}

// descriptorLayout says which prefixes come before a block's descriptor
type descriptorLayout uint8

const (
	// versioned descriptor only
	layoutVersioned descriptorLayout = iota
	// u32 version, plain descriptor
	layoutVersionPlain
	// u32 version, versioned descriptor
	layoutVersionVersioned
	// u32 version, u32 descriptor version, plain descriptor
	layoutTwoVersions
	// 4 byte identifier, u32 version, versioned descriptor
	layoutPlaced
)

func (p *parser) parseDescriptorBlock(h aliHeader, c *Cursor, layout descriptorLayout) (*DescriptorBlock, error) {
	b := &DescriptorBlock{aliHeader: h}
	var err error

	if layout == layoutPlaced {
		if b.Identifier, err = c.ReadString(4); err != nil {
			return nil, err
		}
	}
	if layout != layoutVersioned {
		if b.Version, err = c.ReadUint32(); err != nil {
			return nil, err
		}
	}

	d := p.descriptors(c)
	switch layout {
	case layoutVersionPlain:
		b.Descriptor, err = d.Parse()
	case layoutTwoVersions:
		if b.DescriptorVersion, err = c.ReadUint32(); err != nil {
			return nil, err
		}
		b.Descriptor, err = d.Parse()
	default:
		b.DescriptorVersion = descriptorVersion
		b.Descriptor, err = d.ParseVersioned()
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func readHSL(c *Cursor) (HSL, error) {
	var v HSL
	var err error
	for _, f := range []*int16{&v.Hue, &v.Saturation, &v.Lightness} {
		if *f, err = c.ReadInt16(); err != nil {
			return v, err
		}
	}
	return v, nil
}

func parseHueSaturation(h aliHeader, c *Cursor) (*HueSaturation, error) {
	hs := &HueSaturation{aliHeader: h}
	var err error

	if hs.Version, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	colorize, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	hs.Colorize = colorize != 0
	if err := c.Skip(1); err != nil {
		return nil, err
	}
	if hs.Colorization, err = readHSL(c); err != nil {
		return nil, err
	}
	if hs.Master, err = readHSL(c); err != nil {
		return nil, err
	}
	if hs.Colorize {
		return hs, nil
	}

	hs.Adjustment = make([]HSLChange, 6)
	for i := range hs.Adjustment {
		a := &hs.Adjustment[i]
		for _, f := range []*int16{&a.BeginRamp, &a.BeginSustain, &a.EndSustain, &a.EndRamp} {
			if *f, err = c.ReadInt16(); err != nil {
				return nil, err
			}
		}
		if a.HSL, err = readHSL(c); err != nil {
			return nil, err
		}
	}
	return hs, nil
}
