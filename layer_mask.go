package psd

import (
	"fmt"

	"go.uber.org/zap"
)

// GlobalLayerMaskInfo is the optional block after the layer info
type GlobalLayerMaskInfo struct {
	OverlayColorSpace uint16
	ColorComponents   [4]uint16
	// Opacity is 0 for transparent and 100 for opaque
	Opacity uint16
	Kind    uint8
}

// LayerInfo holds the layer records in document order, top layer first,
// and the encoded channels of each record at the same index
type LayerInfo struct {
	// MergedAlphaIsTransparency is set when the layer count was negative
	MergedAlphaIsTransparency bool
	Records                   []*LayerRecord
	Channels                  []LayerChannels
}

// LayerMask represents the layer and mask information section
type LayerMask struct {
	LayerInfo           LayerInfo
	GlobalMask          *GlobalLayerMaskInfo
	AdditionalLayerInfo []AdditionalLayerInfo
}

func (p *parser) parseLayerMask(c *Cursor) (*LayerMask, error) {
	length, err := c.ReadLength(p.spec.LayerMaskLengthSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer mask length: %w", err)
	}
	p.log.Debug("section", zap.String("section", "layer_and_mask"), zap.Int("offset", c.Position()), zap.Int("length", length))

	lm := &LayerMask{}
	if length == 0 {
		return lm, nil
	}
	section, err := c.Sub(length)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer mask section: %w", err)
	}

	if lm.LayerInfo, err = p.parseLayerInfo(section); err != nil {
		return nil, fmt.Errorf("failed to parse layer info: %w", err)
	}
	if section.Remaining() < 4 {
		return lm, nil
	}

	if lm.GlobalMask, err = parseGlobalLayerMaskInfo(section); err != nil {
		return nil, fmt.Errorf("failed to parse global layer mask info: %w", err)
	}

	for {
		skipZeroPadding(section, 3)
		if section.Remaining() < 12 {
			break
		}
		sig, err := section.Clone().ReadString(4)
		if err != nil {
			return nil, err
		}
		if sig != "8BIM" && sig != "8B64" {
			p.log.Debug("trailing bytes in layer mask section", zap.Int("length", section.Remaining()))
			break
		}
		ali, err := p.parseAdditionalLayerInfo(section)
		if err != nil {
			return nil, fmt.Errorf("failed to parse global layer info %d: %w", len(lm.AdditionalLayerInfo), err)
		}
		lm.AdditionalLayerInfo = append(lm.AdditionalLayerInfo, ali)
	}
	return lm, nil
}

// skipZeroPadding advances past at most limit zero bytes
func skipZeroPadding(c *Cursor, limit int) {
	for i := 0; i < limit; i++ {
		b, err := c.Peek()
		if err != nil || b != 0 {
			return
		}
		_ = c.Skip(1)
	}
}

func (p *parser) parseLayerInfo(c *Cursor) (LayerInfo, error) {
	var info LayerInfo

	length, err := c.ReadLength(p.spec.LayerInfoLengthSize)
	if err != nil {
		return info, fmt.Errorf("failed to read layer info length: %w", err)
	}
	if length == 0 {
		return info, nil
	}
	section, err := c.Sub(length)
	if err != nil {
		return info, err
	}

	n, err := section.ReadInt16()
	if err != nil {
		return info, fmt.Errorf("failed to read layer count: %w", err)
	}
	// widened first, negating int16(-32768) overflows
	count := int(n)
	if count < 0 {
		info.MergedAlphaIsTransparency = true
		count = -count
	}

	info.Records = make([]*LayerRecord, count)
	for i := range info.Records {
		if info.Records[i], err = p.parseLayerRecord(section); err != nil {
			return info, fmt.Errorf("failed to read layer record %d: %w", i, err)
		}
	}

	info.Channels = make([]LayerChannels, count)
	for i, rec := range info.Records {
		if info.Channels[i], err = p.parseLayerChannels(section, rec); err != nil {
			return info, fmt.Errorf("failed to read channels of layer %q: %w", rec.Name, err)
		}
	}

	// records are stored bottom layer first
	for i, j := 0, len(info.Records)-1; i < j; i, j = i+1, j-1 {
		info.Records[i], info.Records[j] = info.Records[j], info.Records[i]
		info.Channels[i], info.Channels[j] = info.Channels[j], info.Channels[i]
	}
	return info, nil
}

// parseGlobalLayerMaskInfo returns nil when the block is empty
func parseGlobalLayerMaskInfo(c *Cursor) (*GlobalLayerMaskInfo, error) {
	length, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}
	body, err := c.Sub(int(length))
	if err != nil {
		return nil, err
	}

	g := &GlobalLayerMaskInfo{}
	if g.OverlayColorSpace, err = body.ReadUint16(); err != nil {
		return nil, err
	}
	for i := range g.ColorComponents {
		if g.ColorComponents[i], err = body.ReadUint16(); err != nil {
			return nil, err
		}
	}
	if g.Opacity, err = body.ReadUint16(); err != nil {
		return nil, err
	}
	if g.Kind, err = body.ReadUint8(); err != nil {
		return nil, err
	}
	return g, nil
}
