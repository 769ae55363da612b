package psd

import (
	"fmt"
)

// TypeToolObjectSetting is the TySh block of a text layer
type TypeToolObjectSetting struct {
	aliHeader
	Version     uint16
	Transform   Transform
	TextVersion uint16
	TextData    *Descriptor
	WarpVersion uint16
	WarpData    *Descriptor
	// Text bounds
	Left, Top, Right, Bottom float64
}

// Transform represents the transformation matrix
type Transform struct {
	XX float64
	XY float64
	YX float64
	YY float64
	TX float64
	TY float64
}

// Text returns the text content, or "" when the text descriptor has none
func (t *TypeToolObjectSetting) Text() string {
	s, _ := t.TextData.GetString("Txt ")
	return s
}

func (p *parser) parseTypeTool(h aliHeader, c *Cursor) (*TypeToolObjectSetting, error) {
	t := &TypeToolObjectSetting{aliHeader: h}
	var err error

	if t.Version, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if t.Version != 1 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidTypeToolObjectSetting, t.Version)
	}

	m := &t.Transform
	for _, v := range []*float64{&m.XX, &m.XY, &m.YX, &m.YY, &m.TX, &m.TY} {
		if *v, err = c.ReadFloat64(); err != nil {
			return nil, fmt.Errorf("failed to read transform: %w", err)
		}
	}

	if t.TextVersion, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if t.TextVersion != 50 {
		return nil, fmt.Errorf("%w: text version %d", ErrInvalidTypeToolObjectSetting, t.TextVersion)
	}
	if t.TextData, err = p.descriptors(c).ParseVersioned(); err != nil {
		return nil, fmt.Errorf("failed to read text data: %w", err)
	}

	if t.WarpVersion, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if t.WarpVersion != 1 {
		return nil, fmt.Errorf("%w: warp version %d", ErrInvalidTypeToolObjectSetting, t.WarpVersion)
	}
	if t.WarpData, err = p.descriptors(c).ParseVersioned(); err != nil {
		return nil, fmt.Errorf("failed to read warp data: %w", err)
	}

	// Adobe documents these as 4 byte integers; files carry doubles
	for _, v := range []*float64{&t.Left, &t.Top, &t.Right, &t.Bottom} {
		if *v, err = c.ReadFloat64(); err != nil {
			return nil, fmt.Errorf("failed to read text bounds: %w", err)
		}
	}
	return t, nil
}
