package psd

import "fmt"

// Linked layer kinds
const (
	LinkedLayerData     = "liFD"
	LinkedLayerExternal = "liFE"
	LinkedLayerAlias    = "liFA"
)

// LinkedLayer is one embedded or referenced smart object file
type LinkedLayer struct {
	Type     string
	Version  uint32
	UniqueID string
	Filename string
	FileType string
	Creator  string
	// FileOpen is the optional file open descriptor
	FileOpen *Descriptor
	// Contents holds the embedded file for liFD entries
	Contents []byte
	UUID     string
}

// LinkedLayers is an lnk2, lnkD or lnk3 block
type LinkedLayers struct {
	aliHeader
	Layers []*LinkedLayer
}

func (p *parser) parseLinkedLayers(h aliHeader, c *Cursor) (*LinkedLayers, error) {
	block := &LinkedLayers{aliHeader: h}

	for c.Remaining() >= 8 {
		length, err := c.ReadUint64()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			break
		}
		item, err := c.Sub(int(length))
		if err != nil {
			return nil, fmt.Errorf("failed to read linked layer %d: %w", len(block.Layers), err)
		}
		layer, err := p.parseLinkedLayer(item)
		if err != nil {
			return nil, fmt.Errorf("failed to read linked layer %d: %w", len(block.Layers), err)
		}
		block.Layers = append(block.Layers, layer)

		// the last item may omit its padding
		pad := (4 - int(length%4)) % 4
		if pad > c.Remaining() {
			break
		}
		if err := c.Skip(pad); err != nil {
			return nil, err
		}
	}
	return block, nil
}

func (p *parser) parseLinkedLayer(c *Cursor) (*LinkedLayer, error) {
	l := &LinkedLayer{}
	var err error

	if l.Type, err = c.ReadString(4); err != nil {
		return nil, err
	}
	switch l.Type {
	case LinkedLayerData, LinkedLayerExternal, LinkedLayerAlias:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLinkedLayerType, l.Type)
	}

	if l.Version, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	if l.UniqueID, err = c.ReadPascalString(0); err != nil {
		return nil, err
	}
	if l.Filename, err = c.ReadUnicodeString(0); err != nil {
		return nil, err
	}
	if l.FileType, err = c.ReadString(4); err != nil {
		return nil, err
	}
	if l.Creator, err = c.ReadString(4); err != nil {
		return nil, err
	}
	size, err := c.ReadUint64()
	if err != nil {
		return nil, err
	}
	hasDescriptor, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	if hasDescriptor != 0 {
		if l.FileOpen, err = p.descriptors(c).ParseVersioned(); err != nil {
			return nil, fmt.Errorf("failed to read file open descriptor: %w", err)
		}
	}

	// external and alias entries carry link details instead of contents;
	// those are left unread
	if l.Type != LinkedLayerData {
		return l, nil
	}

	if l.Contents, err = c.Take(int(size)); err != nil {
		return nil, fmt.Errorf("failed to read contents of %q: %w", l.Filename, err)
	}
	if l.Version > 5 && c.Remaining() >= 4 {
		if l.UUID, err = c.ReadUnicodeString(0); err != nil {
			return nil, err
		}
	}
	return l, nil
}
