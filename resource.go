package psd

import (
	"fmt"

	"go.uber.org/zap"
)

// Image resource ids decoded by this package
const (
	ResourceResolutionInfo      int16 = 1005
	ResourceGridAndGuides       int16 = 1032
	ResourceGlobalLightAngle    int16 = 1037
	ResourceICCProfile          int16 = 1039
	ResourceGlobalLightAltitude int16 = 1049
	ResourceSlices              int16 = 1050
)

const resourceSignature = "8BIM"

// Resource is one image resource block. Payload holds the decoded value
// for known ids (*GridAndGuides, *SlicesResource, []byte for the ICC
// profile, *ResolutionInfo, int32 for global light) and nil otherwise.
type Resource struct {
	ID      int16
	Name    string
	Data    []byte
	Payload interface{}
}

// ResourceSection represents the image resources section
type ResourceSection struct {
	Resources []*Resource
}

// Get returns the first resource with id
func (r *ResourceSection) Get(id int16) (*Resource, bool) {
	for _, res := range r.Resources {
		if res.ID == id {
			return res, true
		}
	}
	return nil, false
}

// Rectangle represents a bounding box
type Rectangle struct {
	Top    int32
	Left   int32
	Bottom int32
	Right  int32
}

// Width returns Right-Left
func (r Rectangle) Width() int { return int(r.Right) - int(r.Left) }

// Height returns Bottom-Top
func (r Rectangle) Height() int { return int(r.Bottom) - int(r.Top) }

// SliceOrigin says how a slice was created
type SliceOrigin int32

const (
	SliceOriginAutoGenerated  SliceOrigin = 0
	SliceOriginLayerGenerated SliceOrigin = 1
	SliceOriginUserGenerated  SliceOrigin = 2
)

// Slice represents a slice in the PSD
type Slice struct {
	ID                uint32
	GroupID           uint32
	Origin            SliceOrigin
	AssociatedLayerID uint32
	Name              string
	Type              uint32
	Bounds            Rectangle
	URL               string
	Target            string
	Message           string
	Alt               string
	CellTextIsHTML    bool
	CellText          string
	HorizontalAlign   int32
	VerticalAlign     int32
	// Color is alpha, red, green, blue
	Color [4]uint8
}

// SlicesResource represents the slices resource (ID 1050)
type SlicesResource struct {
	Version uint32
	Bounds  Rectangle
	Name    string
	Slices  []Slice
	// Descriptor is set for version 7 and 8, and for version 6 when a
	// trailing descriptor is present
	Descriptor *Descriptor
}

// GuideDirection is the orientation of a guide
type GuideDirection uint8

const (
	GuideVertical   GuideDirection = 0
	GuideHorizontal GuideDirection = 1
)

// Guide represents a guide in the PSD
type Guide struct {
	// Position is in 1/32 pixel units
	Position  int32
	Direction GuideDirection
}

// GridAndGuides represents the grid and guides resource (ID 1032)
type GridAndGuides struct {
	GridSizeX uint32
	GridSizeY uint32
	Guides    []Guide
}

// ResolutionInfo represents resource 1005
type ResolutionInfo struct {
	Horizontal     float64
	HorizontalUnit uint16
	WidthUnit      uint16
	Vertical       float64
	VerticalUnit   uint16
	HeightUnit     uint16
}

func (p *parser) parseResources(c *Cursor) (*ResourceSection, error) {
	length, err := c.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("failed to read resources length: %w", err)
	}
	section, err := c.Sub(int(length))
	if err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}

	r := &ResourceSection{}
	for section.Remaining() > 0 {
		res, err := p.parseResource(section)
		if err != nil {
			return nil, fmt.Errorf("failed to parse resource %d: %w", len(r.Resources), err)
		}
		r.Resources = append(r.Resources, res)
	}
	return r, nil
}

func (p *parser) parseResource(c *Cursor) (*Resource, error) {
	sig, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}
	if sig != resourceSignature {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResourceSignature, sig)
	}

	res := &Resource{}
	if res.ID, err = c.ReadInt16(); err != nil {
		return nil, err
	}
	if res.Name, err = c.ReadPascalString(2); err != nil {
		return nil, err
	}
	size, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	if res.Data, err = c.Take(int(size)); err != nil {
		return nil, err
	}
	if err := c.Padding(int(size), 2); err != nil {
		return nil, err
	}

	body := NewCursor(res.Data)
	switch res.ID {
	case ResourceGridAndGuides:
		res.Payload, err = parseGridAndGuides(body)
	case ResourceSlices:
		res.Payload, err = p.parseSlices(body)
	case ResourceICCProfile:
		res.Payload = res.Data
	case ResourceResolutionInfo:
		res.Payload, err = parseResolutionInfo(body)
	case ResourceGlobalLightAngle, ResourceGlobalLightAltitude:
		res.Payload, err = body.ReadInt32()
	default:
		p.log.Debug("skipping image resource", zap.Int16("id", res.ID), zap.Uint32("length", size))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode resource %d: %w", res.ID, err)
	}
	return res, nil
}

func parseGridAndGuides(c *Cursor) (*GridAndGuides, error) {
	version, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGridVersion, version)
	}

	g := &GridAndGuides{}
	if g.GridSizeX, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	if g.GridSizeY, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	count, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}

	g.Guides = []Guide{}
	for i := uint32(0); i < count; i++ {
		position, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		direction, err := c.ReadUint8()
		if err != nil {
			return nil, err
		}
		if direction > uint8(GuideHorizontal) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidGuideDirection, direction)
		}
		g.Guides = append(g.Guides, Guide{Position: position, Direction: GuideDirection(direction)})
	}
	return g, nil
}

func parseResolutionInfo(c *Cursor) (*ResolutionInfo, error) {
	r := &ResolutionInfo{}
	var err error
	if r.Horizontal, err = c.ReadFixedPoint32(); err != nil {
		return nil, err
	}
	if r.HorizontalUnit, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if r.WidthUnit, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if r.Vertical, err = c.ReadFixedPoint32(); err != nil {
		return nil, err
	}
	if r.VerticalUnit, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if r.HeightUnit, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *parser) parseSlices(c *Cursor) (*SlicesResource, error) {
	version, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}

	result := &SlicesResource{Version: version}
	switch version {
	case 6:
		if result.Bounds, err = readRectangle(c); err != nil {
			return nil, err
		}
		if result.Name, err = c.ReadUnicodeString(0); err != nil {
			return nil, err
		}
		count, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			s, err := readSliceV6(c)
			if err != nil {
				return nil, fmt.Errorf("failed to read slice %d: %w", i, err)
			}
			result.Slices = append(result.Slices, s)
		}
		if c.Remaining() > 0 {
			if result.Descriptor, err = p.descriptors(c).ParseVersioned(); err != nil {
				return nil, err
			}
		}
	case 7, 8:
		if result.Descriptor, err = p.descriptors(c).ParseVersioned(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlicesVersion, version)
	}

	if result.Descriptor != nil {
		slices, err := slicesFromDescriptor(result.Descriptor)
		if err != nil {
			return nil, err
		}
		result.Slices = slices
	}
	return result, nil
}

// readRectangle reads top, left, bottom, right
func readRectangle(c *Cursor) (Rectangle, error) {
	var r Rectangle
	var err error
	for _, v := range []*int32{&r.Top, &r.Left, &r.Bottom, &r.Right} {
		if *v, err = c.ReadInt32(); err != nil {
			return r, err
		}
	}
	return r, nil
}

func readSliceV6(c *Cursor) (Slice, error) {
	var s Slice
	var err error

	if s.ID, err = c.ReadUint32(); err != nil {
		return s, err
	}
	if s.GroupID, err = c.ReadUint32(); err != nil {
		return s, err
	}
	origin, err := c.ReadUint32()
	if err != nil {
		return s, err
	}
	s.Origin = SliceOrigin(origin)
	if s.Origin == SliceOriginLayerGenerated {
		if s.AssociatedLayerID, err = c.ReadUint32(); err != nil {
			return s, err
		}
	}
	if s.Name, err = c.ReadUnicodeString(0); err != nil {
		return s, err
	}
	if s.Type, err = c.ReadUint32(); err != nil {
		return s, err
	}
	for _, v := range []*int32{&s.Bounds.Left, &s.Bounds.Top, &s.Bounds.Right, &s.Bounds.Bottom} {
		if *v, err = c.ReadInt32(); err != nil {
			return s, err
		}
	}
	for _, v := range []*string{&s.URL, &s.Target, &s.Message, &s.Alt} {
		if *v, err = c.ReadUnicodeString(0); err != nil {
			return s, err
		}
	}
	html, err := c.ReadUint8()
	if err != nil {
		return s, err
	}
	s.CellTextIsHTML = html != 0
	if s.CellText, err = c.ReadUnicodeString(0); err != nil {
		return s, err
	}
	if s.HorizontalAlign, err = c.ReadInt32(); err != nil {
		return s, err
	}
	if s.VerticalAlign, err = c.ReadInt32(); err != nil {
		return s, err
	}
	color, err := c.Take(4)
	if err != nil {
		return s, err
	}
	copy(s.Color[:], color)
	return s, nil
}

var sliceOrigins = map[string]SliceOrigin{
	"autoGenerated":  SliceOriginAutoGenerated,
	"layerGenerated": SliceOriginLayerGenerated,
	"userGenerated":  SliceOriginUserGenerated,
}

// slicesFromDescriptor reads the "slices" list of a slices descriptor
func slicesFromDescriptor(desc *Descriptor) ([]Slice, error) {
	list, err := desc.GetList("slices")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlices, err)
	}

	slices := make([]Slice, 0, len(list))
	for i, entry := range list {
		sd, ok := entry.(*Descriptor)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d is %T", ErrInvalidSlices, i, entry)
		}
		s, err := sliceFromDescriptor(sd)
		if err != nil {
			return nil, fmt.Errorf("failed to read slice %d: %w", i, err)
		}
		slices = append(slices, s)
	}
	return slices, nil
}

func sliceFromDescriptor(d *Descriptor) (Slice, error) {
	var s Slice

	origin, err := d.GetEnum("origin")
	if err != nil {
		return s, err
	}
	if origin.TypeID != "ESliceOrigin" {
		return s, fmt.Errorf("%w: origin enum type %q", ErrInvalidSlices, origin.TypeID)
	}
	o, ok := sliceOrigins[origin.Value]
	if !ok {
		return s, fmt.Errorf("%w: origin %q", ErrInvalidSlices, origin.Value)
	}
	s.Origin = o

	bounds, err := d.GetDescriptor("bounds")
	if err != nil {
		return s, err
	}
	for key, v := range map[string]*int32{"Top ": &s.Bounds.Top, "Left": &s.Bounds.Left, "Btom": &s.Bounds.Bottom, "Rght": &s.Bounds.Right} {
		if *v, err = bounds.GetInt(key); err != nil {
			return s, err
		}
	}

	// optional fields
	if id, err := d.GetInt("sliceID"); err == nil {
		s.ID = uint32(id)
	}
	if id, err := d.GetInt("groupID"); err == nil {
		s.GroupID = uint32(id)
	}
	if name, err := d.GetString("Nm  "); err == nil {
		s.Name = name
	}
	for key, v := range map[string]*string{"url": &s.URL, "null": &s.Target, "Msge": &s.Message, "altTag": &s.Alt, "cellText": &s.CellText} {
		if str, err := d.GetString(key); err == nil {
			*v = str
		}
	}
	if html, err := d.GetBool("cellTextIsHTML"); err == nil {
		s.CellTextIsHTML = html
	}
	return s, nil
}
