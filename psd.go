package psd

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Options configures parsing. The zero value is ready to use.
type Options struct {
	// Logger receives debug entries about skipped or unknown data.
	// Nil disables logging.
	Logger *zap.Logger
	// MaxDescriptorDepth bounds descriptor nesting. Zero means
	// DefaultMaxDescriptorDepth.
	MaxDescriptorDepth int
	// MaxEngineDataDepth bounds text engine data nesting. Zero means
	// DefaultMaxEngineDataDepth.
	MaxEngineDataDepth int
	// DecodeZip enables inflating ZIP compressed channels. When unset
	// those channels are kept and decoding them fails with
	// ErrUnsupportedCompression.
	DecodeZip bool
	// CopyChannelData copies channel bytes out of the input buffer.
	// By default they alias it and the buffer must not be modified
	// while the Document is in use.
	CopyChannelData bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MaxDescriptorDepth <= 0 {
		o.MaxDescriptorDepth = DefaultMaxDescriptorDepth
	}
	if o.MaxEngineDataDepth <= 0 {
		o.MaxEngineDataDepth = DefaultMaxEngineDataDepth
	}
	return o
}

// parser carries per-parse state. Nothing in it outlives a Parse call.
type parser struct {
	opts   Options
	log    *zap.Logger
	header *Header
	spec   FileVersionSpec
	codec  codec
}

func newParser(opts Options) *parser {
	opts = opts.withDefaults()
	return &parser{
		opts:  opts,
		log:   opts.Logger,
		spec:  psdSpec,
		codec: codec{zip: opts.DecodeZip},
	}
}

func (p *parser) descriptors(c *Cursor) *DescriptorParser {
	return newDescriptorParser(c, p.opts.MaxDescriptorDepth)
}

func (p *parser) channelData(b []byte) []byte {
	if !p.opts.CopyChannelData {
		return b
	}
	return bytes.Clone(b)
}

// Parse decodes a PSD or PSB document held in buf with default options
func Parse(buf []byte) (*Document, error) {
	return ParseWithOptions(buf, Options{})
}

// ParseWithOptions decodes a PSD or PSB document held in buf
func ParseWithOptions(buf []byte, opts Options) (*Document, error) {
	return newParser(opts).parse(buf)
}

// Open reads and parses the file at path. Only the first Options value
// is used.
func Open(path string, opts ...Options) (*Document, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return ParseWithOptions(buf, o)
}

func (p *parser) parse(buf []byte) (*Document, error) {
	c := NewCursor(buf)

	header, err := parseHeader(c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	p.header = header
	p.spec = header.Spec()
	p.codec.depth = int(header.Depth)
	p.log.Debug("parsed header",
		zap.Uint16("version", header.Version),
		zap.Uint32("width", header.Width),
		zap.Uint32("height", header.Height),
		zap.Stringer("mode", header.Mode),
	)

	resources, err := p.parseResources(c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resources: %w", err)
	}

	layerMask, err := p.parseLayerMask(c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layer mask: %w", err)
	}

	image, err := p.parseImageData(c)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image: %w", err)
	}

	tree, err := buildLayerTree(layerMask.LayerInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to build layer tree: %w", err)
	}

	doc := &Document{
		header:    header,
		resources: resources,
		layerMask: layerMask,
		image:     image,
		codec:     p.codec,
	}
	doc.self = doc
	doc.loadResources()
	doc.loadPatterns()
	doc.replay(tree)
	return doc, nil
}

// Document is a parsed PSD or PSB file and the root of its layer tree
type Document struct {
	treeNode

	header    *Header
	resources *ResourceSection
	layerMask *LayerMask
	image     *ImageData
	codec     codec

	guides              []Guide
	grid                *GridAndGuides
	slices              *SlicesResource
	iccProfile          []byte
	globalLightAngle    *int32
	globalLightAltitude *int32
	resolution          *ResolutionInfo
	patterns            []*Pattern
	layers              []*Layer
}

func (d *Document) loadResources() {
	for _, res := range d.resources.Resources {
		switch v := res.Payload.(type) {
		case *GridAndGuides:
			d.grid = v
			d.guides = v.Guides
		case *SlicesResource:
			d.slices = v
		case *ResolutionInfo:
			d.resolution = v
		case []byte:
			if res.ID == ResourceICCProfile {
				d.iccProfile = v
			}
		case int32:
			angle := v
			switch res.ID {
			case ResourceGlobalLightAngle:
				d.globalLightAngle = &angle
			case ResourceGlobalLightAltitude:
				d.globalLightAltitude = &angle
			}
		}
	}
}

func (d *Document) loadPatterns() {
	for _, key := range []string{KeyPattern, KeyPattern2, KeyPattern3} {
		for _, ali := range d.layerMask.AdditionalLayerInfo {
			if block, ok := ali.(*Patterns); ok && block.Key() == key {
				d.patterns = append(d.patterns, block.Patterns...)
			}
		}
	}
}

// replay rebuilds the nesting from the flattened tree. A missing frame
// ends the replay; buildLayerTree never produces one.
func (d *Document) replay(t *layerTree) {
	stack := []Node{d}
	var groupIndex, layerIndex int

	for _, order := range t.orders {
		parent := stack[len(stack)-1]
		switch order {
		case orderGroup:
			if groupIndex >= len(t.groups) {
				return
			}
			g := newGroup(t.groups[groupIndex], parent, d.codec)
			groupIndex++
			attach(parent, g)
			stack = append(stack, g)
		case orderLayer:
			if layerIndex >= len(t.layers) {
				return
			}
			l := newLayer(t.layers[layerIndex], parent, d.codec)
			layerIndex++
			attach(parent, l)
			d.layers = append(d.layers, l)
		case orderDone:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

// Kind returns NodeDocument
func (d *Document) Kind() NodeKind { return NodeDocument }

// Name returns "ROOT"
func (d *Document) Name() string { return "ROOT" }

// Opacity returns 255
func (d *Document) Opacity() uint8 { return 255 }

// ComposedOpacity returns 1
func (d *Document) ComposedOpacity() float64 { return 1 }

// Header returns a copy of the file header
func (d *Document) Header() Header { return *d.header }

// Width returns the document width in pixels
func (d *Document) Width() int { return int(d.header.Width) }

// Height returns the document height in pixels
func (d *Document) Height() int { return int(d.header.Height) }

// ChannelCount returns the number of channels of the merged image
func (d *Document) ChannelCount() int { return int(d.header.Channels) }

// BitDepth returns the bits per channel
func (d *Document) BitDepth() int { return int(d.header.Depth) }

// ColorMode returns the document color mode
func (d *Document) ColorMode() ColorMode { return d.header.Mode }

// Layers returns every layer in document order, top first
func (d *Document) Layers() []*Layer {
	return append([]*Layer(nil), d.layers...)
}

// LayerByName returns the first layer named name
func (d *Document) LayerByName(name string) (*Layer, bool) {
	for _, l := range d.layers {
		if l.Name() == name {
			return l, true
		}
	}
	return nil, false
}

// Guides returns the ruler guides
func (d *Document) Guides() []Guide {
	return append([]Guide(nil), d.guides...)
}

// Grid returns the grid and guides resource, or nil
func (d *Document) Grid() *GridAndGuides { return d.grid }

// Slices returns the document slices
func (d *Document) Slices() []Slice {
	if d.slices == nil {
		return nil
	}
	return append([]Slice(nil), d.slices.Slices...)
}

// SlicesResource returns the raw slices resource, or nil
func (d *Document) SlicesResource() *SlicesResource { return d.slices }

// ICCProfile returns the embedded color profile, or nil
func (d *Document) ICCProfile() []byte { return bytes.Clone(d.iccProfile) }

// GlobalLightAngle returns the global light angle in degrees
func (d *Document) GlobalLightAngle() (int32, bool) {
	if d.globalLightAngle == nil {
		return 0, false
	}
	return *d.globalLightAngle, true
}

// GlobalLightAltitude returns the global light altitude in degrees
func (d *Document) GlobalLightAltitude() (int32, bool) {
	if d.globalLightAltitude == nil {
		return 0, false
	}
	return *d.globalLightAltitude, true
}

// Resolution returns the resolution info resource
func (d *Document) Resolution() (ResolutionInfo, bool) {
	if d.resolution == nil {
		return ResolutionInfo{}, false
	}
	return *d.resolution, true
}

// Resources returns every image resource block in file order
func (d *Document) Resources() []*Resource {
	return append([]*Resource(nil), d.resources.Resources...)
}

// UnknownResources returns the resource blocks this package does not decode
func (d *Document) UnknownResources() []*Resource {
	var out []*Resource
	for _, res := range d.resources.Resources {
		if res.Payload == nil {
			out = append(out, res)
		}
	}
	return out
}

// AdditionalLayerInfo returns the global additional layer info blocks
func (d *Document) AdditionalLayerInfo() []AdditionalLayerInfo {
	return append([]AdditionalLayerInfo(nil), d.layerMask.AdditionalLayerInfo...)
}

// GlobalLayerMask returns the global layer mask info, or nil
func (d *Document) GlobalLayerMask() *GlobalLayerMaskInfo { return d.layerMask.GlobalMask }

// MergedAlphaIsTransparency reports whether the first alpha channel of
// the merged image holds its transparency
func (d *Document) MergedAlphaIsTransparency() bool {
	return d.layerMask.LayerInfo.MergedAlphaIsTransparency
}

// Patterns returns the patterns of the Patt, Pat2 and Pat3 blocks in that
// order
func (d *Document) Patterns() []*Pattern {
	return append([]*Pattern(nil), d.patterns...)
}

// ImageData returns the merged image channels
func (d *Document) ImageData() *ImageData { return d.image }

// Composite decodes the merged image into RGBA. The document is always
// fully opaque so the flags only matter for layers.
func (d *Document) Composite(applyOpacity, composed bool) ([]byte, error) {
	if d.image == nil || d.image.Red == nil {
		return nil, fmt.Errorf("%w: merged image has no color channel", ErrChannelNotFound)
	}
	rgba, err := d.codec.generateRGBA(d.Width(), d.Height(), *d.image.Red, d.image.Green, d.image.Blue, d.image.Alpha)
	if err != nil {
		return nil, err
	}
	if applyOpacity {
		return ApplyOpacity(rgba, 255)
	}
	return rgba, nil
}

// DecodePattern decodes an RGB pattern into a width*height*4 RGBA buffer
func (d *Document) DecodePattern(pt *Pattern) ([]byte, error) {
	if pt.ImageMode != ColorModeRGB {
		return nil, fmt.Errorf("%w: pattern %q is %s", ErrInvalidColorMode, pt.Name, pt.ImageMode)
	}
	channel := func(i int) *ChannelBytes {
		if ch, ok := pt.Data.Channels[i]; ok {
			return &ch.ChannelBytes
		}
		return nil
	}

	red := channel(0)
	if red == nil {
		return nil, fmt.Errorf("%w: pattern %q has no red channel", ErrMissingColorChannel, pt.Name)
	}
	rect := pt.Data.Rectangle
	// pattern planes carry their own depth
	c := codec{zip: d.codec.zip, depth: int(pt.Data.Channels[0].PixelDepth)}
	return c.generateRGBA(rect.Width(), rect.Height(), *red, channel(1), channel(2), channel(3))
}
