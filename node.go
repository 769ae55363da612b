package psd

import (
	"fmt"
	"strings"
)

// NodeKind tells documents, groups and layers apart
type NodeKind uint8

const (
	NodeDocument NodeKind = iota
	NodeGroup
	NodeLayer
)

func (k NodeKind) String() string {
	switch k {
	case NodeDocument:
		return "document"
	case NodeGroup:
		return "group"
	case NodeLayer:
		return "layer"
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// Node is an element of the layer tree: *Document, *Group or *Layer
type Node interface {
	Kind() NodeKind
	Name() string
	Opacity() uint8
	ComposedOpacity() float64
	Parent() Node
	Children() []Node
}

// treeNode holds the links shared by every node type. self points back
// at the embedding node.
type treeNode struct {
	self     Node
	parent   Node
	children []Node
}

func attach(parent, child Node) {
	switch p := parent.(type) {
	case *Document:
		p.children = append(p.children, child)
	case *Group:
		p.children = append(p.children, child)
	}
}

// Parent returns the enclosing node, or nil for the document
func (n *treeNode) Parent() Node { return n.parent }

// Children returns the direct children, top first
func (n *treeNode) Children() []Node {
	return append([]Node(nil), n.children...)
}

// Descendants returns all nodes below this one in pre-order
func (n *treeNode) Descendants() []Node {
	var result []Node
	n.Walk(func(node Node) bool {
		if node != n.self {
			result = append(result, node)
		}
		return true
	})
	return result
}

// Walk visits this node and its descendants in pre-order. Returning false
// from fn skips the children of that node.
func (n *treeNode) Walk(fn func(Node) bool) {
	walk(n.self, fn)
}

func walk(node Node, fn func(Node) bool) {
	if !fn(node) {
		return
	}
	for _, child := range childrenOf(node) {
		walk(child, fn)
	}
}

func childrenOf(node Node) []Node {
	switch v := node.(type) {
	case *Document:
		return v.children
	case *Group:
		return v.children
	}
	return nil
}

// Depth returns the number of ancestors. The document is at depth 0.
func (n *treeNode) Depth() int {
	depth := 0
	for p := n.parent; p != nil; p = p.Parent() {
		depth++
	}
	return depth
}

// Path returns the names from the top level down to this node joined by
// "/". The document's path is empty.
func (n *treeNode) Path() string {
	var parts []string
	var current Node = n.self
	for current != nil && current.Parent() != nil {
		parts = append([]string{current.Name()}, parts...)
		current = current.Parent()
	}
	return strings.Join(parts, "/")
}

// Find returns the nodes below this one whose names match path, relative
// to this node. Names may repeat so several nodes can match.
func (n *treeNode) Find(path string) []Node {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return findAtPath(n.self, strings.Split(path, "/"))
}

func findAtPath(node Node, parts []string) []Node {
	if len(parts) == 0 {
		return []Node{node}
	}
	var results []Node
	for _, child := range childrenOf(node) {
		if child.Name() == parts[0] {
			results = append(results, findAtPath(child, parts[1:])...)
		}
	}
	return results
}

// Group is a layer folder
type Group struct {
	treeNode
	record   *LayerRecord
	channels LayerChannels
	id       int
	codec    codec
}

func newGroup(f groupFrame, parent Node, c codec) *Group {
	g := &Group{record: f.record, channels: f.channels, id: f.id, codec: c}
	g.self = g
	g.parent = parent
	return g
}

// Kind returns NodeGroup
func (g *Group) Kind() NodeKind { return NodeGroup }

// ID returns the group id, counted from 1 in opening order
func (g *Group) ID() int { return g.id }

// Name returns the folder name
func (g *Group) Name() string {
	if g.record == nil {
		return ""
	}
	return g.record.Name
}

// Opacity returns the folder opacity, or 0 without a record
func (g *Group) Opacity() uint8 {
	if g.record == nil {
		return 0
	}
	return g.record.Opacity
}

// ComposedOpacity multiplies the opacities of this group and its
// ancestors, scaled to 0..1
func (g *Group) ComposedOpacity() float64 {
	return g.parent.ComposedOpacity() * (float64(g.Opacity()) / 255)
}

// BlendMode returns the folder blend mode, pass through without a record
func (g *Group) BlendMode() BlendMode {
	if g.record == nil {
		return BlendPassThrough
	}
	return g.record.BlendMode
}

// Hidden reports whether the folder visibility is turned off
func (g *Group) Hidden() bool { return g.record != nil && g.record.Hidden }

// Clipping returns the folder clipping, base without a record
func (g *Group) Clipping() Clipping {
	if g.record == nil {
		return ClippingBase
	}
	return g.record.Clipping
}

// MaskData returns the folder mask description, zero without a record
func (g *Group) MaskData() MaskData {
	if g.record == nil {
		return MaskData{}
	}
	return g.record.Mask
}

// AdditionalLayerInfo returns the blocks attached to the folder record
func (g *Group) AdditionalLayerInfo() []AdditionalLayerInfo {
	if g.record == nil {
		return nil
	}
	return append([]AdditionalLayerInfo(nil), g.record.AdditionalLayerInfo...)
}

// Bounds returns the union of the bounds of the non-empty layers below
// the group, or a zero Rectangle when there are none
func (g *Group) Bounds() Rectangle {
	var r Rectangle
	found := false
	g.Walk(func(node Node) bool {
		l, ok := node.(*Layer)
		if !ok {
			return true
		}
		b := l.Bounds()
		if b.Area() == 0 {
			return true
		}
		if !found {
			r, found = b, true
			return true
		}
		r.Top = min(r.Top, b.Top)
		r.Left = min(r.Left, b.Left)
		r.Bottom = max(r.Bottom, b.Bottom)
		r.Right = max(r.Right, b.Right)
		return true
	})
	return r
}

// UserMask decodes the folder's user supplied mask as gray RGBA. It
// returns nil when there is no mask.
func (g *Group) UserMask() ([]byte, error) {
	return decodeMask(g.codec, g.channels, ChannelUserSuppliedLayerMask, g.MaskData().Rectangle)
}

// RealUserMask decodes the folder's real user supplied mask as gray RGBA.
// It returns nil when there is no such mask.
func (g *Group) RealUserMask() ([]byte, error) {
	rd := g.MaskData().RealData
	if rd == nil {
		return nil, nil
	}
	return decodeMask(g.codec, g.channels, ChannelRealUserSuppliedLayerMask, rd.Rectangle)
}

// Layer is a pixel, text or adjustment layer
type Layer struct {
	treeNode
	record   *LayerRecord
	channels LayerChannels
	groupID  int
	codec    codec
}

func newLayer(f layerFrame, parent Node, c codec) *Layer {
	l := &Layer{record: f.record, channels: f.channels, groupID: f.groupID, codec: c}
	l.self = l
	l.parent = parent
	return l
}

// Kind returns NodeLayer
func (l *Layer) Kind() NodeKind { return NodeLayer }

// Name returns the unicode name when present, else the pascal name
func (l *Layer) Name() string { return l.record.Name }

// Top returns the first row of the layer
func (l *Layer) Top() int { return int(l.record.Top) }

// Left returns the first column of the layer
func (l *Layer) Left() int { return int(l.record.Left) }

// Bottom returns the last row of the layer, inclusive
func (l *Layer) Bottom() int { return int(l.record.Bottom) }

// Right returns the last column of the layer, inclusive
func (l *Layer) Right() int { return int(l.record.Right) }

// Width returns Right-Left+1
func (l *Layer) Width() int { return l.record.Width() }

// Height returns Bottom-Top+1
func (l *Layer) Height() int { return l.record.Height() }

// Bounds returns the layer rectangle with exclusive Bottom and Right
func (l *Layer) Bounds() Rectangle {
	r := l.record
	if r.Right == 0 && r.Bottom == 0 && r.Left == 0 && r.Top == 0 {
		return Rectangle{}
	}
	return Rectangle{Top: r.Top, Left: r.Left, Bottom: r.Bottom + 1, Right: r.Right + 1}
}

// Opacity returns the layer opacity, 0..255
func (l *Layer) Opacity() uint8 { return l.record.Opacity }

// ComposedOpacity multiplies the opacities of this layer and its
// ancestors, scaled to 0..1
func (l *Layer) ComposedOpacity() float64 {
	return l.parent.ComposedOpacity() * (float64(l.record.Opacity) / 255)
}

// BlendMode returns the layer blend mode
func (l *Layer) BlendMode() BlendMode { return l.record.BlendMode }

// Clipping returns whether the layer clips to the layer below
func (l *Layer) Clipping() Clipping { return l.record.Clipping }

// Hidden reports whether the layer visibility is turned off
func (l *Layer) Hidden() bool { return l.record.Hidden }

// TransparencyLocked reports whether transparent pixels are protected
func (l *Layer) TransparencyLocked() bool { return l.record.TransparencyLocked }

// MaskData returns the layer mask description
func (l *Layer) MaskData() MaskData { return l.record.Mask }

// TextProperties returns the engine data of a text layer, or nil
func (l *Layer) TextProperties() *EngineData { return l.record.EngineData }

// GroupID returns the id of the enclosing group, or 0 at the top level
func (l *Layer) GroupID() int { return l.groupID }

// Text returns the content of a text layer
func (l *Layer) Text() (string, bool) {
	if l.record.Text == nil {
		return "", false
	}
	return *l.record.Text, true
}

// AdditionalLayerInfo returns the blocks attached to the layer record
func (l *Layer) AdditionalLayerInfo() []AdditionalLayerInfo {
	return append([]AdditionalLayerInfo(nil), l.record.AdditionalLayerInfo...)
}

// Channel returns the encoded bytes of one channel
func (l *Layer) Channel(kind ChannelKind) (ChannelBytes, bool) {
	ch, ok := l.channels[kind]
	return ch, ok
}

// Composite decodes the layer into a Width*Height*4 RGBA buffer. With
// applyOpacity the alpha is scaled by the layer opacity, or by the
// composed opacity when composed is set.
func (l *Layer) Composite(applyOpacity, composed bool) ([]byte, error) {
	red, ok := l.channels[ChannelRed]
	if !ok {
		return nil, fmt.Errorf("%w: layer %q has no red channel", ErrChannelNotFound, l.Name())
	}
	opt := func(kind ChannelKind) *ChannelBytes {
		if ch, ok := l.channels[kind]; ok {
			return &ch
		}
		return nil
	}

	rgba, err := l.codec.generateRGBA(l.Width(), l.Height(), red,
		opt(ChannelGreen), opt(ChannelBlue), opt(ChannelTransparencyMask))
	if err != nil {
		return nil, err
	}
	if !applyOpacity {
		return rgba, nil
	}
	if composed {
		return ApplyOpacity(rgba, l.ComposedOpacity()*255)
	}
	return ApplyOpacity(rgba, float64(l.Opacity()))
}

// UserMask decodes the user supplied layer mask as gray RGBA over the
// mask rectangle. It returns nil when there is no mask.
func (l *Layer) UserMask() ([]byte, error) {
	return decodeMask(l.codec, l.channels, ChannelUserSuppliedLayerMask, l.record.Mask.Rectangle)
}

// RealUserMask decodes the real user supplied layer mask as gray RGBA.
// It returns nil when there is no such mask.
func (l *Layer) RealUserMask() ([]byte, error) {
	rd := l.record.Mask.RealData
	if rd == nil {
		return nil, nil
	}
	return decodeMask(l.codec, l.channels, ChannelRealUserSuppliedLayerMask, rd.Rectangle)
}

func decodeMask(c codec, channels LayerChannels, kind ChannelKind, rect Rectangle) ([]byte, error) {
	ch, ok := channels[kind]
	if !ok || rect.Area() == 0 {
		return nil, nil
	}
	return c.decodeGrayscale(rect.Area(), ch)
}
