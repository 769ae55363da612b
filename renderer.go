package psd

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"
)

// RendererOptions contains options for rendering
type RendererOptions struct {
	ExcludeTextLayers bool // Exclude text layers from rendering
	IncludeHidden     bool // Render hidden layers and groups too
}

// Renderer composites the visible layers below a node onto one canvas
// using each layer's blend mode and composed opacity
type Renderer struct {
	node    Node
	bounds  Rectangle
	options RendererOptions
	// pixels holds non-premultiplied RGBA in 0..1
	pixels []float64
}

// NewRenderer creates a renderer for a *Document or *Group. Documents
// render onto a canvas of the document size, groups onto their bounds.
func NewRenderer(node Node, options RendererOptions) *Renderer {
	var bounds Rectangle
	switch n := node.(type) {
	case *Document:
		bounds = Rectangle{Right: int32(n.Width()), Bottom: int32(n.Height())}
	case *Group:
		bounds = n.Bounds()
	case *Layer:
		bounds = n.Bounds()
	}
	return &Renderer{node: node, bounds: bounds, options: options}
}

// Flatten renders the visible layers onto a document sized canvas
func (d *Document) Flatten() (*image.RGBA, error) {
	return NewRenderer(d, RendererOptions{}).Render()
}

// Flatten renders the visible layers of the group onto a canvas covering
// the group bounds
func (g *Group) Flatten() (*image.RGBA, error) {
	return NewRenderer(g, RendererOptions{}).Render()
}

// Render renders the node and all its children to an image
func (r *Renderer) Render() (*image.RGBA, error) {
	if err := nodeCodec(r.node).checkDepth(); err != nil {
		return nil, err
	}
	w, h := r.bounds.Width(), r.bounds.Height()
	canvas := image.NewRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	if w <= 0 || h <= 0 {
		return canvas, nil
	}

	r.pixels = make([]float64, w*h*4)
	if err := r.renderNode(r.node); err != nil {
		return nil, err
	}

	for i := 0; i < w*h; i++ {
		a := r.pixels[i*4+3]
		for c := 0; c < 3; c++ {
			canvas.Pix[i*4+c] = toByte(r.pixels[i*4+c] * a)
		}
		canvas.Pix[i*4+3] = toByte(a)
	}
	return canvas, nil
}

func nodeCodec(node Node) codec {
	switch n := node.(type) {
	case *Document:
		return n.codec
	case *Group:
		return n.codec
	case *Layer:
		return n.codec
	}
	return codec{}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(clamp(v) * 255))
}

// renderNode renders children bottom to top
func (r *Renderer) renderNode(node Node) error {
	switch n := node.(type) {
	case *Document:
		return r.renderChildren(n.children)
	case *Group:
		if n.Hidden() && !r.options.IncludeHidden {
			return nil
		}
		return r.renderChildren(n.children)
	case *Layer:
		if n.Hidden() && !r.options.IncludeHidden {
			return nil
		}
		if _, isText := n.Text(); isText && r.options.ExcludeTextLayers {
			return nil
		}
		return r.renderLayer(n)
	}
	return nil
}

func (r *Renderer) renderChildren(children []Node) error {
	for i := len(children) - 1; i >= 0; i-- {
		if err := r.renderNode(children[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderLayer(l *Layer) error {
	if l.Bounds().Area() == 0 {
		return nil
	}
	rgba, err := l.Composite(true, true)
	if errors.Is(err, ErrChannelNotFound) {
		// adjustment and fill layers carry no pixels
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to composite layer %q: %w", l.Name(), err)
	}

	blend := blendFuncFor(l.BlendMode())
	cw, ch := r.bounds.Width(), r.bounds.Height()
	lw, lh := l.Width(), l.Height()
	offsetX := l.Left() - int(r.bounds.Left)
	offsetY := l.Top() - int(r.bounds.Top)

	for y := 0; y < lh; y++ {
		dy := y + offsetY
		if dy < 0 || dy >= ch {
			continue
		}
		for x := 0; x < lw; x++ {
			dx := x + offsetX
			if dx < 0 || dx >= cw {
				continue
			}
			si := (y*lw + x) * 4
			sa := float64(rgba[si+3]) / 255
			if sa == 0 {
				continue
			}
			src := rgb{float64(rgba[si]) / 255, float64(rgba[si+1]) / 255, float64(rgba[si+2]) / 255}

			di := (dy*cw + dx) * 4
			da := r.pixels[di+3]
			dst := rgb{r.pixels[di], r.pixels[di+1], r.pixels[di+2]}

			// the blend result only applies where the backdrop is opaque
			mixed := blend(src, dst)
			oa := sa + da*(1-sa)
			for c := 0; c < 3; c++ {
				s := (1-da)*src[c] + da*mixed[c]
				r.pixels[di+c] = (sa*s + da*dst[c]*(1-sa)) / oa
			}
			r.pixels[di+3] = oa
		}
	}
	return nil
}

// NRGBA wraps a width*height*4 buffer from Composite, UserMask or
// DecodePattern as an image without copying it
func NRGBA(width, height int, rgba []byte) *image.NRGBA {
	return &image.NRGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
}

// EncodePNG writes a width*height*4 RGBA buffer as PNG
func EncodePNG(w io.Writer, width, height int, rgba []byte) error {
	if len(rgba) < width*height*4 {
		return fmt.Errorf("%w: %d bytes for %dx%d pixels", ErrInvalidPixelCount, len(rgba), width, height)
	}
	return png.Encode(w, NRGBA(width, height, rgba))
}

// SavePNG encodes img and saves it as a PNG file
func SavePNG(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return file.Close()
}
