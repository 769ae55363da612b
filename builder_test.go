package psd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

func be(buf *bytes.Buffer, v interface{}) {
	if err := binary.Write(buf, binary.BigEndian, v); err != nil {
		panic(err)
	}
}

func writePascalString(buf *bytes.Buffer, s string, align int) {
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	if align > 1 {
		for n := len(s) + 1; n%align != 0; n++ {
			buf.WriteByte(0)
		}
	}
}

func writeUnicodeString(buf *bytes.Buffer, s string) {
	units := utf16.Encode([]rune(s))
	be(buf, uint32(len(units)))
	be(buf, units)
}

func writeString(buf *bytes.Buffer, s string) {
	be(buf, uint32(len(s)))
	buf.WriteString(s)
}

// writeKey writes a descriptor id string, using the zero length form for
// four character keys
func writeKey(buf *bytes.Buffer, k string) {
	if len(k) == 4 {
		be(buf, uint32(0))
		buf.WriteString(k)
		return
	}
	writeString(buf, k)
}

func writeDescriptorHeader(buf *bytes.Buffer, name, class string, count uint32) {
	writeUnicodeString(buf, name)
	writeKey(buf, class)
	be(buf, count)
}

func writeLength(buf *bytes.Buffer, width, n int) {
	switch width {
	case 2:
		be(buf, uint16(n))
	case 4:
		be(buf, uint32(n))
	case 8:
		be(buf, uint64(n))
	default:
		panic(fmt.Sprintf("length width %d", width))
	}
}

// packBits encodes src with repeat runs for repeated bytes and literal
// runs otherwise
func packBits(src []byte) []byte {
	var out []byte
	for i := 0; i < len(src); {
		run := 1
		for i+run < len(src) && run < 128 && src[i+run] == src[i] {
			run++
		}
		if run > 1 {
			out = append(out, byte(257-run), src[i])
			i += run
			continue
		}
		j := i
		for j < len(src) && j-i < 128 {
			if j+1 < len(src) && src[j+1] == src[j] {
				break
			}
			j++
		}
		out = append(out, byte(j-i-1))
		out = append(out, src[i:j]...)
		i = j
	}
	return out
}

// rleImage encodes planes of width*height bytes as the line length table
// for every row of every plane followed by the packed rows
func rleImage(width, height, lengthSize int, planes ...[]byte) []byte {
	table := new(bytes.Buffer)
	data := new(bytes.Buffer)
	for _, plane := range planes {
		for y := 0; y < height; y++ {
			row := packBits(plane[y*width : (y+1)*width])
			writeLength(table, lengthSize, len(row))
			data.Write(row)
		}
	}
	return append(table.Bytes(), data.Bytes()...)
}

func aliBlock(key string, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("8BIM")
	buf.WriteString(key)
	be(buf, uint32(len(body)))
	buf.Write(body)
	return buf.Bytes()
}

// aliBlock64 writes a block with an eight byte length, as PSB files do for
// some keys
func aliBlock64(key string, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("8B64")
	buf.WriteString(key)
	be(buf, uint64(len(body)))
	buf.Write(body)
	return buf.Bytes()
}

func unicodeNameBlock(name string) []byte {
	buf := new(bytes.Buffer)
	writeUnicodeString(buf, name)
	return aliBlock(KeyUnicodeLayerName, buf.Bytes())
}

func dividerBlock(t GroupDivider) []byte {
	buf := new(bytes.Buffer)
	be(buf, uint32(t))
	return aliBlock(KeySectionDivider, buf.Bytes())
}

func resourceBlock(id int16, body []byte) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("8BIM")
	be(buf, id)
	writePascalString(buf, "", 2)
	be(buf, uint32(len(body)))
	buf.Write(body)
	if len(body)%2 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

type testChannel struct {
	kind        ChannelKind
	compression Compression
	// data follows the compression tag; RLE data includes the line table
	data []byte
}

func rawChannel(kind ChannelKind, pixels int, value byte) testChannel {
	return testChannel{kind: kind, compression: CompressionRaw, data: bytes.Repeat([]byte{value}, pixels)}
}

type testLayer struct {
	name string
	// bottom and right are exclusive, as stored
	top, left, bottom, right int32

	signature string
	blendMode BlendMode
	opacity   uint8
	clipping  uint8
	flags     uint8
	mask      []byte
	channels  []testChannel
	blocks    [][]byte
}

// pixelLayer is an opaque layer filled with one color
func pixelLayer(name string, top, left, height, width int32, r, g, b byte) testLayer {
	n := int(height * width)
	return testLayer{
		name:    name,
		top:     top,
		left:    left,
		bottom:  top + height,
		right:   left + width,
		opacity: 255,
		channels: []testChannel{
			rawChannel(ChannelTransparencyMask, n, 255),
			rawChannel(ChannelRed, n, r),
			rawChannel(ChannelGreen, n, g),
			rawChannel(ChannelBlue, n, b),
		},
	}
}

// groupLayers returns the folder record, children and closing divider in
// document order
func groupLayers(name string, opacity uint8, children ...testLayer) []testLayer {
	out := []testLayer{{
		name:      name,
		blendMode: BlendPassThrough,
		opacity:   opacity,
		blocks:    [][]byte{dividerBlock(GroupDividerOpenFolder)},
	}}
	out = append(out, children...)
	return append(out, testLayer{
		name:    "</Layer group>",
		opacity: 255,
		blocks:  [][]byte{dividerBlock(GroupDividerBoundingSectionDivider)},
	})
}

func (l testLayer) writeRecord(buf *bytes.Buffer, s FileVersionSpec) {
	for _, v := range []int32{l.top, l.left, l.bottom, l.right} {
		be(buf, v)
	}
	be(buf, uint16(len(l.channels)))
	for _, ch := range l.channels {
		be(buf, int16(ch.kind))
		writeLength(buf, s.ChannelLengthSize, len(ch.data)+2)
	}

	sig := l.signature
	if sig == "" {
		sig = "8BIM"
	}
	buf.WriteString(sig)
	mode := l.blendMode
	if mode == "" {
		mode = BlendNormal
	}
	buf.WriteString(string(mode))
	buf.WriteByte(l.opacity)
	buf.WriteByte(l.clipping)
	buf.WriteByte(l.flags)
	buf.WriteByte(0)

	extra := new(bytes.Buffer)
	be(extra, uint32(len(l.mask)))
	extra.Write(l.mask)
	be(extra, uint32(0))
	writePascalString(extra, l.name, 4)
	for _, b := range l.blocks {
		extra.Write(b)
	}
	be(buf, uint32(extra.Len()))
	buf.Write(extra.Bytes())
}

// testDocument serializes a PSD or PSB file
type testDocument struct {
	version  uint16
	width    int
	height   int
	channels uint16
	depth    uint16
	mode     ColorMode

	colorData []byte
	resources [][]byte

	// layers are in document order, top first
	layers       []testLayer
	mergedAlpha  bool
	globalMask   []byte
	globalBlocks [][]byte
	// layerInfo replaces the encoded layers when set
	layerInfo []byte

	compression Compression
	// image follows the compression tag; nil writes zeroed raw planes
	image []byte
}

func newTestDocument(width, height int) *testDocument {
	return &testDocument{
		version:  VersionPSD,
		width:    width,
		height:   height,
		channels: 3,
		depth:    8,
		mode:     ColorModeRGB,
	}
}

func (d *testDocument) spec() FileVersionSpec {
	if d.version == VersionPSB {
		return psbSpec
	}
	return psdSpec
}

func (d *testDocument) bytes() []byte {
	s := d.spec()
	buf := new(bytes.Buffer)

	buf.WriteString(headerSignature)
	be(buf, d.version)
	buf.Write(make([]byte, 6))
	be(buf, d.channels)
	be(buf, uint32(d.height))
	be(buf, uint32(d.width))
	be(buf, d.depth)
	be(buf, uint16(d.mode))
	be(buf, uint32(len(d.colorData)))
	buf.Write(d.colorData)

	resources := bytes.Join(d.resources, nil)
	be(buf, uint32(len(resources)))
	buf.Write(resources)

	section := d.layerMaskSection()
	writeLength(buf, s.LayerMaskLengthSize, len(section))
	buf.Write(section)

	be(buf, uint16(d.compression))
	if d.image != nil {
		buf.Write(d.image)
	} else {
		buf.Write(make([]byte, int(d.channels)*d.width*d.height))
	}
	return buf.Bytes()
}

func (d *testDocument) layerMaskSection() []byte {
	s := d.spec()

	info := new(bytes.Buffer)
	if d.layerInfo != nil {
		info.Write(d.layerInfo)
	} else if len(d.layers) > 0 {
		count := int16(len(d.layers))
		if d.mergedAlpha {
			count = -count
		}
		be(info, count)
		// stored bottom layer first
		for i := len(d.layers) - 1; i >= 0; i-- {
			d.layers[i].writeRecord(info, s)
		}
		for i := len(d.layers) - 1; i >= 0; i-- {
			for _, ch := range d.layers[i].channels {
				be(info, uint16(ch.compression))
				info.Write(ch.data)
			}
		}
		if info.Len()%2 != 0 {
			info.WriteByte(0)
		}
	}

	section := new(bytes.Buffer)
	writeLength(section, s.LayerInfoLengthSize, info.Len())
	section.Write(info.Bytes())
	be(section, uint32(len(d.globalMask)))
	section.Write(d.globalMask)
	for _, b := range d.globalBlocks {
		section.Write(b)
	}
	return section.Bytes()
}

func (d *testDocument) plane(value byte) []byte {
	return bytes.Repeat([]byte{value}, d.width*d.height)
}

// exampleLayerColor is the red value of layer i of exampleDocument
func exampleLayerColor(i int) byte { return byte(20 + i*10) }

// exampleDocument is a 400x800 RGB document holding fourteen 10x10
// layers named "Layer 0" to "Layer 13", top first. "Layer 2" and
// "Layer 3" sit in "Group 1", "Layer 5" is hidden and "Layer 7" has
// opacity 128. The merged image is RLE compressed and solid orange.
func exampleDocument(version uint16) *testDocument {
	d := newTestDocument(400, 800)
	d.version = version

	layer := func(i int) testLayer {
		l := pixelLayer(fmt.Sprintf("Layer %d", i), int32(i*10), int32(i*20), 10, 10, exampleLayerColor(i), 100, 50)
		switch i {
		case 5:
			l.flags = 0x02
		case 7:
			l.opacity = 128
		}
		l.blocks = append(l.blocks, unicodeNameBlock(l.name))
		return l
	}

	d.layers = []testLayer{layer(0), layer(1)}
	d.layers = append(d.layers, groupLayers("Group 1", 255, layer(2), layer(3))...)
	for i := 4; i < 14; i++ {
		d.layers = append(d.layers, layer(i))
	}

	d.resources = [][]byte{
		resourceBlock(ResourceGridAndGuides, guidesBody(18, 18, Guide{Position: 3200, Direction: GuideVertical}, Guide{Position: 6400, Direction: GuideHorizontal})),
		resourceBlock(ResourceResolutionInfo, resolutionBody(72)),
		resourceBlock(ResourceGlobalLightAngle, int32Body(30)),
		resourceBlock(ResourceGlobalLightAltitude, int32Body(45)),
		resourceBlock(ResourceICCProfile, []byte("sRGB profile")),
		resourceBlock(1036, []byte{1, 2, 3}),
	}

	d.compression = CompressionRLE
	d.image = rleImage(d.width, d.height, d.spec().RLEScanlineLengthSize, d.plane(255), d.plane(128), d.plane(0))
	return d
}

func guidesBody(gridX, gridY uint32, guides ...Guide) []byte {
	buf := new(bytes.Buffer)
	be(buf, uint32(1))
	be(buf, gridX)
	be(buf, gridY)
	be(buf, uint32(len(guides)))
	for _, g := range guides {
		be(buf, g.Position)
		buf.WriteByte(byte(g.Direction))
	}
	return buf.Bytes()
}

func resolutionBody(dpi uint32) []byte {
	buf := new(bytes.Buffer)
	for i := 0; i < 2; i++ {
		be(buf, dpi<<16)
		be(buf, uint16(1))
		be(buf, uint16(2))
	}
	return buf.Bytes()
}

func int32Body(v int32) []byte {
	buf := new(bytes.Buffer)
	be(buf, v)
	return buf.Bytes()
}
