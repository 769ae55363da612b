package psd

import "fmt"

// Pattern is one entry of a Patt, Pat2 or Pat3 block
type Pattern struct {
	Version   uint32
	ImageMode ColorMode
	Width     uint16
	Height    uint16
	Name      string
	ID        string
	// ColorTable is set for indexed patterns
	ColorTable [][3]uint8
	Data       PatternData
}

// PatternData is the virtual memory array list holding a pattern's pixels
type PatternData struct {
	Version      uint32
	Length       uint32
	Rectangle    Rectangle
	ChannelCount uint32
	// Channels is keyed by array index: color channels first, then the
	// user mask and the sheet mask. Unwritten entries are absent.
	Channels map[int]*PatternChannel
}

// PatternChannel is one written virtual memory array
type PatternChannel struct {
	Length     uint32
	PixelDepth uint32
	Rectangle  Rectangle
	// Depth repeats PixelDepth as a u16
	Depth uint16
	ChannelBytes
}

// Patterns is a Patt, Pat2 or Pat3 block
type Patterns struct {
	aliHeader
	Patterns []*Pattern
}

func (p *parser) parsePatterns(h aliHeader, c *Cursor) (*Patterns, error) {
	block := &Patterns{aliHeader: h}

	for c.Remaining() > 4 {
		length, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			break
		}
		body, err := c.Sub(int(length))
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern %d: %w", len(block.Patterns), err)
		}
		pattern, err := p.parsePattern(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read pattern %d: %w", len(block.Patterns), err)
		}
		block.Patterns = append(block.Patterns, pattern)

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

func (p *parser) parsePattern(c *Cursor) (*Pattern, error) {
	pt := &Pattern{}
	var err error

	if pt.Version, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	mode, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	pt.ImageMode = ColorMode(mode)
	if pt.Height, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if pt.Width, err = c.ReadUint16(); err != nil {
		return nil, err
	}
	if pt.Name, err = c.ReadUnicodeString(0); err != nil {
		return nil, err
	}
	if pt.ID, err = c.ReadPascalString(0); err != nil {
		return nil, err
	}

	if pt.ImageMode == ColorModeIndexed {
		table, err := c.Take(256 * 3)
		if err != nil {
			return nil, fmt.Errorf("failed to read color table: %w", err)
		}
		pt.ColorTable = make([][3]uint8, 256)
		for i := range pt.ColorTable {
			copy(pt.ColorTable[i][:], table[i*3:])
		}
		// undocumented trailing bytes
		if err := c.Skip(4); err != nil {
			return nil, err
		}
	}

	if pt.Data, err = p.parsePatternData(c, int(pt.Height)); err != nil {
		return nil, fmt.Errorf("failed to read pattern data of %q: %w", pt.Name, err)
	}
	return pt, nil
}

func (p *parser) parsePatternData(c *Cursor, height int) (PatternData, error) {
	var d PatternData
	var err error

	if d.Version, err = c.ReadUint32(); err != nil {
		return d, err
	}
	if d.Length, err = c.ReadUint32(); err != nil {
		return d, err
	}
	if d.Rectangle, err = readRectangle(c); err != nil {
		return d, err
	}
	if d.ChannelCount, err = c.ReadUint32(); err != nil {
		return d, err
	}
	if d.ChannelCount > maxChannels {
		return d, fmt.Errorf("%w: %d pattern channels", ErrInvalidChannelCount, d.ChannelCount)
	}

	d.Channels = make(map[int]*PatternChannel)
	for i := 0; i < int(d.ChannelCount)+2; i++ {
		ch, err := p.parsePatternChannel(c, height)
		if err != nil {
			return d, fmt.Errorf("failed to read channel %d: %w", i, err)
		}
		if ch != nil {
			d.Channels[i] = ch
		}
	}
	return d, nil
}

// parsePatternChannel returns nil for arrays that were not written
func (p *parser) parsePatternChannel(c *Cursor, height int) (*PatternChannel, error) {
	written, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	if written == 0 {
		return nil, nil
	}
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

	ch := &PatternChannel{Length: length}
	if ch.PixelDepth, err = body.ReadUint32(); err != nil {
		return nil, err
	}
	if ch.Rectangle, err = readRectangle(body); err != nil {
		return nil, err
	}
	if ch.Depth, err = body.ReadUint16(); err != nil {
		return nil, err
	}
	compression, err := body.ReadUint8()
	if err != nil {
		return nil, err
	}
	ch.Width = ch.Rectangle.Width()

	if compression == 0 {
		ch.Compression = CompressionRaw
		data, err := body.Take(body.Remaining())
		if err != nil {
			return nil, err
		}
		ch.Data = p.channelData(data)
		return ch, nil
	}

	ch.Compression = CompressionRLE
	total := 0
	for i := 0; i < height; i++ {
		n, err := body.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("failed to read line length table: %w", err)
		}
		total += int(n)
	}
	data, err := body.Take(total)
	if err != nil {
		return nil, err
	}
	ch.Data = p.channelData(data)
	return ch, nil
}
