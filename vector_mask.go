package psd

import "fmt"

const pathRecordSize = 26

// PathRecordType identifies a vector path record
type PathRecordType uint16

const (
	PathClosedSubpathLength       PathRecordType = 0
	PathClosedSubpathKnotLinked   PathRecordType = 1
	PathClosedSubpathKnotUnlinked PathRecordType = 2
	PathOpenSubpathLength         PathRecordType = 3
	PathOpenSubpathKnotLinked     PathRecordType = 4
	PathOpenSubpathKnotUnlinked   PathRecordType = 5
	PathFillRule                  PathRecordType = 6
	PathClipboard                 PathRecordType = 7
	PathInitialFillRule           PathRecordType = 8
)

// PathPoint is a point relative to the document size, vertical first
type PathPoint struct {
	Vertical   float64
	Horizontal float64
}

// PathRecord is one 26 byte record of a vector path. Only the fields of
// its Type are set.
type PathRecord struct {
	Type PathRecordType

	// subpath length records
	Length      int16
	Operation   int16
	SubpathType int16
	Index       int16

	// knot records
	Preceding PathPoint
	Anchor    PathPoint
	Leaving   PathPoint

	// clipboard record
	ClipboardBounds [4]float32
	Resolution      float32

	// initial fill rule record
	Fill bool
}

// VectorMaskSetting is a vmsk or vsms block
type VectorMaskSetting struct {
	aliHeader
	Version uint32
	Invert  bool
	NotLink bool
	Disable bool
	Paths   []PathRecord
}

func parseVectorMask(h aliHeader, c *Cursor) (*VectorMaskSetting, error) {
	v := &VectorMaskSetting{aliHeader: h}
	var err error

	if v.Version, err = c.ReadUint32(); err != nil {
		return nil, err
	}
	flags, err := c.ReadUint32()
	if err != nil {
		return nil, err
	}
	v.Invert = flags&1 != 0
	v.NotLink = flags&2 != 0
	v.Disable = flags&4 != 0

	count := c.Remaining() / pathRecordSize
	v.Paths = make([]PathRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := readPathRecord(c)
		if err != nil {
			return nil, fmt.Errorf("failed to read path record %d: %w", i, err)
		}
		v.Paths = append(v.Paths, rec)
	}
	return v, nil
}

func readPathPoint(c *Cursor) (PathPoint, error) {
	var p PathPoint
	var err error
	if p.Vertical, err = c.ReadFixedPoint8x24(); err != nil {
		return p, err
	}
	p.Horizontal, err = c.ReadFixedPoint8x24()
	return p, err
}

func readPathRecord(c *Cursor) (PathRecord, error) {
	var r PathRecord
	t, err := c.ReadUint16()
	if err != nil {
		return r, err
	}
	r.Type = PathRecordType(t)

	switch r.Type {
	case PathClosedSubpathLength, PathOpenSubpathLength:
		if r.Length, err = c.ReadInt16(); err != nil {
			return r, err
		}
		if r.Operation, err = c.ReadInt16(); err != nil {
			return r, err
		}
		if r.SubpathType, err = c.ReadInt16(); err != nil {
			return r, err
		}
		if err = c.Skip(6); err != nil {
			return r, err
		}
		if r.Index, err = c.ReadInt16(); err != nil {
			return r, err
		}
		err = c.Skip(10)
	case PathClosedSubpathKnotLinked, PathClosedSubpathKnotUnlinked,
		PathOpenSubpathKnotLinked, PathOpenSubpathKnotUnlinked:
		for _, pt := range []*PathPoint{&r.Preceding, &r.Anchor, &r.Leaving} {
			if *pt, err = readPathPoint(c); err != nil {
				return r, err
			}
		}
	case PathFillRule:
		err = c.Skip(24)
	case PathClipboard:
		for i := range r.ClipboardBounds {
			if r.ClipboardBounds[i], err = c.ReadFloat32(); err != nil {
				return r, err
			}
		}
		if r.Resolution, err = c.ReadFloat32(); err != nil {
			return r, err
		}
		err = c.Skip(4)
	case PathInitialFillRule:
		var fill int16
		if fill, err = c.ReadInt16(); err != nil {
			return r, err
		}
		r.Fill = fill&1 != 0
		err = c.Skip(22)
	default:
		return r, fmt.Errorf("%w: %d", ErrInvalidPathRecordType, t)
	}
	return r, err
}
