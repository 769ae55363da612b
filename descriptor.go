package psd

import (
	"fmt"
)

// DefaultMaxDescriptorDepth bounds descriptor nesting when no limit is configured
const DefaultMaxDescriptorDepth = 64

// descriptorVersion is the only versioned descriptor layout in use
const descriptorVersion = 16

// Descriptor is Photoshop's generic key-value structure. Keys are unique
// within one descriptor.
type Descriptor struct {
	Name    string
	ClassID string
	Items   map[string]DescriptorValue
}

// DescriptorValue is one of the value variants a descriptor can hold:
// AliasValue, BoolValue, ClassValue, *Descriptor, DoubleValue,
// EnumeratedValue, IntegerValue, LargeIntegerValue, ListValue,
// RawDataValue, ReferenceValue, StringValue or UnitFloatValue.
type DescriptorValue interface {
	isDescriptorValue()
}

type (
	AliasValue        []byte
	BoolValue         bool
	DoubleValue       float64
	IntegerValue      int32
	LargeIntegerValue int64
	ListValue         []DescriptorValue
	RawDataValue      []byte
	ReferenceValue    []Reference
	StringValue       string
)

// ClassValue names a class
type ClassValue struct {
	Name    string
	ClassID string
}

// EnumeratedValue is a value out of a named enumeration
type EnumeratedValue struct {
	TypeID string
	Value  string
}

// UnitFloatValue is a double tagged with a unit
type UnitFloatValue struct {
	Unit  UnitType
	Value float64
}

func (AliasValue) isDescriptorValue()        {}
func (BoolValue) isDescriptorValue()         {}
func (ClassValue) isDescriptorValue()        {}
func (*Descriptor) isDescriptorValue()       {}
func (DoubleValue) isDescriptorValue()       {}
func (EnumeratedValue) isDescriptorValue()   {}
func (IntegerValue) isDescriptorValue()      {}
func (LargeIntegerValue) isDescriptorValue() {}
func (ListValue) isDescriptorValue()         {}
func (RawDataValue) isDescriptorValue()      {}
func (ReferenceValue) isDescriptorValue()    {}
func (StringValue) isDescriptorValue()       {}
func (UnitFloatValue) isDescriptorValue()    {}

// UnitType is the unit of a UnitFloatValue
type UnitType string

const (
	UnitAngle      UnitType = "angle"
	UnitDensity    UnitType = "density"
	UnitDistance   UnitType = "distance"
	UnitMillimeter UnitType = "millimeter"
	UnitNone       UnitType = "none"
	UnitPercent    UnitType = "percent"
	UnitPixels     UnitType = "pixels"
	UnitPoints     UnitType = "points"
)

var unitTypes = map[string]UnitType{
	"#Ang": UnitAngle,
	"#Rsl": UnitDensity,
	"#Rlt": UnitDistance,
	"#Mlm": UnitMillimeter,
	"#Nne": UnitNone,
	"#Prc": UnitPercent,
	"#Pxl": UnitPixels,
	"#Pnt": UnitPoints,
}

// Reference addresses an object. It appears only inside a ReferenceValue
// and never nests.
type Reference interface {
	isReference()
}

// ClassReference refers to a class
type ClassReference struct {
	Name    string
	ClassID string
}

// EnumeratedReference refers to an enumerated value of a class
type EnumeratedReference struct {
	Name    string
	ClassID string
	TypeID  string
	Value   string
}

// IdentifierReference refers to an object by numeric identifier
type IdentifierReference struct {
	ID uint32
}

// IndexReference refers to an object by position
type IndexReference struct {
	Index uint32
}

// NameReference refers to an object by name
type NameReference struct {
	Name string
}

// OffsetReference refers to an object relative to the current one
type OffsetReference struct {
	Name    string
	ClassID string
	Offset  uint32
}

// PropertyReference refers to a property of a class
type PropertyReference struct {
	Name    string
	ClassID string
	KeyID   string
}

func (ClassReference) isReference()      {}
func (EnumeratedReference) isReference() {}
func (IdentifierReference) isReference() {}
func (IndexReference) isReference()      {}
func (NameReference) isReference()       {}
func (OffsetReference) isReference()     {}
func (PropertyReference) isReference()   {}

// DescriptorParser decodes descriptors from a cursor
type DescriptorParser struct {
	cursor   *Cursor
	maxDepth int
	depth    int
}

// NewDescriptorParser creates a new descriptor parser over data
func NewDescriptorParser(data []byte) *DescriptorParser {
	return newDescriptorParser(NewCursor(data), DefaultMaxDescriptorDepth)
}

func newDescriptorParser(c *Cursor, maxDepth int) *DescriptorParser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDescriptorDepth
	}
	return &DescriptorParser{cursor: c, maxDepth: maxDepth}
}

// Parse reads one descriptor
func (d *DescriptorParser) Parse() (*Descriptor, error) {
	return d.parseDescriptor()
}

// ParseVersioned reads a u32 version (always 16) followed by a descriptor
func (d *DescriptorParser) ParseVersioned() (*Descriptor, error) {
	version, err := d.cursor.ReadUint32()
	if err != nil {
		return nil, err
	}
	if version != descriptorVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDescriptorVersion, version)
	}
	return d.parseDescriptor()
}

func (d *DescriptorParser) enter() error {
	d.depth++
	if d.depth > d.maxDepth {
		return fmt.Errorf("%w: more than %d levels", ErrDescriptorTooDeep, d.maxDepth)
	}
	return nil
}

func (d *DescriptorParser) leave() { d.depth-- }

func (d *DescriptorParser) parseDescriptor() (*Descriptor, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	name, err := d.cursor.ReadUnicodeString(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor name: %w", err)
	}
	classID, err := d.cursor.ReadIDString()
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor class: %w", err)
	}
	count, err := d.cursor.ReadUint32()
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{Name: name, ClassID: classID, Items: make(map[string]DescriptorValue)}
	for i := uint32(0); i < count; i++ {
		key, err := d.cursor.ReadIDString()
		if err != nil {
			return nil, fmt.Errorf("failed to read key of item %d: %w", i, err)
		}
		if _, exists := desc.Items[key]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDescriptorKey, key)
		}
		value, err := d.parseValue()
		if err != nil {
			return nil, fmt.Errorf("failed to parse value for key %s: %w", key, err)
		}
		desc.Items[key] = value
	}

	return desc, nil
}

func (d *DescriptorParser) parseValue() (DescriptorValue, error) {
	tag, err := d.cursor.ReadString(4)
	if err != nil {
		return nil, err
	}

	c := d.cursor
	switch tag {
	case "alis":
		n, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		b, err := c.Take(int(n))
		return AliasValue(b), err
	case "bool":
		v, err := c.ReadUint8()
		return BoolValue(v != 0), err
	case "type", "GlbC":
		name, classID, err := d.parseClass()
		return ClassValue{Name: name, ClassID: classID}, err
	case "Objc", "GlbO":
		return d.parseDescriptor()
	case "doub":
		v, err := c.ReadFloat64()
		return DoubleValue(v), err
	case "enum":
		typeID, err := c.ReadIDString()
		if err != nil {
			return nil, err
		}
		value, err := c.ReadIDString()
		return EnumeratedValue{TypeID: typeID, Value: value}, err
	case "long":
		v, err := c.ReadInt32()
		return IntegerValue(v), err
	case "comp":
		v, err := c.ReadInt64()
		return LargeIntegerValue(v), err
	case "VlLs":
		return d.parseList()
	case "tdta":
		n, err := c.ReadUint32()
		if err != nil {
			return nil, err
		}
		b, err := c.Take(int(n))
		return RawDataValue(b), err
	case "obj ":
		return d.parseReferences()
	case "TEXT":
		s, err := c.ReadUnicodeString(0)
		return StringValue(s), err
	case "UntF":
		return d.parseUnitFloat()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDescriptorType, tag)
	}
}

func (d *DescriptorParser) parseClass() (string, string, error) {
	name, err := d.cursor.ReadUnicodeString(0)
	if err != nil {
		return "", "", err
	}
	classID, err := d.cursor.ReadIDString()
	return name, classID, err
}

func (d *DescriptorParser) parseList() (ListValue, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	count, err := d.cursor.ReadUint32()
	if err != nil {
		return nil, err
	}
	list := ListValue{}
	for i := uint32(0); i < count; i++ {
		v, err := d.parseValue()
		if err != nil {
			return nil, fmt.Errorf("failed to parse list item %d: %w", i, err)
		}
		list = append(list, v)
	}
	return list, nil
}

func (d *DescriptorParser) parseUnitFloat() (UnitFloatValue, error) {
	code, err := d.cursor.ReadString(4)
	if err != nil {
		return UnitFloatValue{}, err
	}
	unit, ok := unitTypes[code]
	if !ok {
		return UnitFloatValue{}, fmt.Errorf("%w: %q", ErrInvalidUnitFloatType, code)
	}
	v, err := d.cursor.ReadFloat64()
	return UnitFloatValue{Unit: unit, Value: v}, err
}

func (d *DescriptorParser) parseReferences() (ReferenceValue, error) {
	count, err := d.cursor.ReadUint32()
	if err != nil {
		return nil, err
	}
	refs := ReferenceValue{}
	for i := uint32(0); i < count; i++ {
		ref, err := d.parseReference()
		if err != nil {
			return nil, fmt.Errorf("failed to parse reference %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (d *DescriptorParser) parseReference() (Reference, error) {
	c := d.cursor
	tag, err := c.ReadString(4)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "Clss":
		name, classID, err := d.parseClass()
		return ClassReference{Name: name, ClassID: classID}, err
	case "Enmr":
		name, classID, err := d.parseClass()
		if err != nil {
			return nil, err
		}
		typeID, err := c.ReadIDString()
		if err != nil {
			return nil, err
		}
		value, err := c.ReadIDString()
		return EnumeratedReference{Name: name, ClassID: classID, TypeID: typeID, Value: value}, err
	case "Idnt":
		id, err := c.ReadUint32()
		return IdentifierReference{ID: id}, err
	case "indx":
		index, err := c.ReadUint32()
		return IndexReference{Index: index}, err
	case "name":
		name, err := c.ReadUnicodeString(0)
		return NameReference{Name: name}, err
	case "rele":
		name, classID, err := d.parseClass()
		if err != nil {
			return nil, err
		}
		offset, err := c.ReadUint32()
		return OffsetReference{Name: name, ClassID: classID, Offset: offset}, err
	case "prop":
		name, classID, err := d.parseClass()
		if err != nil {
			return nil, err
		}
		keyID, err := c.ReadIDString()
		return PropertyReference{Name: name, ClassID: classID, KeyID: keyID}, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidReferenceType, tag)
	}
}

// Get returns the value stored under key
func (d *Descriptor) Get(key string) (DescriptorValue, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.Items[key]
	return v, ok
}

// GetDescriptorValueAs returns the value under key as T, failing when the
// key is absent or holds another variant.
func GetDescriptorValueAs[T DescriptorValue](d *Descriptor, key string) (T, error) {
	var zero T
	v, ok := d.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrMissingDescriptorKey, key)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T, want %T", ErrUnexpectedDescriptorValueType, key, v, zero)
	}
	return typed, nil
}

// GetString returns a TEXT value
func (d *Descriptor) GetString(key string) (string, error) {
	v, err := GetDescriptorValueAs[StringValue](d, key)
	return string(v), err
}

// GetInt returns a long value
func (d *Descriptor) GetInt(key string) (int32, error) {
	v, err := GetDescriptorValueAs[IntegerValue](d, key)
	return int32(v), err
}

// GetFloat returns a doub value
func (d *Descriptor) GetFloat(key string) (float64, error) {
	v, err := GetDescriptorValueAs[DoubleValue](d, key)
	return float64(v), err
}

// GetBool returns a bool value
func (d *Descriptor) GetBool(key string) (bool, error) {
	v, err := GetDescriptorValueAs[BoolValue](d, key)
	return bool(v), err
}

// GetDescriptor returns a nested descriptor
func (d *Descriptor) GetDescriptor(key string) (*Descriptor, error) {
	return GetDescriptorValueAs[*Descriptor](d, key)
}

// GetList returns a list value
func (d *Descriptor) GetList(key string) (ListValue, error) {
	return GetDescriptorValueAs[ListValue](d, key)
}

// GetRawData returns a tdta value
func (d *Descriptor) GetRawData(key string) ([]byte, error) {
	v, err := GetDescriptorValueAs[RawDataValue](d, key)
	return []byte(v), err
}

// GetEnum returns an enumerated value
func (d *Descriptor) GetEnum(key string) (EnumeratedValue, error) {
	return GetDescriptorValueAs[EnumeratedValue](d, key)
}

// GetUnitFloat returns a unit float value
func (d *Descriptor) GetUnitFloat(key string) (UnitFloatValue, error) {
	return GetDescriptorValueAs[UnitFloatValue](d, key)
}
