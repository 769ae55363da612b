package psd

import "errors"

// Structural validation errors. The file is malformed.
var (
	ErrInvalidSignature                    = errors.New("psd: invalid file signature")
	ErrInvalidVersion                      = errors.New("psd: invalid file version")
	ErrInvalidReserved                     = errors.New("psd: reserved header bytes are not zero")
	ErrInvalidChannelCount                 = errors.New("psd: channel count out of range")
	ErrInvalidDimensions                   = errors.New("psd: image dimensions out of range")
	ErrInvalidDepth                        = errors.New("psd: invalid bit depth")
	ErrInvalidColorMode                    = errors.New("psd: invalid color mode")
	ErrInvalidResourceSignature            = errors.New("psd: invalid image resource signature")
	ErrInvalidGridVersion                  = errors.New("psd: invalid grid and guides version")
	ErrInvalidGuideDirection               = errors.New("psd: invalid guide direction")
	ErrInvalidBlendingModeSignature        = errors.New("psd: invalid blend mode signature")
	ErrUnknownBlendMode                    = errors.New("psd: unknown blend mode")
	ErrInvalidClipping                     = errors.New("psd: invalid clipping value")
	ErrInvalidCompression                  = errors.New("psd: invalid compression method")
	ErrUnbalancedGroupDivider              = errors.New("psd: group close marker without matching open marker")
	ErrInvalidAdditionalLayerInfoSignature = errors.New("psd: invalid additional layer info signature")
	ErrInvalidGroupDividerType             = errors.New("psd: invalid group divider type")
	ErrInvalidSectionDividerSetting        = errors.New("psd: invalid section divider setting")
	ErrLayerExtraDataMismatch              = errors.New("psd: layer extra data length mismatch")
)

// Bounds and overflow errors.
var (
	ErrOutOfBounds       = errors.New("psd: read past end of buffer")
	ErrNumberTooLarge    = errors.New("psd: 64-bit value exceeds safe integer range")
	ErrDescriptorTooDeep = errors.New("psd: descriptor nesting too deep")
	ErrEngineDataTooDeep = errors.New("psd: engine data nesting too deep")
)

// Format specific decode errors.
var (
	ErrInvalidDescriptorType          = errors.New("psd: invalid descriptor value type")
	ErrInvalidReferenceType           = errors.New("psd: invalid reference type")
	ErrInvalidUnitFloatType           = errors.New("psd: invalid unit float type")
	ErrInvalidDescriptorVersion       = errors.New("psd: invalid descriptor version")
	ErrDuplicateDescriptorKey         = errors.New("psd: duplicate descriptor key")
	ErrMissingDescriptorKey           = errors.New("psd: missing descriptor key")
	ErrUnexpectedDescriptorValueType  = errors.New("psd: unexpected descriptor value type")
	ErrInvalidEngineDataToken         = errors.New("psd: invalid engine data token")
	ErrInvalidEngineDataTextBOM       = errors.New("psd: invalid engine data text byte order mark")
	ErrInvalidEngineDataBoolean       = errors.New("psd: invalid engine data boolean")
	ErrInvalidEngineDataNumber        = errors.New("psd: invalid engine data number")
	ErrInvalidEngineDataDictKey       = errors.New("psd: engine data dictionary key is not a name")
	ErrUnexpectedEndOfEngineData      = errors.New("psd: unexpected end of engine data")
	ErrInvalidTopLevelEngineDataValue = errors.New("psd: engine data top level value is not a dictionary")
	ErrMissingEngineDataProperties    = errors.New("psd: engine data is missing required properties")
	ErrInvalidPathRecordType          = errors.New("psd: invalid path record type")
	ErrInvalidSlicesVersion           = errors.New("psd: invalid slices resource version")
	ErrInvalidSlices                  = errors.New("psd: invalid slices descriptor")
	ErrInvalidTypeToolObjectSetting   = errors.New("psd: invalid type tool object setting")
	ErrInvalidLinkedLayerType         = errors.New("psd: invalid linked layer type")
	ErrChannelNotFound                = errors.New("psd: channel not found")
	ErrMissingColorChannel            = errors.New("psd: missing color channel")
	ErrInvalidPixelCount              = errors.New("psd: pixel count must be positive")
	ErrInvalidOpacity                 = errors.New("psd: opacity out of range")
)

// Unsupported but valid input.
var (
	ErrUnsupportedCompression = errors.New("psd: unsupported compression method")
	ErrUnsupportedDepth       = errors.New("psd: unsupported bit depth")
)

var validationErrors = []error{
	ErrInvalidSignature, ErrInvalidVersion, ErrInvalidReserved,
	ErrInvalidChannelCount, ErrInvalidDimensions, ErrInvalidDepth,
	ErrInvalidColorMode, ErrInvalidResourceSignature, ErrInvalidGridVersion,
	ErrInvalidGuideDirection, ErrInvalidBlendingModeSignature,
	ErrUnknownBlendMode, ErrInvalidClipping, ErrInvalidCompression,
	ErrUnbalancedGroupDivider, ErrInvalidAdditionalLayerInfoSignature,
	ErrInvalidGroupDividerType, ErrInvalidSectionDividerSetting,
	ErrLayerExtraDataMismatch,
}

var boundsErrors = []error{
	ErrOutOfBounds, ErrNumberTooLarge, ErrDescriptorTooDeep, ErrEngineDataTooDeep,
}

var decodeErrors = []error{
	ErrInvalidDescriptorType, ErrInvalidReferenceType, ErrInvalidUnitFloatType,
	ErrInvalidDescriptorVersion, ErrDuplicateDescriptorKey,
	ErrMissingDescriptorKey, ErrUnexpectedDescriptorValueType,
	ErrInvalidEngineDataToken, ErrInvalidEngineDataTextBOM,
	ErrInvalidEngineDataBoolean, ErrInvalidEngineDataNumber,
	ErrInvalidEngineDataDictKey, ErrUnexpectedEndOfEngineData,
	ErrInvalidTopLevelEngineDataValue, ErrMissingEngineDataProperties,
	ErrInvalidPathRecordType, ErrInvalidSlicesVersion, ErrInvalidSlices,
	ErrInvalidTypeToolObjectSetting, ErrInvalidLinkedLayerType,
	ErrChannelNotFound, ErrMissingColorChannel, ErrInvalidPixelCount,
	ErrInvalidOpacity,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err means the file is structurally malformed.
func IsValidationError(err error) bool { return isAny(err, validationErrors) }

// IsBoundsError reports whether err is a read past the end or a numeric overflow.
func IsBoundsError(err error) bool { return isAny(err, boundsErrors) }

// IsDecodeError reports whether err came from decoding a nested format.
func IsDecodeError(err error) bool { return isAny(err, decodeErrors) }

// IsUnsupported reports whether err means the file is valid but uses a
// feature this package cannot decode.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedCompression) || errors.Is(err, ErrUnsupportedDepth)
}
