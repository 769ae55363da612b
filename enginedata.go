package psd

import (
	"fmt"
	"strconv"
)

// DefaultMaxEngineDataDepth bounds container nesting in engine data
const DefaultMaxEngineDataDepth = 256

// EngineValue is a value of the engine data text format: EngineDict,
// EngineArray, EngineName, EngineString, EngineNumber or EngineBool.
type EngineValue interface {
	isEngineValue()
}

type (
	EngineDict   map[string]EngineValue
	EngineArray  []EngineValue
	EngineName   string
	EngineString string
	EngineNumber float64
	EngineBool   bool
)

func (EngineDict) isEngineValue()   {}
func (EngineArray) isEngineValue()  {}
func (EngineName) isEngineValue()   {}
func (EngineString) isEngineValue() {}
func (EngineNumber) isEngineValue() {}
func (EngineBool) isEngineValue()   {}

// Dict returns the dictionary stored under key, or nil
func (d EngineDict) Dict(key string) EngineDict {
	v, _ := d[key].(EngineDict)
	return v
}

// Array returns the array stored under key, or nil
func (d EngineDict) Array(key string) EngineArray {
	v, _ := d[key].(EngineArray)
	return v
}

// String returns the string stored under key
func (d EngineDict) String(key string) (string, bool) {
	v, ok := d[key].(EngineString)
	return string(v), ok
}

// Number returns the number stored under key
func (d EngineDict) Number(key string) (float64, bool) {
	v, ok := d[key].(EngineNumber)
	return float64(v), ok
}

// EngineData is the validated text engine payload of a type layer
type EngineData struct {
	Root              EngineDict
	EngineDict        EngineDict
	ResourceDict      EngineDict
	DocumentResources EngineDict
}

var engineDataRequiredKeys = []string{"DocumentResources", "EngineDict", "ResourceDict"}

// ParseEngineData tokenizes, builds and validates raw engine data
func ParseEngineData(raw []byte) (*EngineData, error) {
	return parseEngineData(raw, DefaultMaxEngineDataDepth)
}

func parseEngineData(raw []byte, maxDepth int) (*EngineData, error) {
	root, err := buildEngineValue(newEngineLexer(raw), maxDepth)
	if err != nil {
		return nil, err
	}
	return validateEngineData(root)
}

func validateEngineData(root EngineDict) (*EngineData, error) {
	for _, key := range engineDataRequiredKeys {
		if _, ok := root[key].(EngineDict); !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingEngineDataProperties, key)
		}
	}
	return &EngineData{
		Root:              root,
		EngineDict:        root.Dict("EngineDict"),
		ResourceDict:      root.Dict("ResourceDict"),
		DocumentResources: root.Dict("DocumentResources"),
	}, nil
}

type engineTokenKind uint8

const (
	tokDictBegin engineTokenKind = iota
	tokDictEnd
	tokArrayBegin
	tokArrayEnd
	tokName
	tokString
	tokNumber
	tokBool
)

type engineToken struct {
	kind  engineTokenKind
	value EngineValue
}

var (
	engineWhitespace [256]bool
	engineDelimiter  [256]bool
	engineNumeric    [256]bool
)

func init() {
	for _, b := range []byte{0, '\t', '\n', '\f', '\r', ' '} {
		engineWhitespace[b] = true
	}
	for _, b := range []byte("()<>[]/\\") {
		engineDelimiter[b] = true
	}
	for _, b := range []byte("0123456789+-.eE") {
		engineNumeric[b] = true
	}
}

type engineLexer struct {
	data []byte
	pos  int
}

func newEngineLexer(data []byte) *engineLexer {
	return &engineLexer{data: data}
}

// next returns the next token; ok is false at end of input
func (l *engineLexer) next() (tok engineToken, ok bool, err error) {
	for l.pos < len(l.data) && engineWhitespace[l.data[l.pos]] {
		l.pos++
	}
	if l.pos >= len(l.data) {
		return engineToken{}, false, nil
	}

	b := l.data[l.pos]
	l.pos++
	switch b {
	case '(':
		s, err := l.readString()
		return engineToken{kind: tokString, value: EngineString(s)}, true, err
	case '<', '>':
		if l.pos >= len(l.data) || l.data[l.pos] != b {
			return engineToken{}, false, fmt.Errorf("%w: lone %q at offset %d", ErrInvalidEngineDataToken, b, l.pos-1)
		}
		l.pos++
		if b == '<' {
			return engineToken{kind: tokDictBegin}, true, nil
		}
		return engineToken{kind: tokDictEnd}, true, nil
	case '[':
		return engineToken{kind: tokArrayBegin}, true, nil
	case ']':
		return engineToken{kind: tokArrayEnd}, true, nil
	case '/':
		return engineToken{kind: tokName, value: EngineName(l.readWord())}, true, nil
	case ')', '\\':
		return engineToken{}, false, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidEngineDataToken, b, l.pos-1)
	}

	l.pos--
	word := l.readWord()
	switch word[0] {
	case 't', 'f':
		switch word {
		case "true":
			return engineToken{kind: tokBool, value: EngineBool(true)}, true, nil
		case "false":
			return engineToken{kind: tokBool, value: EngineBool(false)}, true, nil
		}
		return engineToken{}, false, fmt.Errorf("%w: %q", ErrInvalidEngineDataBoolean, word)
	}

	// decimal notation only, ParseFloat also takes hex, Inf and NaN
	for i := 0; i < len(word); i++ {
		if !engineNumeric[word[i]] {
			return engineToken{}, false, fmt.Errorf("%w: %q", ErrInvalidEngineDataNumber, word)
		}
	}
	n, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return engineToken{}, false, fmt.Errorf("%w: %q", ErrInvalidEngineDataNumber, word)
	}
	return engineToken{kind: tokNumber, value: EngineNumber(n)}, true, nil
}

func (l *engineLexer) readWord() string {
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if engineWhitespace[b] || engineDelimiter[b] {
			break
		}
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// readString reads the body of a string after its opening parenthesis
func (l *engineLexer) readString() (string, error) {
	if l.pos < len(l.data) && l.data[l.pos] == ')' {
		l.pos++
		return "", nil
	}

	littleEndian := false
	if l.pos < len(l.data) && (l.data[l.pos] == 0xFE || l.data[l.pos] == 0xFF) {
		if l.pos+1 >= len(l.data) {
			return "", fmt.Errorf("%w: truncated at offset %d", ErrInvalidEngineDataTextBOM, l.pos)
		}
		switch {
		case l.data[l.pos] == 0xFE && l.data[l.pos+1] == 0xFF:
		case l.data[l.pos] == 0xFF && l.data[l.pos+1] == 0xFE:
			littleEndian = true
		default:
			return "", fmt.Errorf("%w: % x at offset %d", ErrInvalidEngineDataTextBOM, l.data[l.pos:l.pos+2], l.pos)
		}
		l.pos += 2
	}

	var body []byte
	for {
		if l.pos >= len(l.data) {
			return "", fmt.Errorf("%w: unterminated string", ErrUnexpectedEndOfEngineData)
		}
		b := l.data[l.pos]
		l.pos++
		if b == ')' {
			break
		}
		// the first body byte is taken as is
		if b == '\\' && len(body) > 0 {
			if l.pos >= len(l.data) {
				return "", fmt.Errorf("%w: dangling escape", ErrUnexpectedEndOfEngineData)
			}
			b = l.data[l.pos]
			l.pos++
		}
		body = append(body, b)
	}

	return decodeUTF16(body, littleEndian)
}

type engineFrame uint8

const (
	frameValue engineFrame = iota
	frameArray
	frameDict
)

type engineStackItem struct {
	frame engineFrame
	value EngineValue
}

// buildEngineValue assembles tokens into nested values with an explicit
// stack. Container openings push sentinels; closings pop back to them.
func buildEngineValue(lex *engineLexer, maxDepth int) (EngineDict, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxEngineDataDepth
	}

	var stack []engineStackItem
	open := 0

	for {
		tok, ok, err := lex.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		switch tok.kind {
		case tokDictBegin, tokArrayBegin:
			open++
			if open > maxDepth {
				return nil, fmt.Errorf("%w: more than %d levels", ErrEngineDataTooDeep, maxDepth)
			}
			frame := frameArray
			if tok.kind == tokDictBegin {
				frame = frameDict
			}
			stack = append(stack, engineStackItem{frame: frame})
		case tokArrayEnd, tokDictEnd:
			want := frameArray
			if tok.kind == tokDictEnd {
				want = frameDict
			}
			var values []EngineValue
			values, stack, err = popUntil(stack, want)
			if err != nil {
				return nil, err
			}
			open--

			var composite EngineValue
			if want == frameArray {
				composite = EngineArray(values)
			} else {
				dict, err := pairsToDict(values)
				if err != nil {
					return nil, err
				}
				composite = dict
			}
			stack = append(stack, engineStackItem{frame: frameValue, value: composite})
		default:
			stack = append(stack, engineStackItem{frame: frameValue, value: tok.value})
		}
	}

	if open > 0 {
		return nil, fmt.Errorf("%w: %d unclosed containers", ErrUnexpectedEndOfEngineData, open)
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %d top level values", ErrInvalidTopLevelEngineDataValue, len(stack))
	}
	root, ok := stack[0].value.(EngineDict)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidTopLevelEngineDataValue, stack[0].value)
	}
	return root, nil
}

// popUntil pops values down to the nearest sentinel, which must be want,
// and returns them in push order.
func popUntil(stack []engineStackItem, want engineFrame) ([]EngineValue, []engineStackItem, error) {
	var values []EngineValue
	for {
		if len(stack) == 0 {
			return nil, nil, fmt.Errorf("%w: close without open", ErrUnexpectedEndOfEngineData)
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.frame == frameValue {
			values = append(values, top.value)
			continue
		}
		if top.frame != want {
			return nil, nil, fmt.Errorf("%w: mismatched container close", ErrUnexpectedEndOfEngineData)
		}
		break
	}

	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	if values == nil {
		values = []EngineValue{}
	}
	return values, stack, nil
}

func pairsToDict(values []EngineValue) (EngineDict, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("%w: key without value", ErrUnexpectedEndOfEngineData)
	}
	dict := make(EngineDict, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(EngineName)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrInvalidEngineDataDictKey, values[i])
		}
		dict[string(key)] = values[i+1]
	}
	return dict, nil
}
