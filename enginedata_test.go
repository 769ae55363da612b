package psd

import (
	"bytes"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engineText encodes s as an engine data string body: UTF-16BE with a byte
// order mark and escaped delimiters.
func engineText(s string) []byte {
	out := []byte{'(', 0xFE, 0xFF}
	for _, u := range utf16.Encode([]rune(s)) {
		for _, b := range []byte{byte(u >> 8), byte(u)} {
			if b == '(' || b == ')' || b == '\\' {
				out = append(out, '\\')
			}
			out = append(out, b)
		}
	}
	return append(out, ')')
}

func sampleEngineData() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("\n\n<<\n\t/EngineDict\n\t<<\n\t\t/Editor\n\t\t<<\n\t\t\t/Text ")
	buf.Write(engineText("Hello (world)\r"))
	buf.WriteString("\n\t\t>>\n\t\t/ParagraphRun << /RunLengthArray [ 14 ] /IsJoinable 1 >>")
	buf.WriteString("\n\t\t/AntiAlias 4\n\t\t/UseFractionalGlyphWidths true\n\t>>")
	buf.WriteString("\n\t/ResourceDict << /FontSet [ << /Name ")
	buf.Write(engineText("ArialMT"))
	buf.WriteString(" /Synthetic 0 >> ] /SmallCapSize .7 >>")
	buf.WriteString("\n\t/DocumentResources << /SuperscriptSize -0.5 /Hidden false >>\n>>\x00")
	return buf.Bytes()
}

func TestParseEngineData(t *testing.T) {
	data, err := ParseEngineData(sampleEngineData())
	require.NoError(t, err)

	editor := data.EngineDict.Dict("Editor")
	text, ok := editor.String("Text")
	require.True(t, ok)
	assert.Equal(t, "Hello (world)\r", text)

	run := data.EngineDict.Dict("ParagraphRun")
	assert.Equal(t, EngineArray{EngineNumber(14)}, run.Array("RunLengthArray"))

	aa, ok := data.EngineDict.Number("AntiAlias")
	require.True(t, ok)
	assert.Equal(t, 4.0, aa)
	assert.Equal(t, EngineBool(true), data.EngineDict["UseFractionalGlyphWidths"])

	fonts := data.ResourceDict.Array("FontSet")
	require.Len(t, fonts, 1)
	font := fonts[0].(EngineDict)
	name, _ := font.String("Name")
	assert.Equal(t, "ArialMT", name)

	size, _ := data.ResourceDict.Number("SmallCapSize")
	assert.Equal(t, 0.7, size)
	assert.Equal(t, EngineNumber(-0.5), data.DocumentResources["SuperscriptSize"])
	assert.Equal(t, EngineBool(false), data.DocumentResources["Hidden"])
}

func TestEngineDataStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
		err      error
	}{
		{name: "empty", input: []byte("()"), expected: ""},
		{name: "big endian with mark", input: []byte{'(', 0xFE, 0xFF, 0, 'h', 0, 'i', ')'}, expected: "hi"},
		{name: "little endian with mark", input: []byte{'(', 0xFF, 0xFE, 'h', 0, 'i', 0, ')'}, expected: "hi"},
		{name: "big endian without mark", input: []byte{'(', 0, 'o', 0, 'k', ')'}, expected: "ok"},
		{name: "escaped close", input: []byte{'(', 0, '\\', ')', ')'}, expected: ")"},
		{name: "leading backslash", input: []byte{'(', '\\', 0, ')'}, expected: "\u5c00"},
		{name: "leading backslash after mark", input: []byte{'(', 0xFE, 0xFF, '\\', 0, ')'}, expected: "\u5c00"},
		{name: "consecutive escapes", input: []byte{'(', 0, '\\', '(', 0, '\\', ')', ')'}, expected: "()"},
		{name: "bad mark", input: []byte{'(', 0xFE, 0x00, 0, 'a', ')'}, err: ErrInvalidEngineDataTextBOM},
		{name: "unterminated", input: []byte{'(', 0, 'a'}, err: ErrUnexpectedEndOfEngineData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex := newEngineLexer(tt.input)
			tok, ok, err := lex.next()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, EngineString(tt.expected), tok.value)
		})
	}
}

func TestEngineDataErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{name: "bad boolean", input: "<< /A tru >>", err: ErrInvalidEngineDataBoolean},
		{name: "bad number", input: "<< /A 1.2.3 >>", err: ErrInvalidEngineDataNumber},
		{name: "not a number", input: "<< /A NaN >>", err: ErrInvalidEngineDataNumber},
		{name: "infinity", input: "<< /A Inf >>", err: ErrInvalidEngineDataNumber},
		{name: "hex float", input: "<< /A 0x1p-2 >>", err: ErrInvalidEngineDataNumber},
		{name: "lone angle", input: "<< /A < >>", err: ErrInvalidEngineDataToken},
		{name: "key is not a name", input: "<< 1 2 >>", err: ErrInvalidEngineDataDictKey},
		{name: "unclosed dict", input: "<< /A [ 1 2 ]", err: ErrUnexpectedEndOfEngineData},
		{name: "stray close", input: "<< /A 1 >> ]", err: ErrUnexpectedEndOfEngineData},
		{name: "mismatched close", input: "<< /A [ 1 >> ]", err: ErrUnexpectedEndOfEngineData},
		{name: "top level array", input: "[ 1 2 ]", err: ErrInvalidTopLevelEngineDataValue},
		{name: "two top level values", input: "<< >> << >>", err: ErrInvalidTopLevelEngineDataValue},
		{name: "empty", input: "  ", err: ErrInvalidTopLevelEngineDataValue},
		{name: "missing properties", input: "<< /EngineDict << >> /ResourceDict << >> >>", err: ErrMissingEngineDataProperties},
		{name: "property is not a dict", input: "<< /EngineDict << >> /ResourceDict << >> /DocumentResources 1 >>", err: ErrMissingEngineDataProperties},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEngineData([]byte(tt.input))
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, IsDecodeError(err))
		})
	}
}

func TestEngineDataDepthLimit(t *testing.T) {
	input := "<< /A " + string(bytes.Repeat([]byte("[ "), 10)) + string(bytes.Repeat([]byte("] "), 10)) + ">>"

	root, err := buildEngineValue(newEngineLexer([]byte(input)), 11)
	require.NoError(t, err)
	assert.Len(t, root.Array("A"), 1)

	_, err = buildEngineValue(newEngineLexer([]byte(input)), 5)
	assert.ErrorIs(t, err, ErrEngineDataTooDeep)
}

func FuzzParseEngineData(f *testing.F) {
	f.Add(sampleEngineData())
	f.Add([]byte("<< /A [ (x) 1 true ] >>"))
	f.Fuzz(func(t *testing.T, data []byte) {
		ParseEngineData(data)
	})
}
