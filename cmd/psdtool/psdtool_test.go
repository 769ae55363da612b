package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/webtoon/psd"
	"gopkg.in/yaml.v3"
)

// writeDocument saves a 2x1 RGB document without layers or resources
func writeDocument(t *testing.T) string {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.WriteString("8BPS")
	for _, v := range []interface{}{
		uint16(psd.VersionPSD), [6]byte{}, uint16(3), uint32(1), uint32(2), uint16(8), uint16(psd.ColorModeRGB),
		uint32(0), uint32(0), uint32(0), uint16(psd.CompressionRaw),
	} {
		require.NoError(t, binary.Write(buf, binary.BigEndian, v))
	}
	buf.Write([]byte{255, 0, 0, 255, 0, 0})

	path := filepath.Join(t.TempDir(), "tiny.psd")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func sampleSummary() documentSummary {
	return documentSummary{
		Version:   psd.VersionPSB,
		Width:     4,
		Height:    2,
		Channels:  3,
		Depth:     8,
		ColorMode: "rgb",
		Resources: []int16{1005},
		Children: []nodeSummary{{
			Kind:      "group",
			Name:      "g",
			Opacity:   255,
			BlendMode: "pass_through",
			Children: []nodeSummary{{
				Kind:      "layer",
				Name:      "title",
				Hidden:    true,
				Opacity:   128,
				BlendMode: "normal",
				Bounds:    [4]int32{0, 0, 2, 4},
				Text:      "Hello",
			}},
		}},
	}
}

func TestWriteSummary(t *testing.T) {
	s := sampleSummary()

	t.Run("json", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeSummary(buf, s, "json"))
		var decoded documentSummary
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, s, decoded)
	})

	t.Run("yaml", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeSummary(buf, s, "yaml"))
		assert.Contains(t, buf.String(), "bounds: [0, 0, 2, 4]")
		var decoded documentSummary
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, s, decoded)
	})

	t.Run("text", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, writeSummary(buf, s, "text"))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 5)
		assert.Equal(t, "PSB 4x2, 3 channels, 8 bits, rgb", lines[0])
		assert.True(t, strings.HasPrefix(lines[3], "  group \"g\""))
		assert.True(t, strings.HasPrefix(lines[4], "  - layer \"title\" opacity=128"))
		assert.Contains(t, lines[4], `text="Hello"`)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, writeSummary(io.Discard, s, "xml"))
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Layer 1": "Layer 1",
		"a/b\\c":  "a_b_c",
		"what?*":  "what__",
		"  ":      "unnamed",
		"..":      "unnamed",
		"a:<1>":   "a__1_",
	}
	for in, expected := range tests {
		assert.Equal(t, expected, sanitizeFilename(in), in)
	}
}

func TestWriteEmbedded(t *testing.T) {
	extractOut = t.TempDir()
	t.Cleanup(func() { extractXZ = false })
	l := &psd.LinkedLayer{Type: psd.LinkedLayerData, Filename: "smile.png", Contents: []byte("embedded bytes")}

	path, err := writeEmbedded(3, l)
	require.NoError(t, err)
	assert.Equal(t, "003_smile.png", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, l.Contents, data)

	extractXZ = true
	path, err = writeEmbedded(4, l)
	require.NoError(t, err)
	assert.Equal(t, "004_smile.png.xz", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := xz.NewReader(f)
	require.NoError(t, err)
	data, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, l.Contents, data)
}

func TestCommands(t *testing.T) {
	path := writeDocument(t)

	out := run(t, "version")
	assert.Equal(t, "psdtool dev\n", out)

	out = run(t, "inspect", "--format", "json", path)
	var s documentSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 2, s.Width)
	assert.Equal(t, 1, s.Height)
	assert.Equal(t, "RGBColor", s.ColorMode)
	assert.Empty(t, s.Children)

	dir := t.TempDir()
	run(t, "export", "--flatten", "--layers", "-o", dir, path)
	assert.FileExists(t, filepath.Join(dir, "merged.png"))
	assert.FileExists(t, filepath.Join(dir, "flattened.png"))

	out = run(t, "extract", "-o", dir, path)
	assert.Empty(t, out)

	rootCmd.SetArgs([]string{"inspect", filepath.Join(dir, "missing.psd")})
	assert.Error(t, rootCmd.Execute())
}
