package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/webtoon/psd"
	"gopkg.in/yaml.v3"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Print the header, resources and layer tree of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := openDocument(args[0])
		if err != nil {
			return err
		}
		return writeSummary(cmd.OutOrStdout(), summarize(doc), inspectFormat)
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "text", "Output format: text, json or yaml")
}

type documentSummary struct {
	Version      uint16        `json:"version" yaml:"version"`
	Width        int           `json:"width" yaml:"width"`
	Height       int           `json:"height" yaml:"height"`
	Channels     int           `json:"channels" yaml:"channels"`
	Depth        int           `json:"depth" yaml:"depth"`
	ColorMode    string        `json:"color_mode" yaml:"color_mode"`
	Resources    []int16       `json:"resources,omitempty" yaml:"resources,omitempty"`
	Guides       int           `json:"guides" yaml:"guides"`
	Slices       int           `json:"slices" yaml:"slices"`
	Patterns     []string      `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	GlobalBlocks []string      `json:"global_blocks,omitempty" yaml:"global_blocks,omitempty"`
	Children     []nodeSummary `json:"children,omitempty" yaml:"children,omitempty"`
}

type nodeSummary struct {
	Kind      string        `json:"kind" yaml:"kind"`
	Name      string        `json:"name" yaml:"name"`
	Hidden    bool          `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Opacity   uint8         `json:"opacity" yaml:"opacity"`
	BlendMode string        `json:"blend_mode" yaml:"blend_mode"`
	Bounds    [4]int32      `json:"bounds" yaml:"bounds,flow"`
	Text      string        `json:"text,omitempty" yaml:"text,omitempty"`
	Blocks    []string      `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Children  []nodeSummary `json:"children,omitempty" yaml:"children,omitempty"`
}

func summarize(doc *psd.Document) documentSummary {
	h := doc.Header()
	s := documentSummary{
		Version:   h.Version,
		Width:     doc.Width(),
		Height:    doc.Height(),
		Channels:  doc.ChannelCount(),
		Depth:     doc.BitDepth(),
		ColorMode: doc.ColorMode().String(),
		Guides:    len(doc.Guides()),
		Slices:    len(doc.Slices()),
	}
	for _, res := range doc.Resources() {
		s.Resources = append(s.Resources, res.ID)
	}
	for _, p := range doc.Patterns() {
		s.Patterns = append(s.Patterns, p.Name)
	}
	s.GlobalBlocks = blockKeys(doc.AdditionalLayerInfo())
	for _, child := range doc.Children() {
		s.Children = append(s.Children, summarizeNode(child))
	}
	return s
}

func summarizeNode(n psd.Node) nodeSummary {
	s := nodeSummary{
		Kind:    n.Kind().String(),
		Name:    n.Name(),
		Opacity: n.Opacity(),
	}
	switch v := n.(type) {
	case *psd.Group:
		b := v.Bounds()
		s.Hidden = v.Hidden()
		s.BlendMode = v.BlendMode().String()
		s.Bounds = [4]int32{b.Top, b.Left, b.Bottom, b.Right}
		s.Blocks = blockKeys(v.AdditionalLayerInfo())
		for _, child := range v.Children() {
			s.Children = append(s.Children, summarizeNode(child))
		}
	case *psd.Layer:
		b := v.Bounds()
		s.Hidden = v.Hidden()
		s.BlendMode = v.BlendMode().String()
		s.Bounds = [4]int32{b.Top, b.Left, b.Bottom, b.Right}
		s.Text, _ = v.Text()
		s.Blocks = blockKeys(v.AdditionalLayerInfo())
	}
	return s
}

func blockKeys(blocks []psd.AdditionalLayerInfo) []string {
	keys := make([]string, 0, len(blocks))
	for _, b := range blocks {
		keys = append(keys, b.Key())
	}
	return keys
}

func writeSummary(w io.Writer, s documentSummary, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		writeText(w, s)
		return nil
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeText(w io.Writer, s documentSummary) {
	kind := "PSD"
	if s.Version == psd.VersionPSB {
		kind = "PSB"
	}
	fmt.Fprintf(w, "%s %dx%d, %d channels, %d bits, %s\n", kind, s.Width, s.Height, s.Channels, s.Depth, s.ColorMode)
	fmt.Fprintf(w, "resources: %v\n", s.Resources)
	fmt.Fprintf(w, "guides: %d, slices: %d, patterns: %d\n", s.Guides, s.Slices, len(s.Patterns))
	if len(s.GlobalBlocks) > 0 {
		fmt.Fprintf(w, "global blocks: %s\n", strings.Join(s.GlobalBlocks, " "))
	}
	for _, child := range s.Children {
		writeNodeText(w, child, 0)
	}
}

func writeNodeText(w io.Writer, n nodeSummary, depth int) {
	marker := " "
	if n.Hidden {
		marker = "-"
	}
	fmt.Fprintf(w, "%s%s %s %q opacity=%d blend=%s bounds=%v", strings.Repeat("  ", depth), marker, n.Kind, n.Name, n.Opacity, n.BlendMode, n.Bounds)
	if n.Text != "" {
		fmt.Fprintf(w, " text=%q", n.Text)
	}
	fmt.Fprintln(w)
	for _, child := range n.Children {
		writeNodeText(w, child, depth+1)
	}
}
