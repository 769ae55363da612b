package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/webtoon/psd"
	"github.com/webtoon/psd/internal/logger"
)

var (
	exportOut     string
	exportLayers  bool
	exportFlatten bool
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export the merged image, and optionally each layer, as PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := openDocument(args[0])
		if err != nil {
			return err
		}
		if err := os.MkdirAll(exportOut, 0o755); err != nil {
			return err
		}

		rgba, err := doc.Composite(true, true)
		if err != nil {
			return fmt.Errorf("failed to composite merged image: %w", err)
		}
		if err := writePNG(filepath.Join(exportOut, "merged.png"), doc.Width(), doc.Height(), rgba); err != nil {
			return err
		}

		if exportLayers {
			if err := exportLayerImages(doc); err != nil {
				return err
			}
		}

		if exportFlatten {
			img, err := psd.NewRenderer(doc, appCfg.RendererOptions()).Render()
			if err != nil {
				return fmt.Errorf("failed to flatten: %w", err)
			}
			if err := psd.SavePNG(filepath.Join(exportOut, "flattened.png"), img); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", ".", "Output directory")
	exportCmd.Flags().BoolVar(&exportLayers, "layers", false, "Also export every layer")
	exportCmd.Flags().BoolVar(&exportFlatten, "flatten", false, "Also render the layer tree with blend modes")
}

func exportLayerImages(doc *psd.Document) error {
	for i, layer := range doc.Layers() {
		rgba, err := layer.Composite(true, true)
		if errors.Is(err, psd.ErrChannelNotFound) || errors.Is(err, psd.ErrInvalidPixelCount) {
			logger.LogDebug("Skipping layer without pixels", map[string]interface{}{"layer": layer.Name()})
			continue
		}
		if psd.IsUnsupported(err) {
			logger.LogWarn("Skipping layer", map[string]interface{}{"layer": layer.Name(), "error": err.Error()})
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to composite layer %q: %w", layer.Name(), err)
		}
		name := fmt.Sprintf("%03d_%s.png", i, sanitizeFilename(layer.Name()))
		if err := writePNG(filepath.Join(exportOut, name), layer.Width(), layer.Height(), rgba); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, width, height int, rgba []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := psd.EncodePNG(f, width, height, rgba); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	logger.LogInfo("Wrote image", map[string]interface{}{"file": path, "width": width, "height": height})
	return f.Close()
}

func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
