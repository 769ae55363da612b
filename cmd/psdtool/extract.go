package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
	"github.com/webtoon/psd"
	"github.com/webtoon/psd/internal/logger"
	"golang.org/x/crypto/blake2b"
)

var (
	extractOut string
	extractXZ  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Write files embedded in smart object layers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := openDocument(args[0])
		if err != nil {
			return err
		}
		if err := os.MkdirAll(extractOut, 0o755); err != nil {
			return err
		}

		files := embeddedFiles(doc)
		if len(files) == 0 {
			logger.LogInfo("No embedded files", map[string]interface{}{"file": args[0]})
			return nil
		}
		for i, f := range files {
			path, err := writeEmbedded(i, f)
			if err != nil {
				return err
			}
			sum := blake2b.Sum256(f.Contents)
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", hex.EncodeToString(sum[:]), path)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", ".", "Output directory")
	extractCmd.Flags().BoolVar(&extractXZ, "xz", false, "Compress extracted files with xz")
}

// embeddedFiles collects linked files from the global blocks and every
// layer, in that order. Entries without contents are skipped.
func embeddedFiles(doc *psd.Document) []*psd.LinkedLayer {
	var out []*psd.LinkedLayer
	collect := func(blocks []psd.AdditionalLayerInfo) {
		for _, b := range blocks {
			linked, ok := b.(*psd.LinkedLayers)
			if !ok {
				continue
			}
			for _, l := range linked.Layers {
				if l.Type == psd.LinkedLayerData && len(l.Contents) > 0 {
					out = append(out, l)
				}
			}
		}
	}
	collect(doc.AdditionalLayerInfo())
	for _, layer := range doc.Layers() {
		collect(layer.AdditionalLayerInfo())
	}
	return out
}

func writeEmbedded(index int, l *psd.LinkedLayer) (string, error) {
	name := fmt.Sprintf("%03d_%s", index, sanitizeFilename(l.Filename))
	if extractXZ {
		name += ".xz"
	}
	path := filepath.Join(extractOut, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	var w io.Writer = f
	var xzw *xz.Writer
	if extractXZ {
		if xzw, err = xz.NewWriter(f); err != nil {
			f.Close()
			return "", err
		}
		w = xzw
	}

	if _, err := w.Write(l.Contents); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if xzw != nil {
		if err := xzw.Close(); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to compress %s: %w", path, err)
		}
	}
	logger.LogDebug("Extracted embedded file", map[string]interface{}{
		"file":      path,
		"unique_id": l.UniqueID,
		"size":      len(l.Contents),
	})
	return path, f.Close()
}
