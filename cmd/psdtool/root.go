package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/webtoon/psd"
	"github.com/webtoon/psd/internal/config"
	"github.com/webtoon/psd/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile string
	cfg     = config.New()
	appCfg  config.AppConfig
)

// rootCmd represents the base CLI command
var rootCmd = &cobra.Command{
	Use:   "psdtool",
	Short: "Inspect and export Photoshop documents",
	Long: `psdtool reads PSD and PSB files. It prints the document structure,
exports the merged image and individual layers as PNG, and extracts files
embedded in smart object layers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if appCfg, err = cfg.Load(cfgFile); err != nil {
			return err
		}
		err = logger.InitLogger(logger.LoggerConfig{
			Debug:     appCfg.Debug,
			LogFormat: appCfg.LogFormat,
			LogFile:   appCfg.LogFile,
		})
		if err != nil {
			return err
		}
		if cfg.File != "" {
			logger.LogDebug("Loaded config file", map[string]interface{}{"file": cfg.File})
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		logger.LogError("Command execution failed", err, nil)
		return err
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./psdtool.yaml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-format", "human", "Log format: json or human")
	flags.Bool("decode-zip", false, "Inflate ZIP compressed channels")

	v := cfg.Viper()
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	_ = v.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = v.BindPFlag("parser.decode_zip", flags.Lookup("decode-zip"))

	rootCmd.AddCommand(inspectCmd, exportCmd, extractCmd, versionCmd)
}

func openDocument(path string) (*psd.Document, error) {
	opts := appCfg.ParserOptions()
	opts.Logger = logger.Desugar()

	doc, err := psd.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	logger.LogDebug("Parsed document", map[string]interface{}{
		"file":   path,
		"width":  doc.Width(),
		"height": doc.Height(),
		"layers": len(doc.Layers()),
	})
	return doc, nil
}

// versionCmd shows the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "psdtool %s\n", version)
	},
}
