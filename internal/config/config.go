package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/webtoon/psd"
)

const (
	// AppName is the application name used for config files
	AppName = "psdtool"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "PSDTOOL"
)

// AppConfig holds the tool configuration
type AppConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	Parser struct {
		DecodeZip          bool `mapstructure:"decode_zip"`
		CopyChannelData    bool `mapstructure:"copy_channel_data"`
		MaxDescriptorDepth int  `mapstructure:"max_descriptor_depth"`
		MaxEngineDataDepth int  `mapstructure:"max_engine_data_depth"`
	} `mapstructure:"parser"`

	Export struct {
		ExcludeTextLayers bool `mapstructure:"exclude_text_layers"`
		IncludeHidden     bool `mapstructure:"include_hidden"`
	} `mapstructure:"export"`
}

// Config wraps a viper instance. Flags are bound to it before Load.
type Config struct {
	v *viper.Viper
	// File is the config file that was read, or "" when none was found
	File string
}

// New creates a configuration with defaults and environment lookup
func New() *Config {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Config{v: v}
}

// Viper exposes the underlying instance for flag binding
func (c *Config) Viper() *viper.Viper { return c.v }

// Load reads cfgFile, or searches the working directory and the user
// config directory when cfgFile is empty, and decodes the result. A
// missing config file is not an error.
func (c *Config) Load(cfgFile string) (AppConfig, error) {
	var out AppConfig

	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName(AppName)
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.config/" + AppName)
	}

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return out, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		c.File = c.v.ConfigFileUsed()
	}

	if err := c.v.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("error parsing config: %w", err)
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")

	v.SetDefault("parser.decode_zip", false)
	v.SetDefault("parser.copy_channel_data", false)
	v.SetDefault("parser.max_descriptor_depth", psd.DefaultMaxDescriptorDepth)
	v.SetDefault("parser.max_engine_data_depth", psd.DefaultMaxEngineDataDepth)

	v.SetDefault("export.exclude_text_layers", false)
	v.SetDefault("export.include_hidden", false)
}

// ParserOptions maps the parser settings onto psd.Options
func (a AppConfig) ParserOptions() psd.Options {
	return psd.Options{
		MaxDescriptorDepth: a.Parser.MaxDescriptorDepth,
		MaxEngineDataDepth: a.Parser.MaxEngineDataDepth,
		DecodeZip:          a.Parser.DecodeZip,
		CopyChannelData:    a.Parser.CopyChannelData,
	}
}

// RendererOptions maps the export settings onto psd.RendererOptions
func (a AppConfig) RendererOptions() psd.RendererOptions {
	return psd.RendererOptions{
		ExcludeTextLayers: a.Export.ExcludeTextLayers,
		IncludeHidden:     a.Export.IncludeHidden,
	}
}
