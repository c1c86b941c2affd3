// Package config loads server settings from flags, environment and an
// optional config file.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. FTS_ADDR.
const EnvPrefix = "FTS"

type StorageConfig struct {
	Backend   string `mapstructure:"backend"`   // disk|s3
	Collision string `mapstructure:"collision"` // suffix|overwrite
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

type ThumbnailConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Width   int  `mapstructure:"width"`
	Height  int  `mapstructure:"height"`
}

type MDNSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Instance string `mapstructure:"instance"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json|text
}

type Config struct {
	Addr           string          `mapstructure:"addr"`
	StaticDir      string          `mapstructure:"static_dir"`
	UploadDir      string          `mapstructure:"upload_dir"`
	FormField      string          `mapstructure:"form_field"`
	MaxUploadBytes int64           `mapstructure:"max_upload_bytes"`
	Storage        StorageConfig   `mapstructure:"storage"`
	S3             S3Config        `mapstructure:"s3"`
	Thumbnails     ThumbnailConfig `mapstructure:"thumbnails"`
	DatabaseURL    string          `mapstructure:"database_url"`
	MDNS           MDNSConfig      `mapstructure:"mdns"`
	Log            LogConfig       `mapstructure:"log"`
	Compression    bool            `mapstructure:"compression"`
	Version        string          `mapstructure:"version"`
	Commit         string          `mapstructure:"commit"`
}

// SetDefaults registers every key so environment overrides are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":3000")
	v.SetDefault("static_dir", "./static")
	v.SetDefault("upload_dir", "")
	v.SetDefault("form_field", "file")
	v.SetDefault("max_upload_bytes", 0)
	v.SetDefault("storage.backend", "disk")
	v.SetDefault("storage.collision", "suffix")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "files/")
	v.SetDefault("thumbnails.enabled", false)
	v.SetDefault("thumbnails.width", 50)
	v.SetDefault("thumbnails.height", 50)
	v.SetDefault("database_url", "")
	v.SetDefault("mdns.enabled", false)
	v.SetDefault("mdns.instance", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("compression", true)
	v.SetDefault("version", "dev")
	v.SetDefault("commit", "")
}

// New returns a viper instance with defaults and FTS_ environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file, decodes v and validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.Collision = strings.ToLower(strings.TrimSpace(c.Storage.Collision))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.UploadDir == "" {
		c.UploadDir = filepath.Join(c.StaticDir, "files")
	}
}
