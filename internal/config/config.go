// Package config loads reel's configuration with viper and sets up logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/justchokingaround/reel/internal/ytdlp"
)

const appName = "reel"

// Config is the root configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Downloads DownloadsConfig `mapstructure:"downloads" yaml:"downloads"`
	Tool      ToolConfig      `mapstructure:"tool" yaml:"tool"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
}

// LoggingConfig controls the slog handler and file rotation
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // text or json
	File       string `mapstructure:"file" yaml:"file"`     // empty = state dir
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	Color      bool   `mapstructure:"color" yaml:"color"`
	Console    bool   `mapstructure:"console" yaml:"console"` // log to stderr instead of a file
}

// DatabaseConfig controls the sqlite database
type DatabaseConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	WALMode        bool   `mapstructure:"wal_mode" yaml:"wal_mode"`
	AutoVacuum     bool   `mapstructure:"auto_vacuum" yaml:"auto_vacuum"`
}

// DownloadsConfig holds the defaults applied to every download
type DownloadsConfig struct {
	Path                string                `mapstructure:"path" yaml:"path"`
	MaxParallel         int                   `mapstructure:"max_parallel" yaml:"max_parallel"`
	OutputTemplate      string                `mapstructure:"output_template" yaml:"output_template"`
	Format              string                `mapstructure:"format" yaml:"format"`
	MaxHeight           int                   `mapstructure:"max_height" yaml:"max_height"`
	Container           string                `mapstructure:"container" yaml:"container"`
	AllowRecode         bool                  `mapstructure:"allow_recode" yaml:"allow_recode"`
	Timeout             time.Duration         `mapstructure:"timeout" yaml:"timeout"`
	NoCheckCertificate  bool                  `mapstructure:"no_check_certificate" yaml:"no_check_certificate"`
	CookiesFromBrowser  string                `mapstructure:"cookies_from_browser" yaml:"cookies_from_browser"`
	Proxy               string                `mapstructure:"proxy" yaml:"proxy"`
	ConcurrentFragments int                   `mapstructure:"concurrent_fragments" yaml:"concurrent_fragments"`
	ProgressInterval    time.Duration         `mapstructure:"progress_interval" yaml:"progress_interval"`
	MinFreeSpaceMB      int                   `mapstructure:"min_free_space_mb" yaml:"min_free_space_mb"` // 0 = no check
	Subtitles           ytdlp.SubtitleOptions `mapstructure:"subtitles" yaml:"subtitles"`
}

// ToolConfig locates the external binaries and tunes self-update
type ToolConfig struct {
	YtDlpPath        string        `mapstructure:"ytdlp_path" yaml:"ytdlp_path"`
	FFmpegPath       string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	PreflightTimeout time.Duration `mapstructure:"preflight_timeout" yaml:"preflight_timeout"`
	UpdateTimeout    time.Duration `mapstructure:"update_timeout" yaml:"update_timeout"`
	UpdateCooldown   time.Duration `mapstructure:"update_cooldown" yaml:"update_cooldown"`
	ReleaseURL       string        `mapstructure:"release_url" yaml:"release_url"`
	ClipboardCommand string        `mapstructure:"clipboard_command" yaml:"clipboard_command"` // empty = system clipboard
}

// NetworkConfig tunes the HTTP client used for release lookups
type NetworkConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	Debug      bool          `mapstructure:"debug" yaml:"debug"`
}

// DefaultReleaseURL is the GitHub API endpoint for the latest yt-dlp release
const DefaultReleaseURL = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
			Color:      true,
		},
		Database: DatabaseConfig{
			Path:           filepath.Join(getDataDir(), appName, appName+".db"),
			MaxConnections: 4,
			WALMode:        true,
			AutoVacuum:     true,
		},
		Downloads: DownloadsConfig{
			Path:             defaultDownloadDir(),
			MaxParallel:      2,
			OutputTemplate:   "%(title)s [%(id)s].%(ext)s",
			Timeout:          ytdlp.DefaultTimeout,
			ProgressInterval: 500 * time.Millisecond,
			MinFreeSpaceMB:   512,
			Subtitles: ytdlp.SubtitleOptions{
				Languages: []string{},
			},
		},
		Tool: ToolConfig{
			YtDlpPath:        "yt-dlp",
			PreflightTimeout: ytdlp.DefaultPreflightTimeout,
			UpdateTimeout:    ytdlp.DefaultUpdateTimeout,
			UpdateCooldown:   ytdlp.DefaultUpdateCooldown,
			ReleaseURL:       DefaultReleaseURL,
		},
		Network: NetworkConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  appName,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.color", d.Logging.Color)
	v.SetDefault("logging.console", d.Logging.Console)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.wal_mode", d.Database.WALMode)
	v.SetDefault("database.auto_vacuum", d.Database.AutoVacuum)

	v.SetDefault("downloads.path", d.Downloads.Path)
	v.SetDefault("downloads.max_parallel", d.Downloads.MaxParallel)
	v.SetDefault("downloads.output_template", d.Downloads.OutputTemplate)
	v.SetDefault("downloads.format", d.Downloads.Format)
	v.SetDefault("downloads.max_height", d.Downloads.MaxHeight)
	v.SetDefault("downloads.container", d.Downloads.Container)
	v.SetDefault("downloads.allow_recode", d.Downloads.AllowRecode)
	v.SetDefault("downloads.timeout", d.Downloads.Timeout)
	v.SetDefault("downloads.no_check_certificate", d.Downloads.NoCheckCertificate)
	v.SetDefault("downloads.cookies_from_browser", d.Downloads.CookiesFromBrowser)
	v.SetDefault("downloads.proxy", d.Downloads.Proxy)
	v.SetDefault("downloads.concurrent_fragments", d.Downloads.ConcurrentFragments)
	v.SetDefault("downloads.progress_interval", d.Downloads.ProgressInterval)
	v.SetDefault("downloads.min_free_space_mb", d.Downloads.MinFreeSpaceMB)
	v.SetDefault("downloads.subtitles.languages", d.Downloads.Subtitles.Languages)
	v.SetDefault("downloads.subtitles.write", d.Downloads.Subtitles.Write)
	v.SetDefault("downloads.subtitles.embed", d.Downloads.Subtitles.Embed)
	v.SetDefault("downloads.subtitles.write_auto", d.Downloads.Subtitles.WriteAuto)
	v.SetDefault("downloads.subtitles.format", d.Downloads.Subtitles.Format)
	v.SetDefault("downloads.subtitles.convert_to", d.Downloads.Subtitles.ConvertTo)

	v.SetDefault("tool.ytdlp_path", d.Tool.YtDlpPath)
	v.SetDefault("tool.ffmpeg_path", d.Tool.FFmpegPath)
	v.SetDefault("tool.preflight_timeout", d.Tool.PreflightTimeout)
	v.SetDefault("tool.update_timeout", d.Tool.UpdateTimeout)
	v.SetDefault("tool.update_cooldown", d.Tool.UpdateCooldown)
	v.SetDefault("tool.release_url", d.Tool.ReleaseURL)
	v.SetDefault("tool.clipboard_command", d.Tool.ClipboardCommand)

	v.SetDefault("network.timeout", d.Network.Timeout)
	v.SetDefault("network.max_retries", d.Network.MaxRetries)
	v.SetDefault("network.user_agent", d.Network.UserAgent)
	v.SetDefault("network.debug", d.Network.Debug)
}

// Load reads the configuration from cfgFile, or from config.yaml in the
// config directory when cfgFile is empty. A missing default file is not
// an error. Environment variables prefixed with REEL_ override file values
// (REEL_DOWNLOADS_MAX_PARALLEL=4).
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
	}

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, v, nil
}

// ToDownloadOptions converts the configured defaults into engine options
func (c DownloadsConfig) ToDownloadOptions() ytdlp.DownloadOptions {
	subs := c.Subtitles
	subs.Languages = append([]string(nil), c.Subtitles.Languages...)

	return ytdlp.DownloadOptions{
		Format:              c.Format,
		OutputTemplate:      c.OutputTemplate,
		NoCheckCertificate:  c.NoCheckCertificate,
		CookiesFromBrowser:  c.CookiesFromBrowser,
		Proxy:               c.Proxy,
		ConcurrentFragments: c.ConcurrentFragments,
		Timeout:             c.Timeout,
		TargetContainer:     c.Container,
		AllowRecode:         c.AllowRecode,
		Subtitles:           subs,
	}
}

// SaveDefaultConfig writes the default configuration as YAML
func SaveDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitializeDirs creates the config, data and state directories
func InitializeDirs() error {
	for _, dir := range []string{
		GetConfigDir(),
		filepath.Join(getDataDir(), appName),
		filepath.Join(getStateDir(), appName),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetConfigDir returns $XDG_CONFIG_HOME/reel or the platform equivalent
func GetConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(homeDir(), ".config", appName)
}

func getDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".local", "share")
}

func getStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".local", "state")
}

func defaultDownloadDir() string {
	return filepath.Join(homeDir(), "Downloads", appName)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
