package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/justchokingaround/reel/internal/clipboard"
	"github.com/justchokingaround/reel/internal/config"
	"github.com/justchokingaround/reel/internal/database"
	"github.com/justchokingaround/reel/internal/history"
	"github.com/justchokingaround/reel/internal/httpx"
	"github.com/justchokingaround/reel/internal/settings"
	"github.com/justchokingaround/reel/internal/update"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile  string
	logLevel string
	noColor  bool
	verbose  bool

	// Wired in PersistentPreRunE
	cfg       *config.Config
	logger    *slog.Logger
	viperPref *config.ViperSettings
	store     *database.SettingsStore
	prefs     settings.Chain
	engine    *ytdlp.Engine
	hist      *history.Service
	clip      *clipboard.Service
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reel",
	Short: "Download videos with yt-dlp from the command line",
	Long: `reel drives yt-dlp to download videos and playlists with bounded
parallelism, keeps a history of finished downloads and resolves direct
media links.

When yt-dlp reports that its extractor is outdated, reel updates it once
and retries the download.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipSetup(cmd) {
			return nil
		}

		if err := config.InitializeDirs(); err != nil {
			return fmt.Errorf("failed to initialize directories: %w", err)
		}

		var v *viper.Viper
		var err error
		cfg, v, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if verbose {
			cfg.Logging.Console = true
			if logLevel == "" {
				cfg.Logging.Level = "debug"
			}
		}
		if noColor {
			cfg.Logging.Color = false
		}

		logger, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		db, err := database.Init(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		// stored overrides win over the config file
		viperPref = config.NewViperSettings(v)
		store = database.NewSettingsStore(db)
		prefs = settings.Chain{store, viperPref}

		hist = history.NewService(db)
		clip = clipboard.NewService(cfg.Tool.ClipboardCommand, logger)

		httpClient := httpx.NewClient(httpx.ClientConfig{
			Timeout:    cfg.Network.Timeout,
			MaxRetries: cfg.Network.MaxRetries,
			UserAgent:  cfg.Network.UserAgent,
			Debug:      cfg.Network.Debug,
			Logger:     logger,
		})

		engine = ytdlp.NewEngine(ytdlp.Config{
			ToolPath:         cfg.Tool.YtDlpPath,
			TranscoderPath:   cfg.Tool.FFmpegPath,
			WorkDir:          cfg.Downloads.Path,
			PreflightTimeout: cfg.Tool.PreflightTimeout,
			UpdateTimeout:    cfg.Tool.UpdateTimeout,
			UpdateCooldown:   cfg.Tool.UpdateCooldown,
			Releases:         update.NewGitHubFetcher(httpClient, cfg.Tool.ReleaseURL, 0),
			Logger:           logger,
		})

		if v.ConfigFileUsed() != "" {
			v.OnConfigChange(func(e fsnotify.Event) {
				logger.Info("config file changed", "name", e.Name)
				_, nv, err := config.Load(cfgFile)
				if err != nil {
					logger.Error("failed to reload config", "error", err)
					return
				}
				viperPref.Reload(nv)
				logger.Info("settings reloaded", "max_parallel", prefs.GetInt("downloads.max_parallel", 0))
			})
			v.WatchConfig()
		}

		logger.Debug("reel starting", "version", version, "config", v.ConfigFileUsed())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			return
		}
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	},
}

// skipSetup reports whether cmd runs without config, logging or database
func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	case "init", "path":
		return cmd.Parent() != nil && cmd.Parent().Name() == "config"
	}
	return false
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/reel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(doctorCmd)
}

// versionCmd displays version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reel version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

// configCmd handles configuration operations
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := configFilePath()

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s", configPath)
		}
		if err := config.SaveDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to save default configuration: %w", err)
		}

		fmt.Printf("Default configuration generated successfully at: %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		fmt.Print(string(data))

		overrides, err := store.All()
		if err != nil {
			return err
		}
		if len(overrides) > 0 {
			fmt.Println("\n# stored overrides (reel config set)")
			for _, s := range overrides {
				fmt.Printf("%s: %s\n", s.Key, s.Value)
			}
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Display configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(configFilePath())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting that overrides the config file",
	Example: `  reel config set downloads.max_parallel 4
  reel config set downloads.cookies_from_browser firefox`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !knownSetting(args[0]) {
			return fmt.Errorf("unknown setting %q", args[0])
		}
		if err := store.Set(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return store.Delete(args[0])
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func configFilePath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(config.GetConfigDir(), "config.yaml")
}

// knownSetting reports whether key exists in the configuration schema
func knownSetting(key string) bool {
	_, v, err := config.Load(cfgFile)
	if err != nil {
		return false
	}
	return slices.Contains(v.AllKeys(), key)
}
