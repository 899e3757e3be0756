// Package main provides the entry point for the cuecast CLI application.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/cuecast/internal/config"
)

const shutdownTimeout = 2 * time.Second

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	volume      float64
	assetsDir   string
	baseURL     string
	userAgent   string
	noSpeech    bool
	metricsAddr string
	debug       bool

	// cfg is the resolved configuration, available to every subcommand.
	cfg       config.Config
	logCloser = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "cuecast",
		Short: "Play character clips, praise and cues with graceful fallback",
		Long: paragraph(
			fmt.Sprintf("\nPlay pronunciation clips, praise and feedback tones, %s.", keyword("falling back until something plays")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// validateOptions resolves the configuration. Precedence, lowest first:
// defaults, config file, CUECAST_* environment, flags.
func validateOptions(cmd *cobra.Command) error {
	// config must stay usable when the file itself is broken.
	switch cmd.Name() {
	case "config", "man":
		return nil
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, &c); err != nil {
		return err
	}
	cfg = c

	closer, err := setupLog(cfg.Log.Debug, cfg.Log.File, cmd.Name() == drillCmd.Name())
	if err != nil {
		return err
	}
	logCloser = closer
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
	return nil
}

// applyFlags copies explicitly set flags over c and validates again.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("volume") {
		c.Playback.Volume = volume
	}
	if flags.Changed("assets") {
		c.Assets.Dir = assetsDir
	}
	if flags.Changed("base-url") {
		c.Assets.BaseURL = baseURL
	}
	if flags.Changed("user-agent") {
		c.Host.UserAgent = userAgent
	}
	if flags.Changed("no-speech") && noSpeech {
		c.Speech.Engine = config.EngineNone
	}
	if flags.Changed("metrics-addr") {
		c.Metrics.Addr = metricsAddr
	}
	if flags.Changed("debug") {
		c.Log.Debug = debug
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.Float64Var(&volume, "volume", 1.0, "playback volume between 0 and 1")
	flags.StringVarP(&assetsDir, "assets", "a", "assets", "directory holding the pre-recorded clips")
	flags.StringVar(&baseURL, "base-url", "", "fetch clips over HTTP from this base instead of --assets")
	flags.StringVar(&userAgent, "user-agent", "", "host identifier used to pick the playback profile")
	flags.BoolVar(&noSpeech, "no-speech", false, "disable speech synthesis")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(
		sayCmd, prefetchCmd, praiseCmd, encourageCmd, toneCmd, profileCmd, drillCmd,
		configCmd, manCmd,
	)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "cuecast")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "cuecast")}, dirs...)
	}

	if c := os.Getenv("CUECAST_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("cuecast")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		return
	}

	configFile = filepath.Join(dirs[0], "cuecast.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
