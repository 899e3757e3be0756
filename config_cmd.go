package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Where the pre-recorded clips live. base_url wins over dir.
assets:
  dir: "assets"
  # base_url: "https://cdn.example.com/audio"
  ext: "mp3"

playback:
  # Volume level (0.0 to 1.0)
  volume: 1.0
  # Target locale for speech synthesis
  locale: "zh-CN"
  # How long a clip may take to load before the next tier is tried
  load_timeout: "1.2s"
  # Pause before retrying a playback the output refused
  retry_delay: "150ms"
  # How long to wait for the speech voice list
  voice_wait: "2s"

prefetch:
  concurrency: 4
  timeout: "5s"

host:
  # Identifying string classified to decide whether speech is reliable
  user_agent: ""
  # Replace the built-in classification table
  # rules:
  #   - pattern: "(?i)MicroMessenger"
  #     label: "WeChat"
  #     no_speech: true
  #     reason: "speech synthesis support is incomplete in this browser"

speech:
  # auto, gtts, piper or none
  engine: "auto"
  gtts:
    binary: "gtts-cli"
    tld: "com"
    slow: false
    requests_per_minute: 50
  piper:
    binary: "piper"
    # model_path: "/path/to/zh_CN-huayan-medium.onnx"

phrases:
  # Curated praise and encouragement phrases (YAML or JSON)
  # file: "/path/to/phrases.yml"
  watch: false

metrics:
  # Serve Prometheus metrics, e.g. "localhost:9464"
  addr: ""

log:
  debug: false
  # file: "/path/to/cuecast.log"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the cuecast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the cuecast config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("cuecast config\ncuecast config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("cuecast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
