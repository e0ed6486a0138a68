package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# word-wrap at width (0 uses the terminal width)
width: 0
# mouse wheel support in the reader
mouse: false

# Narration settings. The Gemini API key is read from GEMINI_API_KEY or
# GOOGLE_API_KEY and never stored here.
tts:
  gemini:
    model: "gemini-2.5-flash-preview-tts"
    voice: "Zephyr"
    # requests per minute, 0 for unlimited
    requests_per_minute: 0
    timeout: "30s"

  playback:
    # soft segment length cap in characters
    segment_limit: 200
    # narrate the first sentence on its own to start sooner
    fast_start: false
    # segments synthesized ahead of playback, 0 for strictly sequential
    lookahead: 0
    start_delay: "100ms"

  audio:
    # auto, oto or mock
    backend: "auto"

  cache:
    enabled: true
    # dir: "~/.cache/bookvoice/audio"
    memory_mb: 32
    disk_mb: 512
    # zstd level, 1 (fastest) to 4 (best)
    compression_level: 2
    ttl_days: 30

  progress:
    enabled: true
    # path: "~/.local/share/bookvoice/progress.db"

  metrics:
    # serve Prometheus metrics, for example ":9464"
    listen: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the bookvoice config file",
	Long:    paragraph(fmt.Sprintf("\n%s the bookvoice config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("bookvoice config\nbookvoice config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("bookvoice", configFile)
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

		// report mistakes now rather than on the next narration
		v := viper.New()
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config file is not valid YAML: %w", err)
		}
		if _, err := tts.LoadConfig(v); err != nil {
			return err
		}
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
