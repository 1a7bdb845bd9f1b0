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

const defaultConfig = `# Cartesia API key (CARTESIA_API_KEY takes precedence)
# apiKey: ""
# Cartesia voice ID (--voice-id and CARTESIA_VOICE_ID take precedence)
# voiceId: ""
# synthesis model
model: "sonic-2"
# PCM sample rate: 8000, 16000, 22050, 24000, 44100 or 48000
sampleRate: 44100
# language sent with each request
language: "ja"
# synthesis engine: cartesia or mock
engine: "cartesia"

# prosody annotation before synthesis
annotation:
  enabled: true
  # provider: claude or sentences
  provider: "claude"
  model: "claude-sonnet-4-20250514"
  # apiKey: "" (defaults to ANTHROPIC_API_KEY)

# audio and annotation cache
cache:
  # db: "~/.local/share/speakcache/speakcache.db"
  # dir: "~/.cache/speakcache/audio"
  maxSizeMB: 500
  maxEntries: 10000
  # zstd level for cached audio, 0 stores it uncompressed
  compression: 3
  # evict least recently used audio after each run
  autoEvict: true
  # replay cached audio on cache hits
  replay: true
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the speakcache config file",
	Long:    paragraph(fmt.Sprintf("\n%s the speakcache config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("speakcache config\nspeakcache config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("speakcache", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Fprintln(os.Stderr, "Wrote config file to:", configFile)
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
