// Package main provides the entry point for the speakcache CLI application.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"golang.org/x/text/unicode/norm"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	text       string
	inputPath  string
	voiceID    string
	outputPath string
	play       bool
	markdown   bool
	noAnnotate bool
	paste      bool

	rootCmd = &cobra.Command{
		Use:   "speakcache [TEXT]",
		Short: "Speak text through Cartesia, with a cache",
		Long: paragraph(
			fmt.Sprintf("\nSynthesize speech with Cartesia, %s annotated by Claude, and %s every annotation and rendered segment.",
				keyword("optionally"), keyword("cache")),
		),
		Example: paragraph("speakcache \"こんにちは\" > hello.pcm\n" +
			"speakcache -i script.md --markdown -o script.wav\n" +
			"echo hello | speakcache -i - --no-annotate --play"),
		SilenceErrors:    true,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		RunE:             execute,
	}
)

// readInput returns the text to speak: the argument, --text, the
// clipboard, or the contents of --input ("-" reads stdin). The second
// result is the path of the file the text came from, if any.
func readInput(args []string, stdin io.Reader) (string, string, error) {
	switch {
	case len(args) > 0:
		return args[0], "", nil
	case text != "":
		return text, "", nil
	case paste:
		s, err := clipboard.ReadAll()
		if err != nil {
			return "", "", tts.NewFileReadError("clipboard", err)
		}
		return s, "", nil
	case inputPath == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", tts.NewFileReadError("-", err)
		}
		return string(b), "", nil
	case inputPath != "":
		path, err := expandPath(inputPath)
		if err != nil {
			return "", "", tts.NewFileReadError(inputPath, err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", "", tts.NewFileReadError(inputPath, err)
		}
		return string(b), path, nil
	default:
		return "", "", tts.NewTTSError(tts.ErrorCodeMissingText, "text is required", nil)
	}
}

// loadConfig resolves the configuration for the current invocation.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, tts.NewFileReadError(configFile, err)
		}
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
	}

	e, err := loadEnv()
	if err != nil {
		return nil, fmt.Errorf("unable to parse environment: %w", err)
	}
	cfg, err := resolveConfig(viper.GetViper(), e, cliOverrides{
		VoiceID:    voiceID,
		VoiceIDSet: cmd.Flags().Changed("voice-id"),
	})
	if err != nil {
		return nil, err
	}
	if noAnnotate {
		cfg.Annotate = false
	}
	if skip, _ := cmd.Flags().GetBool("no-replay"); skip {
		cfg.Replay = false
	}
	return cfg, nil
}

// prepareInput turns raw input into the text that is spoken. Text is
// NFC normalized so equal strings share cache entries.
func prepareInput(s string, isMarkdown bool) string {
	if isMarkdown {
		s = tts.NewSentenceParser().PlainText(s)
	}
	return norm.NFC.String(s)
}

// outputsFor decides where audio goes. Raw PCM is never written to a
// terminal.
func outputsFor(stdout *os.File) (outputOptions, error) {
	out := outputOptions{Play: play}
	if outputPath != "" {
		p, err := expandPath(outputPath)
		if err != nil {
			return out, tts.NewFileWriteError(outputPath, err)
		}
		out.WAVPath = p
	}
	if !term.IsTerminal(int(stdout.Fd())) { //nolint:gosec
		out.Stdout = stdout
	}
	return out, nil
}

func execute(cmd *cobra.Command, args []string) error {
	input, source, err := readInput(args, os.Stdin)
	if err != nil {
		return err
	}
	input = prepareInput(input, markdown)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := outputsFor(os.Stdout)
	if err != nil {
		return err
	}
	out.InputPath = source

	s, err := newSession(cfg, nil, log.Default())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	report, err := s.run(cmd.Context(), input, out)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("%d segments, %d cached, %s of audio",
		len(report.Result.Segments), report.Result.CacheHits, humanize.Bytes(uint64(len(report.Result.Bytes())))) //nolint:gosec
	if out.WAVPath != "" {
		summary += ", saved to " + out.WAVPath
	}
	if report.TextPath != "" {
		summary += ", annotation saved to " + report.TextPath
	}
	fmt.Fprintln(os.Stderr, faint(summary))
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", tts.UserMessage(err))
		if tts.CodeOf(err) == tts.ErrorCodeCanceled {
			os.Exit(130)
		}
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

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().String("db", "", "cache database path")
	rootCmd.PersistentFlags().String("cache-dir", "", "cached audio directory")

	flags := rootCmd.Flags()
	flags.StringVarP(&text, "text", "t", "", "text to synthesize")
	flags.StringVarP(&inputPath, "input", "i", "", "read text from a file (- for stdin)")
	flags.StringVar(&voiceID, "voice-id", "", "Cartesia voice ID")
	flags.StringVarP(&outputPath, "output", "o", "", "write a WAV file (and the annotated text next to it)")
	flags.StringP("model", "m", defaultModel, "synthesis model")
	flags.Int("sample-rate", defaultSampleRate, "PCM sample rate")
	flags.String("language", defaultLanguage, "language sent with each request")
	flags.String("engine", "", "synthesis engine (cartesia or mock)")
	flags.String("provider", defaultProvider, "annotation provider ("+strings.Join(tts.SupportedProviders, ", ")+")")
	flags.String("provider-model", defaultProviderModel, "annotation model")
	flags.String("provider-api-key", "", "annotation provider API key")
	flags.BoolVar(&noAnnotate, "no-annotate", false, "skip prosody annotation")
	flags.BoolVar(&play, "play", false, "play the audio while it is synthesized")
	flags.BoolVar(&paste, "paste", false, "speak the clipboard contents")
	flags.BoolVar(&markdown, "markdown", false, "treat the input as markdown and speak only its text")
	flags.Bool("no-replay", false, "do not replay cached audio to stdout")
	flags.Bool("auto-evict", true, "evict least recently used audio after the run")

	// Config bindings
	_ = viper.BindPFlag("cache.db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("cache.dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("sampleRate", flags.Lookup("sample-rate"))
	_ = viper.BindPFlag("language", flags.Lookup("language"))
	_ = viper.BindPFlag("engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("annotation.provider", flags.Lookup("provider"))
	_ = viper.BindPFlag("annotation.model", flags.Lookup("provider-model"))
	_ = viper.BindPFlag("annotation.apiKey", flags.Lookup("provider-api-key"))
	_ = viper.BindPFlag("cache.autoEvict", flags.Lookup("auto-evict"))

	setDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, evictCmd, statsCmd, historyCmd, watchCmd, voicesCmd)
}
