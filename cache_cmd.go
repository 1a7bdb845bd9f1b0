package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/cache"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var (
	evictMaxSizeMB  int64
	evictMaxEntries int64
	historyLimit    int
	historyFull     bool

	evictCmd = &cobra.Command{
		Use:   "evict",
		Short: "Evict least recently used audio from the cache",
		Long: paragraph(fmt.Sprintf("\n%s cached audio, least recently used first, until the cache fits the configured limits. "+
			"Annotations and history are kept.", keyword("Evict"))),
		Example: paragraph("speakcache evict\nspeakcache evict --max-size 100 --max-entries 500"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cm, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer cm.Close() //nolint:errcheck

			maxBytes, maxEntries := cfg.MaxBytes, cfg.MaxEntries
			if cmd.Flags().Changed("max-size") {
				maxBytes = evictMaxSizeMB * 1024 * 1024
			}
			if cmd.Flags().Changed("max-entries") {
				maxEntries = evictMaxEntries
			}

			report, err := cm.EvictWithLimits(cmd.Context(), maxBytes, maxEntries)
			if err != nil {
				return err
			}
			printEviction(cmd.OutOrStdout(), report)
			return nil
		},
	}

	statsCmd = &cobra.Command{
		Use:     "stats",
		Short:   "Show cache usage",
		Args:    cobra.NoArgs,
		Example: paragraph("speakcache stats"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cm, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer cm.Close() //nolint:errcheck

			stats, err := cm.Store().Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), cfg, stats)
			return nil
		},
	}

	historyCmd = &cobra.Command{
		Use:     "history [QUERY]",
		Short:   "List recently spoken text",
		Long:    paragraph(fmt.Sprintf("\nList recently spoken text, newest first. With a query, %s matches are listed best first.", keyword("fuzzy"))),
		Args:    cobra.MaximumNArgs(1),
		Example: paragraph("speakcache history\nspeakcache history -n 50\nspeakcache history weather --full\nspeakcache history play 12 --play\nspeakcache history rm 12"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, _, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer cm.Close() //nolint:errcheck

			limit := historyLimit
			if len(args) > 0 {
				limit = 0
			}
			rows, err := cm.History().Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				rows = filterHistory(rows, args[0])
				if historyLimit > 0 && len(rows) > historyLimit {
					rows = rows[:historyLimit]
				}
			}
			printHistory(cmd.OutOrStdout(), rows, time.Now(), historyFull)
			return nil
		},
	}

	historyRmCmd = &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Remove an utterance from the history",
		Long:    paragraph(fmt.Sprintf("\nRemove an utterance from the history. Its audio stays %s until it is evicted.", keyword("cached"))),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHistoryID(args[0])
			if err != nil {
				return err
			}
			cm, _, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer cm.Close() //nolint:errcheck

			removed, err := cm.History().Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no utterance with id %d", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed utterance %d.\n", id)
			return nil
		},
	}

	historyPlayCmd = &cobra.Command{
		Use:   "play ID",
		Short: "Replay a spoken utterance from the cache",
		Long: paragraph(fmt.Sprintf("\nReplay the audio of an utterance from the history. Audio comes from the cache only; "+
			"nothing is %s or annotated again.", keyword("synthesized"))),
		Example: paragraph("speakcache history play 12 --play\nspeakcache history play 12 -o again.wav"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseHistoryID(args[0])
			if err != nil {
				return err
			}
			out, err := outputsFor(os.Stdout)
			if err != nil {
				return err
			}
			cm, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer cm.Close() //nolint:errcheck

			s := &session{cfg: cfg, cache: cm, logger: log.Default(), newPlayer: openPlayer}
			u, err := s.replay(cmd.Context(), id, out)
			if err != nil {
				return err
			}
			summary := fmt.Sprintf("replayed %s", pluralize(len(u.Segments), "segment", "segments"))
			if out.WAVPath != "" {
				summary += ", saved to " + out.WAVPath
			}
			fmt.Fprintln(os.Stderr, faint(summary))
			return nil
		},
	}
)

func parseHistoryID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil || id == 0 {
		return 0, tts.NewTTSError(tts.ErrorCodeInvalidFormat, fmt.Sprintf("invalid utterance id %q", s), nil)
	}
	return uint(id), nil
}

// openCache opens the cache of the resolved configuration without
// building an engine.
func openCache(cmd *cobra.Command) (*cache.CacheManager, *Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cm, err := cache.NewCacheManager(cfg.CacheConfig(), cache.WithLogger(log.Default().WithPrefix("cache")))
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open cache at %s: %w", cfg.DBPath, err)
	}
	return cm, cfg, nil
}

func printEviction(w io.Writer, r *cache.EvictionReport) {
	fmt.Fprintf(w, "Evicted %s, removed %s.\n",
		pluralize(len(r.Evicted), "entry", "entries"), pluralize(r.FilesRemoved, "file", "files"))
	fmt.Fprintf(w, "%s remaining in %s.\n",
		humanize.IBytes(uint64(r.Remaining.AudioBytes)), //nolint:gosec
		pluralize(int(r.Remaining.AudioEntries), "entry", "entries"))
}

func printStats(w io.Writer, cfg *Config, s cache.CacheStats) {
	fmt.Fprintf(w, "%s %s\n", keyword("Database   "), cfg.DBPath)
	fmt.Fprintf(w, "%s %s\n", keyword("Audio dir  "), cfg.CacheDir)
	fmt.Fprintf(w, "%s %s in %s (limit %s, %s entries)\n", keyword("Audio      "),
		humanize.IBytes(uint64(s.AudioBytes)), //nolint:gosec
		pluralize(int(s.AudioEntries), "entry", "entries"),
		humanize.IBytes(uint64(cfg.MaxBytes)), //nolint:gosec
		humanize.Comma(cfg.MaxEntries))
	fmt.Fprintf(w, "%s %s\n", keyword("Annotations"), humanize.Comma(s.AnnotationEntries))
	fmt.Fprintf(w, "%s %s\n", keyword("History    "), humanize.Comma(s.HistoryEntries))
}

// filterHistory keeps the rows whose text fuzzily matches query, best
// match first.
func filterHistory(rows []cache.Utterance, query string) []cache.Utterance {
	texts := make([]string, len(rows))
	for i, u := range rows {
		texts[i] = u.Text
	}
	matches := fuzzy.Find(query, texts)
	out := make([]cache.Utterance, 0, len(matches))
	for _, m := range matches {
		out = append(out, rows[m.Index])
	}
	return out
}

func printHistory(w io.Writer, rows []cache.Utterance, now time.Time, full bool) {
	if len(rows) == 0 {
		fmt.Fprintln(w, faint("Nothing spoken yet."))
		return
	}
	for _, u := range rows {
		meta := fmt.Sprintf("%4d  %s", u.ID, humanize.RelTime(u.CreatedAt, now, "ago", "from now"))
		if u.Provider != "" {
			meta += ", " + u.Provider
		}
		if !full {
			fmt.Fprintf(w, "%s  %s\n", faint(fmt.Sprintf("%-26s", meta)), truncate(u.Text, 60))
			continue
		}
		fmt.Fprintln(w, faint(meta))
		fmt.Fprintln(w, indent.String(wordwrap.String(u.Text, 74), 2))
		if u.AnnotatedText != "" && u.AnnotatedText != u.Text {
			fmt.Fprintln(w, faint(indent.String(wordwrap.String(u.AnnotatedText, 74), 2)))
		}
		fmt.Fprintln(w)
	}
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}

// truncate fits s on a single line of at most n cells.
func truncate(s string, n int) string {
	return runewidth.Truncate(strings.Join(strings.Fields(s), " "), n, "…")
}

func init() {
	evictCmd.Flags().Int64Var(&evictMaxSizeMB, "max-size", defaultMaxSizeMB, "maximum cached audio in MB")
	evictCmd.Flags().Int64Var(&evictMaxEntries, "max-entries", defaultMaxEntries, "maximum cached audio entries")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of utterances to show, 0 for all")
	historyCmd.Flags().BoolVar(&historyFull, "full", false, "show the whole text and its annotation")
	historyPlayCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write a WAV file")
	historyPlayCmd.Flags().BoolVar(&play, "play", false, "play the audio")
	historyCmd.AddCommand(historyRmCmd, historyPlayCmd)
}
