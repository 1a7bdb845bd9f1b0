package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakcache/internal/tts"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 250 * time.Millisecond

var (
	watchOutput   string
	watchPlay     bool
	watchMarkdown bool

	watchCmd = &cobra.Command{
		Use:   "watch FILE",
		Short: "Speak a file again every time it changes",
		Long: paragraph(fmt.Sprintf("\n%s a text or markdown file and synthesize it whenever it is saved. "+
			"Unchanged sentences come from the cache, so only edits are sent to Cartesia.", keyword("Watch"))),
		Example: paragraph("speakcache watch script.md --markdown --play\nspeakcache watch notes.txt -o notes.wav"),
		Args:    cobra.ExactArgs(1),
		RunE:    runWatch,
	}
)

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := expandPath(args[0])
	if err != nil {
		return tts.NewFileReadError(args[0], err)
	}
	if path, err = filepath.Abs(path); err != nil {
		return tts.NewFileReadError(args[0], err)
	}

	out := outputOptions{Play: watchPlay, InputPath: path}
	if watchOutput != "" {
		if out.WAVPath, err = expandPath(watchOutput); err != nil {
			return tts.NewFileWriteError(watchOutput, err)
		}
	}
	if out.empty() {
		return tts.NewTTSError(tts.ErrorCodeInvalidFormat, "watch needs --output or --play", nil)
	}
	if samePath(out.WAVPath, path) {
		return tts.NewTTSError(tts.ErrorCodeFileWrite, "output would overwrite the watched file", nil).
			WithContext(tts.ContextPath, out.WAVPath)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, nil, log.Default())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	ctx := cmd.Context()
	speaker := &fileSpeaker{session: s, path: path, out: out, markdown: watchMarkdown}
	speak := func() {
		report, err := speaker.speak(ctx)
		switch {
		case err != nil && tts.CodeOf(err) == tts.ErrorCodeCanceled:
		case err != nil:
			fmt.Fprintln(os.Stderr, "Error:", tts.UserMessage(err))
		case report != nil:
			fmt.Fprintln(os.Stderr, faint(fmt.Sprintf("%s: %d segments, %d cached",
				time.Now().Format(time.Kitchen), len(report.Result.Segments), report.Result.CacheHits)))
		}
	}

	speak()
	fmt.Fprintln(os.Stderr, faint("Watching "+path+", press ctrl+c to stop."))
	err = watchFile(ctx, path, watchDebounce, speak)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// fileSpeaker synthesizes a file each time its text changes.
type fileSpeaker struct {
	session  *session
	path     string
	out      outputOptions
	markdown bool
	last     string
}

// speak reads the file and runs it when its text differs from the last
// run. It returns a nil report when there was nothing new to say.
func (f *fileSpeaker) speak(ctx context.Context) (*runReport, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, tts.NewFileReadError(f.path, err)
	}
	input := prepareInput(string(b), f.markdown)
	if input == f.last {
		return nil, nil
	}
	f.last = input
	return f.session.run(ctx, input, f.out)
}

// watchFile calls onChange after path is written or recreated, once per
// burst of events within debounce. It blocks until ctx is done.
//
// The parent directory is watched so editors that save by renaming a
// temporary file are still followed.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create file watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Info("Watching dir", "dir", dir)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("File event", "file", event.Name, "event", event.Op)
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("Watcher error", "dir", dir, "err", err)
		case <-timer.C:
			onChange()
		}
	}
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "write a WAV file on every change")
	watchCmd.Flags().BoolVar(&watchPlay, "play", false, "play the audio on every change")
	watchCmd.Flags().BoolVar(&watchMarkdown, "markdown", false, "treat the file as markdown and speak only its text")
	watchCmd.Flags().BoolVar(&noAnnotate, "no-annotate", false, "skip prosody annotation")
}
