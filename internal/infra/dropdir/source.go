package dropdir

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"agora/internal/domain"
	"agora/internal/pipeline"
)

// Submitter is the slice of the orchestrator the source needs.
type Submitter interface {
	SubmitRecording(ctx context.Context, rec domain.Recording) (*pipeline.Run, error)
}

var audioExtensions = map[string]string{
	".wav":  domain.MIMEWav,
	".webm": domain.MIMEWebM,
	".mp4":  domain.MIMEMP4,
	".m4a":  domain.MIMEMP4,
	".ogg":  "audio/ogg",
	".mp3":  "audio/mpeg",
}

// Source watches a directory and feeds dropped audio files into the
// pipeline as spoken proposals. Processed files are renamed so a restart
// does not replay them.
type Source struct {
	dir       string
	submitter Submitter
	logger    *slog.Logger

	mu        sync.Mutex
	processed map[string]bool
}

func New(dir string, submitter Submitter, logger *slog.Logger) *Source {
	return &Source{
		dir:       dir,
		submitter: submitter,
		logger:    logger,
		processed: make(map[string]bool),
	}
}

// Run watches until ctx is done. Files already present at startup are
// submitted first.
func (s *Source) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating drop dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}

	s.sweep(ctx)

	s.logger.Info("watching drop directory", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				s.maybeSubmit(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func (s *Source) sweep(ctx context.Context) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("reading drop dir", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		s.maybeSubmit(ctx, filepath.Join(s.dir, entry.Name()))
	}
}

func (s *Source) maybeSubmit(ctx context.Context, path string) {
	mime, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return
	}

	s.mu.Lock()
	if s.processed[path] {
		s.mu.Unlock()
		return
	}
	s.processed[path] = true
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("reading dropped file", "path", path, "error", err)
		return
	}
	if len(data) < domain.MinRecordingBytes {
		s.logger.Warn("dropped file too short, skipping", "path", path, "bytes", len(data))
		return
	}

	if err := os.Rename(path, path+".processed"); err != nil {
		s.logger.Warn("marking file processed", "path", path, "error", err)
	}

	s.logger.Info("submitting dropped audio", "path", path, "bytes", len(data))

	run, err := s.submitter.SubmitRecording(ctx, domain.Recording{Data: data, MIMEType: mime})
	if err != nil {
		s.logger.Error("submitting dropped audio", "path", path, "error", err)
		return
	}

	select {
	case <-run.Done():
	case <-ctx.Done():
	}
}
