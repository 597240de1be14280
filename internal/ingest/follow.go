package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/logging"
)

// FollowSource tails growing capture files. Files that match Patterns
// when Run starts are read from their current end (or from the start with
// FromStart); files created later are read from the start. A file that
// shrinks is treated as rotated and decoded again from offset zero.
type FollowSource struct {
	Patterns  []string
	Storage   bool
	FromStart bool

	watcher *fsnotify.Watcher
	files   map[string]*followedFile
}

type followedFile struct {
	f      *os.File
	w      io.WriteCloser
	offset int64
}

// Name implements Source
func (s *FollowSource) Name() string {
	return strings.Join(s.Patterns, ",")
}

// Run implements Source
func (s *FollowSource) Run(ctx context.Context, open Opener) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	s.watcher = watcher
	s.files = make(map[string]*followedFile)
	defer s.closeAll()
	defer watcher.Close()

	for _, pattern := range s.Patterns {
		if err := s.watchBase(pattern); err != nil {
			return err
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, path := range matches {
			if err := s.track(path, open, s.FromStart); err != nil {
				logging.Warn("Cannot follow file", zap.String("path", path), zap.Error(err))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handle(event, open)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("File watcher error", zap.Error(err))
		}
	}
}

// watchBase watches the static directory prefix of a pattern and, when the
// pattern can descend, every directory below it.
func (s *FollowSource) watchBase(pattern string) error {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	base = filepath.FromSlash(base)
	if err := s.watcher.Add(base); err != nil {
		return fmt.Errorf("failed to watch %s: %w", base, err)
	}
	if !strings.Contains(rest, "**") && !strings.Contains(rest, "/") {
		return nil
	}
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == base {
			return nil
		}
		return s.watcher.Add(path)
	})
}

func (s *FollowSource) matches(path string) bool {
	for _, pattern := range s.Patterns {
		if ok, _ := doublestar.PathMatch(pattern, path); ok {
			return true
		}
	}
	return false
}

func (s *FollowSource) handle(event fsnotify.Event, open Opener) {
	path := event.Name

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := s.watcher.Add(path); err != nil {
				logging.Warn("Cannot watch directory", zap.String("path", path), zap.Error(err))
			}
			return
		}
		if s.matches(path) {
			if err := s.track(path, open, true); err != nil {
				logging.Warn("Cannot follow file", zap.String("path", path), zap.Error(err))
			}
		}
	case event.Has(fsnotify.Write):
		if ff, ok := s.files[path]; ok {
			s.readNew(path, ff, open)
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		s.untrack(path)
	}
}

func (s *FollowSource) track(path string, open Opener, fromStart bool) error {
	if _, ok := s.files[path]; ok {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	ff := &followedFile{f: f, w: open(StreamInfo{Name: path, Storage: s.Storage})}
	if !fromStart {
		// Mid-file offsets are not frame aligned; start at the end and
		// only decode what is appended.
		if ff.offset, err = f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return err
		}
	}
	s.files[path] = ff
	logging.Info("Following capture", zap.String("path", path), zap.Int64("offset", ff.offset))
	s.readNew(path, ff, open)
	return nil
}

func (s *FollowSource) readNew(path string, ff *followedFile, open Opener) {
	info, err := ff.f.Stat()
	if err != nil {
		logging.Warn("Cannot stat followed file", zap.String("path", path), zap.Error(err))
		return
	}
	if info.Size() < ff.offset {
		logging.Info("Capture truncated, restarting", zap.String("path", path))
		_ = ff.w.Close()
		ff.w = open(StreamInfo{Name: path, Storage: s.Storage})
		ff.offset = 0
	}
	if info.Size() == ff.offset {
		return
	}

	section := io.NewSectionReader(ff.f, ff.offset, info.Size()-ff.offset)
	n, err := io.Copy(ff.w, section)
	ff.offset += n
	if err != nil && !errors.Is(err, io.EOF) {
		logging.Warn("Stopped following capture", zap.String("path", path), zap.Error(err))
		s.untrack(path)
	}
}

func (s *FollowSource) untrack(path string) {
	ff, ok := s.files[path]
	if !ok {
		return
	}
	delete(s.files, path)
	_ = ff.w.Close()
	_ = ff.f.Close()
}

func (s *FollowSource) closeAll() {
	for path := range s.files {
		s.untrack(path)
	}
}
