// Package tail follows a single access log file and emits complete lines.
package tail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Config 는 follower 설정.
type Config struct {
	Path         string
	StateFile    string        // bookmark 저장 경로 ("" = 저장 안 함)
	PollInterval time.Duration // 0 이면 fsnotify 이벤트만 사용
	FromStart    bool          // bookmark 가 없을 때 처음부터 읽는다 (기본: EOF 부터)
}

// tailedFile 은 현재 열려 있는 파일 상태.
type tailedFile struct {
	file   *os.File
	inode  uint64
	offset int64
}

// Tailer 는 Path 한 파일을 따라가며 새로 붙은 줄을 내보낸다.
//
//   - 부모 디렉토리를 fsnotify 로 감시해 rotation(rename/create)을 잡는다
//   - inode 가 바뀌면 새 파일을 처음부터, 크기가 줄면(truncate) 처음부터 다시 읽는다
//   - 개행으로 끝나지 않은 마지막 줄은 offset 을 넘기지 않고 다음 읽기까지 기다린다
type Tailer struct {
	path         string
	stateFile    string
	pollInterval time.Duration
	fromStart    bool

	tf *tailedFile
}

func New(cfg Config) *Tailer {
	return &Tailer{
		path:         filepath.Clean(cfg.Path),
		stateFile:    cfg.StateFile,
		pollInterval: cfg.PollInterval,
		fromStart:    cfg.FromStart,
	}
}

// Run 은 ctx 가 끝날 때까지 줄을 out 으로 보낸다.
// out 이 막히면 읽기도 멈춘다. 반환 전에 bookmark 를 저장한다.
func (t *Tailer) Run(ctx context.Context, out chan<- string) error {
	bm, err := loadBookmark(t.stateFile)
	if err != nil {
		log.Warn().Err(err).Str("state_file", t.stateFile).Msg("failed to load bookmark, starting fresh")
	}
	t.open(bm, t.fromStart)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(t.path), err)
	}
	defer t.saveAndClose()

	if err := t.readNewLines(ctx, out); err != nil {
		return nil
	}

	var tickCh <-chan time.Time
	if t.pollInterval > 0 {
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			err = t.handleFSEvent(ctx, ev, out)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(werr).Msg("fsnotify error")

		case <-tickCh:
			if t.tf == nil {
				// 파일이 사라졌다가 다시 생긴 경우. 새 파일이므로 처음부터.
				t.open(bookmark{}, true)
			}
			err = t.readNewLines(ctx, out)
			t.save()
		}
		if err != nil {
			return nil
		}
	}
}

func (t *Tailer) handleFSEvent(ctx context.Context, ev fsnotify.Event, out chan<- string) error {
	if filepath.Clean(ev.Name) != t.path {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Write):
		if t.tf == nil {
			t.open(bookmark{}, true)
		}
		return t.readNewLines(ctx, out)

	case ev.Has(fsnotify.Create):
		t.closeFile()
		t.open(bookmark{}, true)
		return t.readNewLines(ctx, out)

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		log.Info().Str("path", t.path).Msg("file removed or rotated")
		t.closeFile()
	}
	return nil
}

// open 은 bookmark 가 같은 inode 를 가리키면 그 위치에서, 아니면 fromStart 에 따라
// 처음 또는 끝에서 시작한다. 파일이 없으면 조용히 넘어간다 (poll/create 에서 다시 시도).
func (t *Tailer) open(bm bookmark, fromStart bool) {
	if t.tf != nil {
		return
	}

	f, err := os.Open(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", t.path).Msg("failed to open file")
		}
		return
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		log.Warn().Err(err).Str("path", t.path).Msg("failed to stat file")
		return
	}

	inode, _ := getInode(info)
	tf := &tailedFile{file: f, inode: inode}

	switch {
	case bm.Path == t.path && bm.Inode == inode && bm.Offset <= info.Size():
		tf.offset = bm.Offset
	case fromStart:
		tf.offset = 0
	default:
		// bookmark 가 없으면 EOF 부터 (기존 로그 전체를 다시 보내지 않는다)
		tf.offset = info.Size()
	}

	t.tf = tf
	log.Debug().Str("path", t.path).Int64("offset", tf.offset).Msg("tailing file")
}

// readNewLines 는 offset 이후의 완성된 줄을 모두 보낸다.
// ctx 가 끝나면 ctx.Err() 를 반환한다.
func (t *Tailer) readNewLines(ctx context.Context, out chan<- string) error {
	if t.tf == nil {
		return nil
	}

	info, err := os.Stat(t.path)
	if err != nil {
		return nil
	}

	if inode, ok := getInode(info); ok && t.tf.inode != 0 && inode != t.tf.inode {
		log.Info().Str("path", t.path).Msg("inode change detected, reopening")
		t.closeFile()
		t.open(bookmark{}, true)
		if t.tf == nil {
			return nil
		}
	}

	if info.Size() < t.tf.offset {
		log.Info().Str("path", t.path).Msg("truncation detected, resetting")
		t.tf.offset = 0
	}
	if info.Size() == t.tf.offset {
		return nil
	}

	if _, err := t.tf.file.Seek(t.tf.offset, io.SeekStart); err != nil {
		return nil
	}

	r := bufio.NewReaderSize(t.tf.file, 64*1024)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			// EOF: 개행 없는 나머지는 다음에 다시 읽는다
			return nil
		}
		t.tf.offset += int64(len(line))

		line = trimEOL(line)
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Tailer) closeFile() {
	if t.tf == nil {
		return
	}
	_ = t.tf.file.Close()
	t.tf = nil
}

func (t *Tailer) save() {
	if t.tf == nil {
		return
	}
	b := bookmark{Path: t.path, Inode: t.tf.inode, Offset: t.tf.offset}
	if err := saveBookmark(t.stateFile, b); err != nil {
		log.Warn().Err(err).Msg("failed to save bookmark")
	}
}

func (t *Tailer) saveAndClose() {
	t.save()
	t.closeFile()
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// getInode 는 file info 에서 inode 를 꺼낸다.
func getInode(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return stat.Ino, true
}
