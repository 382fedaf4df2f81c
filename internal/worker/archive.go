package worker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"logship/internal/codec"
	"logship/internal/model"
)

// archiveWriter 는 sweep 한 번이 소유하는 archive 출력 스트림이다.
//
// 임시 파일에 BestCompression gzip 으로 한 줄씩 기록하고,
// Commit 에서 fsync 후 최종 이름으로 rename 한다.
// 메모리에는 현재 줄 하나만 유지한다.
type archiveWriter struct {
	final string
	file  *os.File
	bw    *bufio.Writer
	gz    *gzip.Writer
	line  []byte
	lines int
}

func createArchive(dir string, cutoff time.Time) (*archiveWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(dir, ".archive-*.tmp")
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriterSize(f, 256*1024)
	gz, err := gzip.NewWriterLevel(bw, gzip.BestCompression)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}

	return &archiveWriter{
		final: ArchivePath(dir, cutoff),
		file:  f,
		bw:    bw,
		gz:    gz,
		line:  make([]byte, 0, 512),
	}, nil
}

// Write 는 이벤트를 access log 한 줄로 복원해 기록한다.
func (a *archiveWriter) Write(ev *model.LogEvent) error {
	a.line = codec.AppendLine(a.line[:0], ev)
	a.line = append(a.line, '\n')
	if _, err := a.gz.Write(a.line); err != nil {
		return err
	}
	a.lines++
	return nil
}

// Commit 은 스트림을 닫고 최종 경로로 옮긴 뒤 그 경로를 반환한다.
// 반환 시점에 archive 는 디스크에 durable 하다.
func (a *archiveWriter) Commit() (string, error) {
	tmp := a.file.Name()
	fail := func(err error) (string, error) {
		_ = a.file.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit archive %s: %w", a.final, err)
	}

	if err := a.gz.Close(); err != nil {
		return fail(err)
	}
	if err := a.bw.Flush(); err != nil {
		return fail(err)
	}
	if err := a.file.Sync(); err != nil {
		return fail(err)
	}
	if err := a.file.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit archive %s: %w", a.final, err)
	}
	if err := os.Rename(tmp, a.final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit archive %s: %w", a.final, err)
	}
	syncDir(filepath.Dir(a.final))
	return a.final, nil
}

// Abort 는 임시 파일을 버린다.
func (a *archiveWriter) Abort() {
	_ = a.gz.Close()
	_ = a.file.Close()
	_ = os.Remove(a.file.Name())
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
