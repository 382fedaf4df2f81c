package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// collectLines reads from out until want lines arrive or timeout.
func collectLines(t *testing.T, out chan string, want int, timeout time.Duration) []string {
	t.Helper()
	var lines []string
	deadline := time.After(timeout)
	for len(lines) < want {
		select {
		case l := <-out:
			lines = append(lines, l)
		case <-deadline:
			return lines
		}
	}
	return lines
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func startTailer(t *testing.T, cfg Config) (chan string, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan string, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- New(cfg).Run(ctx, out) }()

	// Wait a moment for initial setup.
	time.Sleep(100 * time.Millisecond)

	stop := func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	}
	return out, stop
}

func TestTailStartsAtEOF(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "access.log")
	if err := os.WriteFile(logFile, []byte("existing line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stop := startTailer(t, Config{Path: logFile, PollInterval: 50 * time.Millisecond})
	defer stop()

	appendFile(t, logFile, "new line 1\nnew line 2\n")

	got := collectLines(t, out, 2, 2*time.Second)
	if diff := cmp.Diff([]string{"new line 1", "new line 2"}, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestTailFromStartHoldsPartialLine(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "access.log")
	if err := os.WriteFile(logFile, []byte("first\r\nsecond\npart"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stop := startTailer(t, Config{Path: logFile, PollInterval: 50 * time.Millisecond, FromStart: true})
	defer stop()

	got := collectLines(t, out, 3, 500*time.Millisecond)
	if diff := cmp.Diff([]string{"first", "second"}, got); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}

	appendFile(t, logFile, "ial\n")
	got = collectLines(t, out, 1, 2*time.Second)
	if diff := cmp.Diff([]string{"partial"}, got); diff != "" {
		t.Errorf("completed line mismatch (-want +got):\n%s", diff)
	}
}

func TestTailResumesFromBookmark(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "access.log")
	stateFile := filepath.Join(dir, "state", "tail.json")
	if err := os.WriteFile(logFile, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Path: logFile, StateFile: stateFile, PollInterval: 50 * time.Millisecond, FromStart: true}
	out, stop := startTailer(t, cfg)
	got := collectLines(t, out, 2, 2*time.Second)
	stop()
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Fatalf("first run mismatch (-want +got):\n%s", diff)
	}

	bm, err := loadBookmark(stateFile)
	if err != nil {
		t.Fatal(err)
	}
	if bm.Offset != 4 {
		t.Fatalf("bookmark offset = %d, want 4", bm.Offset)
	}

	// Written while nobody was tailing.
	appendFile(t, logFile, "c\n")

	out, stop = startTailer(t, cfg)
	defer stop()
	got = collectLines(t, out, 2, 500*time.Millisecond)
	if diff := cmp.Diff([]string{"c"}, got); diff != "" {
		t.Errorf("resumed run mismatch (-want +got):\n%s", diff)
	}
}

func TestTailTruncation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "access.log")
	if err := os.WriteFile(logFile, []byte("some old content that is long\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stop := startTailer(t, Config{Path: logFile, PollInterval: 50 * time.Millisecond})
	defer stop()

	if err := os.WriteFile(logFile, []byte("short\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := collectLines(t, out, 1, 2*time.Second)
	if diff := cmp.Diff([]string{"short"}, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestTailRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "access.log")
	if err := os.WriteFile(logFile, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	out, stop := startTailer(t, Config{Path: logFile, PollInterval: 50 * time.Millisecond})
	defer stop()

	appendFile(t, logFile, "before\n")
	if got := collectLines(t, out, 1, 2*time.Second); len(got) != 1 || got[0] != "before" {
		t.Fatalf("before rotation got %q", got)
	}

	if err := os.Rename(logFile, logFile+".1"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logFile, []byte("after\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := collectLines(t, out, 1, 2*time.Second)
	if diff := cmp.Diff([]string{"after"}, got); diff != "" {
		t.Errorf("after rotation mismatch (-want +got):\n%s", diff)
	}
}

func TestBookmarkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm.json")

	b, err := loadBookmark(path)
	if err != nil {
		t.Fatal(err)
	}
	if b != (bookmark{}) {
		t.Fatalf("missing file: got %+v, want zero", b)
	}

	want := bookmark{Path: "/var/log/nginx/access.log", Inode: 42, Offset: 1234}
	if err := saveBookmark(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := loadBookmark(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = loadBookmark(path)
	if err != nil || got != (bookmark{}) {
		t.Errorf("corrupt file: got %+v, %v; want zero, nil", got, err)
	}
}
