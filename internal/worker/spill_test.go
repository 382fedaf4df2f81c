package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/store/memstore"
)

func TestEncodeDecodeBatch(t *testing.T) {
	events := []*model.LogEvent{event(1, 1000), event(2, 1001)}
	events[1].AltIP = "10.9.9.9"
	events[1].Referer = `https://example.com/?q="x"`

	data, err := EncodeBatchNDJSONGZ(events)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBatchNDJSONGZ(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(events, got); diff != "" {
		t.Errorf("decoded batch mismatch (-want +got):\n%s", diff)
	}
}

func TestSpillSaveAndReplay(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()
	q, err := NewSpillQueue(dir, "test", time.Hour, 0, m)
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Save([]*model.LogEvent{event(1, 1000), event(2, 1001)}); err != nil {
		t.Fatal(err)
	}
	if err := q.Save([]*model.LogEvent{event(3, 1002)}); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}

	st := memstore.New()
	st.Fail(memstore.OpBulk, 1)
	ix := NewIndexer(st, "logger", time.Second, m)

	// 실패하면 파일은 남는다
	q.ProcessOne(context.Background(), ix)
	if q.Len() != 2 {
		t.Fatalf("Len after failed replay = %d, want 2", q.Len())
	}

	q.ProcessOne(context.Background(), ix)
	q.ProcessOne(context.Background(), ix)
	if q.Len() != 0 || st.Len() != 3 {
		t.Errorf("after replay: spill=%d store=%d; want 0, 3", q.Len(), st.Len())
	}
	if m.SpillSizeBytes != 0 {
		t.Errorf("SpillSizeBytes = %d, want 0", m.SpillSizeBytes)
	}
}

func TestSpillRemovesCorruptAndExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := fmt.Sprintf("%d_test_000001.ndjson.gz", Unix()-7200)
	corrupt := fmt.Sprintf("%d_test_000002.ndjson.gz", Unix())
	if err := os.WriteFile(filepath.Join(dir, old), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, corrupt), []byte("not gzip"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "leftover.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	q, err := NewSpillQueue(dir, "test", time.Hour, 0, m)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (tmp file removed)", q.Len())
	}

	st := memstore.New()
	ix := NewIndexer(st, "logger", time.Second, m)
	q.ProcessOne(context.Background(), ix) // expired
	q.ProcessOne(context.Background(), ix) // corrupt

	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
	if m.SpillFilesExpiredTotal != 1 {
		t.Errorf("SpillFilesExpiredTotal = %d, want 1", m.SpillFilesExpiredTotal)
	}
	if st.Calls(memstore.OpBulk) != 0 {
		t.Error("bulk called for unusable spill files")
	}
}

func TestSpillCapacityEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()

	batch := []*model.LogEvent{event(1, 1000)}
	data, err := EncodeBatchNDJSONGZ(batch)
	if err != nil {
		t.Fatal(err)
	}
	// 파일 하나만 들어갈 크기
	q, err := NewSpillQueue(dir, "test", 0, int64(len(data))+1, m)
	if err != nil {
		t.Fatal(err)
	}

	if err := q.Save(batch); err != nil {
		t.Fatal(err)
	}
	if err := q.Save(batch); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
	if m.SpillFilesExpiredTotal != 1 {
		t.Errorf("SpillFilesExpiredTotal = %d, want 1", m.SpillFilesExpiredTotal)
	}
}

func TestSpillFilenames(t *testing.T) {
	name := NewSpillFilename("web1")
	sec, ok := extractUnixFromFilename(name)
	if !ok || sec != Unix() && sec != Unix()-1 {
		t.Errorf("extractUnixFromFilename(%q) = %d, %v", name, sec, ok)
	}
	if _, ok := extractUnixFromFilename("garbage.ndjson.gz"); ok {
		t.Error("parsed timestamp from garbage name")
	}
	if got := BuildS3Key("archive", "2023-01-01", "archive-2023-01-01.log.gz"); got != "archive/dt=2023-01-01/archive-2023-01-01.log.gz" {
		t.Errorf("BuildS3Key = %q", got)
	}
}
