package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"logship/internal/schema"
	"logship/internal/store"
	"logship/internal/store/memstore"
)

const goodLine = `10.0.0.1 - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 512 "-" "curl/7.0"`

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyArgs(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "access.log")
	writeLines(t, logFile, goodLine)

	sources, targets, err := classifyArgs(
		[]string{"https://es.local/logs", logFile},
		[]string{"/var/log/nginx/access.log"},
		[]string{"http://127.0.0.1:9200/logger"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{logFile, "/var/log/nginx/access.log"}, sources); diff != "" {
		t.Errorf("sources (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://es.local/logs", "http://127.0.0.1:9200/logger"}, targets); diff != "" {
		t.Errorf("targets (-want +got):\n%s", diff)
	}

	if _, _, err := classifyArgs([]string{filepath.Join(dir, "missing.log")}, nil, nil); err == nil {
		t.Error("expected error for argument that is neither file nor URL")
	}
}

func TestSelectSource(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.log")
	garbage := filepath.Join(dir, "garbage.log")
	good := filepath.Join(dir, "good.log")

	writeLines(t, short, goodLine, goodLine)
	writeLines(t, garbage, "a", "b", "c", "d", "e")
	writeLines(t, good, goodLine, goodLine, goodLine, goodLine, goodLine)

	got, err := selectSource([]string{filepath.Join(dir, "missing.log"), short, garbage, good}, 10, 0.75)
	if err != nil {
		t.Fatal(err)
	}
	if got != good {
		t.Errorf("selected %q, want %q", got, good)
	}

	if _, err := selectSource([]string{short, garbage}, 10, 0.75); !errors.Is(err, errNoSource) {
		t.Errorf("err = %v, want errNoSource", err)
	}
}

func TestSelectTarget(t *testing.T) {
	down := memstore.New()
	down.Fail(memstore.OpInfo, 1)

	incompatible := memstore.New()
	incompatible.SetMapping("logger", []string{"message"})

	compatible := memstore.New()
	compatible.SetMapping("logger", schema.Default.Names())

	stores := map[string]*memstore.Store{"down": down, "bad": incompatible, "good": compatible}
	connect := func(tg store.Target) (store.Store, error) {
		st, ok := stores[tg.Host]
		if !ok {
			return nil, errors.New("unknown host")
		}
		return st, nil
	}

	descs := []string{
		"not a url",
		"http://nowhere:9200/logger",
		"http://down:9200/logger",
		"http://bad:9200/logger",
		"http://good:9200/logger",
	}
	tgt, st, err := selectTarget(context.Background(), descs, false, connect)
	if err != nil {
		t.Fatal(err)
	}
	if tgt.Host != "good" || st != store.Store(compatible) {
		t.Errorf("selected %s, want good", tgt)
	}
}

func TestSelectTargetCreatesMissingIndex(t *testing.T) {
	empty := memstore.New()
	connect := func(store.Target) (store.Store, error) { return empty, nil }
	descs := []string{"http://es:9200/logger"}

	if _, _, err := selectTarget(context.Background(), descs, false, connect); !errors.Is(err, errNoTarget) {
		t.Fatalf("without auto create: err = %v, want errNoTarget", err)
	}
	if empty.Calls(memstore.OpCreate) != 0 {
		t.Fatal("index created without auto create")
	}

	if _, _, err := selectTarget(context.Background(), descs, true, connect); err != nil {
		t.Fatalf("with auto create: %v", err)
	}
	if v, err := schema.RemoteCheck(context.Background(), empty, "logger"); err != nil || v != schema.Compatible {
		t.Errorf("after create: %v, %v; want compatible", v, err)
	}
}
