package worker

import (
	"bufio"
	"fmt"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"

	"logship/internal/model"
	"logship/internal/store/memstore"
)

// event 은 i 로 구분되는 유효한 이벤트를 만든다.
func event(i int, ts uint32) *model.LogEvent {
	return &model.LogEvent{
		PrimaryIP:  fmt.Sprintf("10.%d.%d.%d", (i>>16)&0xff, (i>>8)&0xff, i&0xff),
		Request:    "GET / HTTP/1.1",
		StatusCode: 200,
		Size:       uint32(i),
		UserAgent:  "curl/7.0",
		Timestamp:  ts,
	}
}

// seed 는 store 에 n 개의 문서를 넣는다. tsOf(i) 가 timestamp.
func seed(st *memstore.Store, n int, tsOf func(i int) uint32) {
	for i := 0; i < n; i++ {
		ev := event(i, tsOf(i))
		st.Put(model.EventID(ev), *ev)
	}
}

// archiveLines 는 gzip archive 의 줄을 모두 읽는다.
func archiveLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return lines
}
