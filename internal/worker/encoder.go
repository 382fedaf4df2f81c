package worker

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"logship/internal/model"
	"logship/internal/pool"
)

// EncodeBatchNDJSONGZ 는 이벤트 배치를 NDJSON → gzip 으로 직렬화한다.
// spill 파일 포맷이다.
//
// 결과는 pool 버퍼를 복사한 새 slice 이며 호출자가 소유한다.
// (pool 버퍼를 그대로 반환하면 재사용 시 데이터가 오염된다)
func EncodeBatchNDJSONGZ(events []*model.LogEvent) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	gz := pool.GzipPool.Get().(*gzip.Writer)
	defer pool.GzipPool.Put(gz)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}

	// Close 시 gzip footer 까지 기록되어 스트림이 완성된다.
	if err := gz.Close(); err != nil {
		return nil, err
	}

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	return data, nil
}

// DecodeBatchNDJSONGZ 는 EncodeBatchNDJSONGZ 의 역변환.
// 한 줄이라도 깨져 있으면 error 를 반환한다.
func DecodeBatchNDJSONGZ(r io.Reader) ([]*model.LogEvent, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var events []*model.LogEvent
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev := new(model.LogEvent)
		if err := json.Unmarshal(line, ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}
