// internal/worker/spill.go
package worker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"logship/internal/metrics"
	"logship/internal/model"
)

// SpillQueue 는 bulk flush 가 transport 오류로 실패한 배치를 로컬 디스크에 저장하고,
// 이후 flush 가 성공할 때마다 가장 오래된 파일 하나를 다시 보낸다.
//
// 문서 id 가 결정적이므로 재전송은 idempotent 하다.
// TTL 판단은 "파일명 prefix 의 Unix timestamp" 기준으로 한다.
type SpillQueue struct {
	dir        string
	instanceID string
	maxAge     time.Duration
	maxSize    int64
	metrics    *metrics.Metrics

	// 현재 spill 디렉토리 data 파일 총 바이트 수
	sizeBytes int64
}

// NewSpillQueue 는 디렉토리를 만들고 기존 파일을 스캔해 크기/개수를 복원한다.
// 이전 실행에서 남은 임시 파일(.tmp)은 지운다.
func NewSpillQueue(dir, instanceID string, maxAge time.Duration, maxSize int64, m *metrics.Metrics) (*SpillQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	q := &SpillQueue{
		dir:        dir,
		instanceID: instanceID,
		maxAge:     maxAge,
		maxSize:    maxSize,
		metrics:    m,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var total, count int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".tmp") {
			_ = os.Remove(filepath.Join(dir, name))
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
			count++
		}
	}

	atomic.StoreInt64(&q.sizeBytes, total)
	atomic.AddInt64(&m.SpillSizeBytes, total)
	atomic.AddInt64(&m.SpillFilesCurrent, count)
	return q, nil
}

// Save 는 실패한 배치를 gzip NDJSON 파일로 저장한다.
// 용량 한도를 넘으면 가장 오래된 파일부터 지우고, 그래도 부족하면 배치를 버린다.
func (q *SpillQueue) Save(events []*model.LogEvent) error {
	if len(events) == 0 {
		return nil
	}

	data, err := EncodeBatchNDJSONGZ(events)
	if err != nil {
		return err
	}

	size := int64(len(data))
	if !q.ensureCapacity(size) {
		log.Error().Int64("bytes", size).Int("events", len(events)).Msg("spill full, dropping batch")
		atomic.AddInt64(&q.metrics.SpillEventsDroppedTotal, int64(len(events)))
		return nil
	}

	// tmp 에 쓰고 rename 해야 pickOldest 가 절반만 쓰인 파일을 집지 않는다.
	path := filepath.Join(q.dir, NewSpillFilename(q.instanceID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	atomic.AddInt64(&q.sizeBytes, size)
	atomic.AddInt64(&q.metrics.SpillSizeBytes, size)
	atomic.AddInt64(&q.metrics.SpillFilesCurrent, 1)
	atomic.AddInt64(&q.metrics.SpillEventsEnqueuedTotal, int64(len(events)))
	return nil
}

// ensureCapacity 는 maxSize 를 넘지 않도록 오래된 파일을 지운다.
// 지울 파일이 더 없으면 false.
func (q *SpillQueue) ensureCapacity(incoming int64) bool {
	if q.maxSize <= 0 {
		return true
	}
	for {
		if atomic.LoadInt64(&q.sizeBytes)+incoming <= q.maxSize {
			return true
		}
		oldest := q.pickOldest()
		if oldest == "" {
			return false
		}
		q.remove(oldest)
		atomic.AddInt64(&q.metrics.SpillFilesExpiredTotal, 1)
		log.Warn().Str("file", oldest).Msg("spill capacity, removed oldest file")
	}
}

// ProcessOne 은 가장 오래된 spill 파일 하나를 ix 로 재전송한다.
//   - TTL 초과: 삭제
//   - 디코딩 실패: 삭제 (재시도해도 복구 불가)
//   - flush 실패: 파일 유지, 다음 기회에 재시도
func (q *SpillQueue) ProcessOne(ctx context.Context, ix *Indexer) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	name := q.pickOldest()
	if name == "" {
		return
	}

	if q.maxAge > 0 {
		if sec, ok := extractUnixFromFilename(name); ok {
			age := time.Duration(Unix()-sec) * time.Second
			if age > q.maxAge {
				q.remove(name)
				atomic.AddInt64(&q.metrics.SpillFilesExpiredTotal, 1)
				log.Info().Str("file", name).Dur("age", age).Msg("spill TTL expired, deleted")
				return
			}
		}
	}

	f, err := os.Open(filepath.Join(q.dir, name))
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("spill open failed")
		q.remove(name)
		return
	}
	events, err := DecodeBatchNDJSONGZ(f)
	_ = f.Close()
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("spill file corrupt, deleted")
		q.remove(name)
		return
	}

	out := ix.Flush(ctx, events)
	if out.Err != nil {
		return
	}

	q.remove(name)
	atomic.AddInt64(&q.metrics.SpillEventsReplayedTotal, int64(len(events)))
	log.Info().Str("file", name).Int("events", len(events)).Int("indexed", out.Indexed).Msg("spill replayed")
}

// Len 은 대기 중인 spill 파일 수.
func (q *SpillQueue) Len() int {
	return int(atomic.LoadInt64(&q.metrics.SpillFilesCurrent))
}

func (q *SpillQueue) remove(name string) {
	path := filepath.Join(q.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		return
	}
	atomic.AddInt64(&q.sizeBytes, -info.Size())
	atomic.AddInt64(&q.metrics.SpillSizeBytes, -info.Size())
	atomic.AddInt64(&q.metrics.SpillFilesCurrent, -1)
}

// pickOldest 는 파일명(= timestamp) 기준 가장 오래된 data 파일을 반환한다.
// ReadDir 결과 순서는 보장되지 않으므로 정렬한다.
func (q *SpillQueue) pickOldest() string {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return ""
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "" || name[0] == '.' || strings.HasSuffix(name, ".tmp") {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return ""
	}

	sort.Strings(files)
	return files[0]
}

// extractUnixFromFilename 은 "<unix>_<instance>_<counter>.ndjson.gz" 에서 unix 를 읽는다.
func extractUnixFromFilename(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return sec, true
}
