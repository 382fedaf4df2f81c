// internal/worker/indexer.go
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/pool"
	"logship/internal/store"
)

// DefaultBulkTimeout 는 bulk 요청 1회에 허용하는 시간.
const DefaultBulkTimeout = 25 * time.Second

// Indexer 는 배치를 중복 제거해 bulk upsert 로 store 에 보낸다.
//
// 실패 시 retry 하지 않는다 (at-most-once). 재전송 여부는 호출자(spill queue)가 결정한다.
type Indexer struct {
	store   store.Store
	index   string
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewIndexer(st store.Store, index string, timeout time.Duration, m *metrics.Metrics) *Indexer {
	if timeout <= 0 {
		timeout = DefaultBulkTimeout
	}
	return &Indexer{store: st, index: index, timeout: timeout, metrics: m}
}

// Outcome 은 flush 한 번의 결과.
//   - Sent: 중복 제거 후 실제로 보낸 문서 수
//   - Indexed: store 가 "created" 로 응답한 문서 수
//   - Duplicates: 같은 배치 안에서 id 가 겹쳐 버린 수 (첫 번째가 남는다)
type Outcome struct {
	Sent       int
	Indexed    int
	Duplicates int
	Err        error
}

// Flush 는 events 를 순서대로 id 계산 → 배치 내 중복 제거 → NDJSON bulk 바디 생성 → 전송한다.
//
//	{"index":{"_id":"<sha1>"}}
//	{"primary_ip":...}
func (ix *Indexer) Flush(ctx context.Context, events []*model.LogEvent) Outcome {
	var out Outcome
	if len(events) == 0 {
		return out
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	enc := json.NewEncoder(buf)
	seen := make(map[string]struct{}, len(events))

	for _, ev := range events {
		id := model.EventID(ev)
		if _, dup := seen[id]; dup {
			out.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		buf.WriteString(`{"index":{"_id":"`)
		buf.WriteString(id)
		buf.WriteString("\"}}\n")
		// Encode 는 줄 끝에 '\n' 을 붙인다
		if err := enc.Encode(ev); err != nil {
			out.Err = fmt.Errorf("encode event: %w", err)
			return ix.record(out, len(events))
		}
		out.Sent++
	}

	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	items, err := ix.store.Bulk(ctx, ix.index, buf.Bytes())
	if err != nil {
		out.Err = fmt.Errorf("bulk %s: %w", ix.index, err)
		return ix.record(out, len(events))
	}

	for _, it := range items {
		if it.Result == store.ResultCreated {
			out.Indexed++
		} else if it.Error != "" {
			log.Debug().Str("id", it.ID).Int("status", it.Status).Str("error", it.Error).Msg("bulk item rejected")
		}
	}
	return ix.record(out, len(events))
}

func (ix *Indexer) record(out Outcome, batchLen int) Outcome {
	atomic.AddInt64(&ix.metrics.FlushesTotal, 1)
	atomic.AddInt64(&ix.metrics.EventsDuplicateTotal, int64(out.Duplicates))

	if out.Err != nil {
		atomic.AddInt64(&ix.metrics.FlushErrorsTotal, 1)
		log.Warn().Err(out.Err).Int("events", batchLen).Msg("flush failed")
		return out
	}

	atomic.AddInt64(&ix.metrics.EventsIndexedTotal, int64(out.Indexed))
	if out.Indexed == 0 {
		atomic.AddInt64(&ix.metrics.FlushZeroIndexedTotal, 1)
		log.Warn().Int("sent", out.Sent).Int("duplicates", out.Duplicates).Msg("flush indexed no new documents")
	}
	return out
}
