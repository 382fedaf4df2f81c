// internal/worker/coordinator.go
package worker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"logship/internal/codec"
	"logship/internal/config"
	"logship/internal/metrics"
	"logship/internal/model"
	"logship/internal/store"
)

// SweeperFactory 는 sweep 마다 자기 store 연결을 가진 Sweeper 를 새로 만든다.
type SweeperFactory func() (*Sweeper, error)

// Coordinator 는 tail → parse → batch → flush 루프를 소유하고,
// flush 시점마다 retention sweep 을 띄울지 판단한다.
//
// 흐름:
//   - lines: tail 이 push 하는 원본 줄
//   - batch: BatchSize 에 도달하면 (1) sweep 조건 확인 (2) 동기 flush (3) 새 slice 로 교체
//   - sweep: 별도 goroutine 에서 실행, SweepGate 로 하나만 허용
//
// flush 는 루프 안에서 동기로 실행된다. store 가 느리면 다음 줄을 읽지 않고 기다린다 (backpressure).
type Coordinator struct {
	cfg     config.Config
	metrics *metrics.Metrics
	store   store.Store
	index   string
	indexer *Indexer
	spill   *SpillQueue
	sweeps  SweeperFactory
	gate    *SweepGate

	now        func() time.Time
	lastCutoff time.Time // 이미 판단을 마친 cutoff (하루에 한 번)

	batch []*model.LogEvent

	wg sync.WaitGroup // 진행 중인 sweep
}

// NewCoordinator 는 st 를 count/bulk 용으로 사용하고, sweep 은 sweeps 로 만든 별도 Sweeper 에 맡긴다.
// sweeps 가 nil 이면 retention sweep 을 하지 않는다.
func NewCoordinator(cfg config.Config, m *metrics.Metrics, st store.Store, index string, sweeps SweeperFactory) *Coordinator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Coordinator{
		cfg:     cfg,
		metrics: m,
		store:   st,
		index:   index,
		indexer: NewIndexer(st, index, cfg.BulkTimeout, m),
		sweeps:  sweeps,
		gate:    &SweepGate{},
		now:     time.Now,
		batch:   make([]*model.LogEvent, 0, cfg.BatchSize),
	}
}

// WithSpill 은 실패 배치를 q 에 저장하도록 한다.
func (c *Coordinator) WithSpill(q *SpillQueue) *Coordinator {
	c.spill = q
	return c
}

// Gate 는 sweep 진행 상태 플래그 (/sweep 엔드포인트에서 읽음).
func (c *Coordinator) Gate() *SweepGate { return c.gate }

// Wait 는 진행 중인 sweep 이 끝날 때까지 기다린다.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Run 은 lines 가 닫히거나 ctx 가 끝날 때까지 루프를 돈다.
// 종료 시 남아 있는 batch 도 flush 한다.
func (c *Coordinator) Run(ctx context.Context, lines <-chan string) error {
	var tick <-chan time.Time
	if c.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.finalFlush(ctx)
			return nil

		case line, ok := <-lines:
			if !ok {
				c.finalFlush(ctx)
				return nil
			}
			c.handleLine(ctx, line)

		case <-tick:
			if len(c.batch) > 0 {
				c.flush(ctx)
			}
		}
	}
}

func (c *Coordinator) handleLine(ctx context.Context, line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	atomic.AddInt64(&c.metrics.LinesReadTotal, 1)

	ev, err := codec.Parse(line)
	if err != nil {
		reason := codec.Reason(err)
		c.metrics.Reject(reason)
		log.Debug().Err(err).Str("reason", reason).Str("line", line).Msg("line rejected")
		return
	}

	c.batch = append(c.batch, ev)
	if len(c.batch) >= c.cfg.BatchSize {
		c.maybeSweep(ctx)
		c.flush(ctx)
	}
}

// flush 는 현재 batch 를 보내고 결과와 관계없이 새 slice 로 교체한다.
func (c *Coordinator) flush(ctx context.Context) {
	batch := c.batch
	c.batch = make([]*model.LogEvent, 0, c.cfg.BatchSize)

	out := c.indexer.Flush(ctx, batch)
	switch {
	case out.Err != nil && c.spill != nil:
		if err := c.spill.Save(batch); err != nil {
			atomic.AddInt64(&c.metrics.EventsLostTotal, int64(len(batch)))
			log.Error().Err(err).Int("events", len(batch)).Msg("spill save failed, batch lost")
		}
	case out.Err != nil:
		atomic.AddInt64(&c.metrics.EventsLostTotal, int64(len(batch)))
	case c.spill != nil:
		// store 가 살아 있을 때 spill backlog 를 하나씩 비운다
		c.spill.ProcessOne(ctx, c.indexer)
	}
}

// finalFlush 는 ctx 가 취소된 뒤에도 마지막 배치를 보낼 수 있도록 cancel 을 떼어낸다.
func (c *Coordinator) finalFlush(ctx context.Context) {
	if len(c.batch) == 0 {
		return
	}
	c.flush(context.WithoutCancel(ctx))
}

// CutoffFor 는 now 기준 retentionDays 일 전 자정(now 의 location) 을 반환한다.
func CutoffFor(now time.Time, retentionDays int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-retentionDays, 0, 0, 0, 0, now.Location())
}

// maybeSweep 은 cutoff 날짜가 바뀌었을 때 한 번 store 에 count 를 묻고,
// cutoff 이전 문서가 있으면 sweep 을 띄운다.
//
// 이미 sweep 이 돌고 있으면 확인 자체를 건너뛴다 (큐에 쌓지 않음).
// count 실패 시 이번 날짜를 "확인 완료" 로 표시하지 않으므로 다음 flush 에서 다시 묻는다.
func (c *Coordinator) maybeSweep(ctx context.Context) {
	if c.sweeps == nil || c.cfg.RetentionDays <= 0 {
		return
	}

	cutoff := CutoffFor(c.now(), c.cfg.RetentionDays)
	if !cutoff.After(c.lastCutoff) {
		return
	}
	if c.gate.Active() {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, c.indexer.timeout)
	n, err := c.store.Count(cctx, c.index, uint32(cutoff.Unix()))
	cancel()
	if err != nil {
		log.Warn().Err(err).Time("cutoff", cutoff).Msg("pre-sweep count failed")
		return
	}
	c.lastCutoff = cutoff
	if n == 0 {
		log.Debug().Time("cutoff", cutoff).Msg("nothing to sweep")
		return
	}

	if !c.gate.TryAcquire() {
		return
	}
	sw, err := c.sweeps()
	if err != nil {
		c.gate.Release()
		c.lastCutoff = time.Time{}
		log.Error().Err(err).Msg("create sweeper failed")
		return
	}

	atomic.StoreInt64(&c.metrics.SweepActive, 1)
	log.Info().Time("cutoff", cutoff).Int64("documents", n).Msg("launching retention sweep")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			atomic.StoreInt64(&c.metrics.SweepActive, 0)
			c.gate.Release()
		}()
		// 결과 로그는 Sweeper 가 남긴다
		_, _ = sw.Run(ctx, cutoff)
	}()
}
