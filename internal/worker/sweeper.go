// internal/worker/sweeper.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"logship/internal/metrics"
	"logship/internal/store"
)

const (
	DefaultSweepPageSize = 500
	DefaultSweepBackoff  = 6 * time.Second
)

// ErrSweepGaveUp 는 설정된 retry 한도(시도 횟수/경과 시간)를 넘긴 경우.
// 한도가 0 이면 retry 는 무제한이라 이 error 는 나오지 않는다.
var ErrSweepGaveUp = errors.New("sweep retry bound exhausted")

// SweepGate 는 프로세스 전체에서 sweep 을 하나만 돌게 하는 플래그이다.
// Coordinator 와 Sweeper 사이에 공유되는 유일한 상태.
type SweepGate struct {
	active atomic.Bool
}

// TryAcquire 는 sweep 이 없을 때만 true 를 반환하고 플래그를 세운다.
func (g *SweepGate) TryAcquire() bool { return g.active.CompareAndSwap(false, true) }

func (g *SweepGate) Release() { g.active.Store(false) }

func (g *SweepGate) Active() bool { return g.active.Load() }

// SweepConfig 는 sweep 한 번의 동작 파라미터.
type SweepConfig struct {
	Index         string
	PageSize      int
	Backoff       time.Duration
	MaxAttempts   int           // 0 = 무제한
	MaxElapsed    time.Duration // 0 = 무제한
	ArchiveDir    string
	ArchivePrefix string // S3 key prefix
}

// SweepResult 는 완료된 sweep 요약.
type SweepResult struct {
	Cutoff   time.Time
	Pages    int
	Archived int
	Deleted  int64
	Path     string
}

// Sweeper 는 cutoff 이전 문서를 timestamp 순으로 페이지 단위로 읽어 archive 에 쓰고,
// archive 가 디스크에 확정된 뒤 delete-by-query 로 지운다.
//
// store handle 과 archive 상태는 Sweeper 가 단독 소유한다.
type Sweeper struct {
	cfg      SweepConfig
	store    store.Store
	uploader ArchiveUploader
	metrics  *metrics.Metrics
}

func NewSweeper(cfg SweepConfig, st store.Store, up ArchiveUploader, m *metrics.Metrics) *Sweeper {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultSweepPageSize
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultSweepBackoff
	}
	return &Sweeper{cfg: cfg, store: st, uploader: up, metrics: m}
}

// Run 은 timestamp < cutoff 인 문서를 archive 후 삭제한다.
//
// 페이지 규칙:
//   - 쿼리: cutoff > timestamp >= cursor, 오름차순, 최대 PageSize 건
//   - 직전 페이지에서 이미 쓴 id 는 건너뛴다 (cursor 가 max timestamp 에 머무르므로 경계가 겹친다)
//   - 페이지 max timestamp 가 직전 페이지 max 와 같으면 cursor+1
//     (한 초에 PageSize 건 이상 몰린 경우. 창 밖의 같은 초 문서는 archive 되지 않고 삭제된다)
//   - PageSize 미만이 오면 마지막 페이지
//
// search/delete 실패는 고정 Backoff 후 같은 요청을 다시 보낸다.
func (s *Sweeper) Run(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	res := SweepResult{Cutoff: cutoff}
	before := uint32(cutoff.Unix())

	atomic.AddInt64(&s.metrics.SweepsStartedTotal, 1)
	log.Info().Time("cutoff", cutoff).Str("index", s.cfg.Index).Msg("retention sweep started")

	aw, err := createArchive(s.cfg.ArchiveDir, cutoff)
	if err != nil {
		return s.abort(res, fmt.Errorf("create archive: %w", err))
	}

	var (
		cursor  uint32
		prevIDs map[string]struct{}
		prevMax uint32
		hasPrev bool
	)

	for {
		var hits []store.Hit
		err := s.retry(ctx, "search", func(ctx context.Context) error {
			var err error
			hits, err = s.store.Search(ctx, s.cfg.Index, cursor, before, s.cfg.PageSize)
			return err
		})
		if err != nil {
			aw.Abort()
			return s.abort(res, err)
		}
		res.Pages++
		atomic.AddInt64(&s.metrics.SweepPagesTotal, 1)

		ids := make(map[string]struct{}, len(hits))
		var pageMax uint32
		for i := range hits {
			h := &hits[i]
			ids[h.ID] = struct{}{}
			if h.Event.Timestamp > pageMax {
				pageMax = h.Event.Timestamp
			}
			if _, dup := prevIDs[h.ID]; dup {
				continue
			}
			if err := aw.Write(&h.Event); err != nil {
				aw.Abort()
				return s.abort(res, fmt.Errorf("write archive: %w", err))
			}
			res.Archived++
		}

		if len(hits) < s.cfg.PageSize {
			break
		}

		if hasPrev && pageMax == prevMax {
			cursor++
			log.Warn().Uint32("timestamp", pageMax).Int("page_size", s.cfg.PageSize).
				Msg("page filled by a single timestamp, advancing cursor past it")
		} else {
			cursor = pageMax
		}
		prevIDs, prevMax, hasPrev = ids, pageMax, true
	}

	path, err := aw.Commit()
	if err != nil {
		return s.abort(res, err)
	}
	res.Path = path
	atomic.AddInt64(&s.metrics.DocsArchivedTotal, int64(res.Archived))

	s.upload(ctx, cutoff, path)

	// archive 가 확정된 뒤에만 삭제한다.
	err = s.retry(ctx, "delete_by_query", func(ctx context.Context) error {
		n, err := s.store.DeleteByQuery(ctx, s.cfg.Index, before)
		if err == nil {
			res.Deleted = n
		}
		return err
	})
	if err != nil {
		return s.abort(res, err)
	}
	atomic.AddInt64(&s.metrics.DocsDeletedTotal, res.Deleted)
	atomic.AddInt64(&s.metrics.SweepsCompletedTotal, 1)

	log.Info().
		Time("cutoff", cutoff).
		Int("pages", res.Pages).
		Int("archived", res.Archived).
		Int64("deleted", res.Deleted).
		Str("path", res.Path).
		Msg("retention sweep completed")
	return res, nil
}

// upload 는 S3 가 설정된 경우에만 archive 를 올린다. 실패는 로그만 남긴다.
func (s *Sweeper) upload(ctx context.Context, cutoff time.Time, path string) {
	if s.uploader == nil {
		return
	}
	key := BuildS3Key(s.cfg.ArchivePrefix, ArchiveDate(cutoff), filepath.Base(path))
	if err := s.uploader.UploadArchive(ctx, path, key); err != nil {
		log.Error().Err(err).Str("path", path).Str("key", key).Msg("archive upload failed, keeping local copy")
		return
	}
	log.Info().Str("key", key).Msg("archive uploaded")
}

// retry 는 fn 이 성공할 때까지 고정 Backoff 간격으로 다시 호출한다.
func (s *Sweeper) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if (s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts) ||
			(s.cfg.MaxElapsed > 0 && time.Since(start) >= s.cfg.MaxElapsed) {
			return fmt.Errorf("%w: %s failed %d times: %v", ErrSweepGaveUp, op, attempt, err)
		}

		atomic.AddInt64(&s.metrics.SweepRetriesTotal, 1)
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", s.cfg.Backoff).Msg("sweep request failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Backoff):
		}
	}
}

func (s *Sweeper) abort(res SweepResult, err error) (SweepResult, error) {
	atomic.AddInt64(&s.metrics.SweepsAbortedTotal, 1)
	log.Error().Err(err).Time("cutoff", res.Cutoff).Int("archived", res.Archived).Msg("retention sweep aborted")
	return res, err
}
