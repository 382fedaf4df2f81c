package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 파이프라인 상태를 나타내는 카운터 모음이다.
// 모든 필드는 sync/atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// 수집 (tail → codec)
	// ======================

	// LinesReadTotal
	// - tail 에서 받은 전체 줄 수 (빈 줄 제외).
	LinesReadTotal int64

	// LinesRejected*
	// - codec 이 거절한 줄 수, 사유별.
	// - LinesRejectedMalformedTotal 이 급증하면 source 의 로그 포맷이 바뀌었을 가능성이 크다.
	LinesRejectedMalformedTotal int64
	LinesRejectedBadIPTotal     int64
	LinesRejectedBadTimeTotal   int64
	LinesRejectedBadNumberTotal int64

	// ======================
	// Bulk 색인
	// ======================

	// FlushesTotal
	// - flush 시도 횟수 (성공/실패 무관).
	FlushesTotal int64

	// FlushErrorsTotal
	// - transport/timeout/non-2xx 로 실패한 flush 횟수.
	// - 실패한 배치는 spill 이 꺼져 있으면 그대로 유실된다.
	FlushErrorsTotal int64

	// FlushZeroIndexedTotal
	// - 비어 있지 않은 배치를 보냈는데 새로 색인된 문서가 0건인 flush.
	// - 같은 로그를 다시 보내고 있거나(id 덮어쓰기) store 쪽 문서 단위 오류.
	FlushZeroIndexedTotal int64

	// EventsIndexedTotal / EventsDuplicateTotal / EventsLostTotal
	// - created marker 로 확인된 문서 수 / 배치 내 id 중복으로 버린 수 / flush 실패로 잃은 수.
	EventsIndexedTotal   int64
	EventsDuplicateTotal int64
	EventsLostTotal      int64

	// ======================
	// Spill queue
	// ======================

	SpillEventsEnqueuedTotal int64
	SpillEventsReplayedTotal int64
	SpillEventsDroppedTotal  int64
	SpillFilesExpiredTotal   int64
	SpillFilesCurrent        int64
	SpillSizeBytes           int64

	// ======================
	// Retention sweep
	// ======================

	SweepsStartedTotal   int64
	SweepsCompletedTotal int64
	SweepsAbortedTotal   int64

	// SweepPagesTotal / SweepRetriesTotal
	// - search page 수 / search·delete 실패 후 backoff retry 횟수.
	// - SweepRetriesTotal 만 계속 증가하면 sweep 이 진행하지 못하고 멈춰 있다는 뜻.
	SweepPagesTotal   int64
	SweepRetriesTotal int64

	DocsArchivedTotal int64
	DocsDeletedTotal  int64

	// ArchiveUploadErrorsTotal
	// - archive 파일 S3 업로드 실패 횟수. 로컬 파일은 남아 있다.
	ArchiveUploadErrorsTotal int64

	// SweepActive
	// - 현재 sweep 진행 여부 (0/1 gauge).
	SweepActive int64
}

func New() *Metrics {
	return &Metrics{}
}

// Reject 는 codec 거절 사유에 맞는 카운터를 증가시킨다.
func (m *Metrics) Reject(reason string) {
	switch reason {
	case "bad_ip":
		atomic.AddInt64(&m.LinesRejectedBadIPTotal, 1)
	case "bad_time":
		atomic.AddInt64(&m.LinesRejectedBadTimeTotal, 1)
	case "bad_number":
		atomic.AddInt64(&m.LinesRejectedBadNumberTotal, 1)
	default:
		atomic.AddInt64(&m.LinesRejectedMalformedTotal, 1)
	}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(1024)

	fmt.Fprintf(&sb, "lines_read_total=%d\n", atomic.LoadInt64(&m.LinesReadTotal))
	fmt.Fprintf(&sb, "lines_rejected_malformed_total=%d\n", atomic.LoadInt64(&m.LinesRejectedMalformedTotal))
	fmt.Fprintf(&sb, "lines_rejected_bad_ip_total=%d\n", atomic.LoadInt64(&m.LinesRejectedBadIPTotal))
	fmt.Fprintf(&sb, "lines_rejected_bad_time_total=%d\n", atomic.LoadInt64(&m.LinesRejectedBadTimeTotal))
	fmt.Fprintf(&sb, "lines_rejected_bad_number_total=%d\n", atomic.LoadInt64(&m.LinesRejectedBadNumberTotal))

	fmt.Fprintf(&sb, "flushes_total=%d\n", atomic.LoadInt64(&m.FlushesTotal))
	fmt.Fprintf(&sb, "flush_errors_total=%d\n", atomic.LoadInt64(&m.FlushErrorsTotal))
	fmt.Fprintf(&sb, "flush_zero_indexed_total=%d\n", atomic.LoadInt64(&m.FlushZeroIndexedTotal))
	fmt.Fprintf(&sb, "events_indexed_total=%d\n", atomic.LoadInt64(&m.EventsIndexedTotal))
	fmt.Fprintf(&sb, "events_duplicate_total=%d\n", atomic.LoadInt64(&m.EventsDuplicateTotal))
	fmt.Fprintf(&sb, "events_lost_total=%d\n", atomic.LoadInt64(&m.EventsLostTotal))

	fmt.Fprintf(&sb, "spill_events_enqueued_total=%d\n", atomic.LoadInt64(&m.SpillEventsEnqueuedTotal))
	fmt.Fprintf(&sb, "spill_events_replayed_total=%d\n", atomic.LoadInt64(&m.SpillEventsReplayedTotal))
	fmt.Fprintf(&sb, "spill_events_dropped_total=%d\n", atomic.LoadInt64(&m.SpillEventsDroppedTotal))
	fmt.Fprintf(&sb, "spill_files_expired_total=%d\n", atomic.LoadInt64(&m.SpillFilesExpiredTotal))
	fmt.Fprintf(&sb, "spill_files_current=%d\n", atomic.LoadInt64(&m.SpillFilesCurrent))
	fmt.Fprintf(&sb, "spill_size_bytes=%d\n", atomic.LoadInt64(&m.SpillSizeBytes))

	fmt.Fprintf(&sb, "sweeps_started_total=%d\n", atomic.LoadInt64(&m.SweepsStartedTotal))
	fmt.Fprintf(&sb, "sweeps_completed_total=%d\n", atomic.LoadInt64(&m.SweepsCompletedTotal))
	fmt.Fprintf(&sb, "sweeps_aborted_total=%d\n", atomic.LoadInt64(&m.SweepsAbortedTotal))
	fmt.Fprintf(&sb, "sweep_pages_total=%d\n", atomic.LoadInt64(&m.SweepPagesTotal))
	fmt.Fprintf(&sb, "sweep_retries_total=%d\n", atomic.LoadInt64(&m.SweepRetriesTotal))
	fmt.Fprintf(&sb, "docs_archived_total=%d\n", atomic.LoadInt64(&m.DocsArchivedTotal))
	fmt.Fprintf(&sb, "docs_deleted_total=%d\n", atomic.LoadInt64(&m.DocsDeletedTotal))
	fmt.Fprintf(&sb, "archive_upload_errors_total=%d\n", atomic.LoadInt64(&m.ArchiveUploadErrorsTotal))
	fmt.Fprintf(&sb, "sweep_active=%d\n", atomic.LoadInt64(&m.SweepActive))

	return sb.String()
}
