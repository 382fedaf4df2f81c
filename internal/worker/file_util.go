// internal/worker/file_util.go
package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// file_util.go
// ------------------------------------------------------------
// spill / archive 파일명 규칙.
//
// spill:
//
//	<unix>_<instance>_<counter>.ndjson.gz
//	1764721594_web1_000042.ndjson.gz
//
// 정렬하면 곧 시간 순 정렬이므로 가장 오래된 spill 파일부터 재전송할 수 있다.
//
// archive:
//
//	archive-<cutoff YYYY-MM-DD>.log.gz
//	archive-2023-01-01.log.gz
//
// 같은 cutoff 로 두 번째 sweep 이 돌면 (예: 재시작 후 delete 재시도)
// 이미 있는 파일을 덮어쓰지 않고 archive-2023-01-01.1.log.gz 처럼 번호를 붙인다.
var globalCounter uint64

// NextCounter 는 1,000,000 에서 0 으로 돌아가는 원자적 순번.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewSpillFilename 은 새 spill 파일명을 만든다.
func NewSpillFilename(instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.ndjson.gz", Unix(), instanceID, NextCounter())
}

// ArchiveDate 는 archive 파일명/S3 파티션에 쓰는 cutoff 날짜.
func ArchiveDate(cutoff time.Time) string {
	return cutoff.Format("2006-01-02")
}

// ArchivePath 는 dir 안에서 아직 존재하지 않는 archive 경로를 고른다.
func ArchivePath(dir string, cutoff time.Time) string {
	base := "archive-" + ArchiveDate(cutoff)
	path := filepath.Join(dir, base+".log.gz")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s.%d.log.gz", base, n))
	}
}

// BuildS3Key
// ------------------------------------------------------------
// archive 업로드용 S3 Key.
//
//	<prefix>/dt=<YYYY-MM-DD>/<filename>
//
// dt 는 업로드 시각이 아니라 cutoff 날짜이다 (archive 내용 기준 파티션).
func BuildS3Key(prefix, dt, filename string) string {
	return fmt.Sprintf("%s/dt=%s/%s", prefix, dt, filename)
}
