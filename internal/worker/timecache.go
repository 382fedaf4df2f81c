// internal/worker/timecache.go
package worker

import (
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// 매초 현재 epoch seconds 를 캐싱하는 모듈.
//
// spill 파일명 prefix 와 spill TTL 판단에만 쓰이므로 초 단위 정밀도면 충분하다.
// retention cutoff 계산은 Coordinator.now (기본 time.Now) 를 사용한다.
// ------------------------------------------------------------

var unixSec atomic.Int64

func init() {
	unixSec.Store(time.Now().Unix())

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			unixSec.Store(time.Now().Unix())
		}
	}()
}

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}
