package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// flush 마다 bulk NDJSON 바디(배치 500건 기준 수백 KB)를 만들고,
// spill 이 켜져 있으면 실패 배치를 gzip 으로 압축한다.
// 매 flush 마다 새로 할당하지 않도록 버퍼와 gzip.Writer 를 재사용한다.
// ---------------------------------------------------------------

var (
	// BufferPool:
	//   - bulk 바디 / spill gzip 결과를 담는 임시 버퍼
	//   - 초기 용량 256KB
	//   - MaxBufferCap 초과 버퍼는 풀에 넣지 않음
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	// GzipPool:
	//   - spill 파일용 gzip.Writer (BestSpeed)
	//   - archive 는 BestCompression 이 필요하고 sweep 당 하나뿐이라 여기서 꺼내지 않는다
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap 보다 큰 버퍼는 GC 에 맡긴다.
const MaxBufferCap = 4 * 1024 * 1024 // 4MB

// GetBuffer 는 비어 있는 버퍼를 꺼낸다.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer:
//   - MaxBufferCap 이하이면 풀에 재사용
//   - 초대형 배치 버퍼는 풀로 돌리지 않음
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
