// internal/store/store.go
package store

import (
	"context"
	"errors"

	"logship/internal/model"
)

// Store 는 파이프라인이 document store 에 요구하는 기능 전부이다.
//
//   - Info: health / 버전 확인
//   - GetMapping / CreateIndex: index mapping 조회, 생성
//   - Count: timestamp < before 문서 수
//   - Bulk: id 기준 upsert (NDJSON 바디는 호출자가 만든다)
//   - Search: before > timestamp >= from, timestamp 오름차순
//   - DeleteByQuery: timestamp < before 문서 삭제
//
// 실제 구현은 Elastic, 테스트에서는 memstore 를 사용한다.
type Store interface {
	Info(ctx context.Context) (Info, error)
	GetMapping(ctx context.Context, index string) (fields []string, exists bool, err error)
	CreateIndex(ctx context.Context, index string, body []byte) error
	Count(ctx context.Context, index string, before uint32) (int64, error)
	Bulk(ctx context.Context, index string, body []byte) ([]BulkItem, error)
	Search(ctx context.Context, index string, from, before uint32, size int) ([]Hit, error)
	DeleteByQuery(ctx context.Context, index string, before uint32) (int64, error)
}

// Info 는 store 의 식별 정보.
type Info struct {
	ClusterName string
	Version     string
}

// BulkItem 은 bulk 응답의 문서 단위 결과.
// Result 는 "created", "updated", "noop" 등 store 가 돌려준 marker 그대로이다.
type BulkItem struct {
	ID     string
	Result string
	Status int
	Error  string
}

// ResultCreated 는 새로 색인된 문서를 나타내는 bulk result marker.
const ResultCreated = "created"

// Hit 는 search 결과 문서 하나.
type Hit struct {
	ID    string
	Event model.LogEvent
}

// ErrStatus 는 store 가 non-2xx 로 응답한 경우.
var ErrStatus = errors.New("store returned error status")
