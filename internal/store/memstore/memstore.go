// Package memstore 는 테스트용 in-memory store.Store 구현이다.
// bulk NDJSON 파싱, range 검색, 실패 주입(Fail)을 지원한다.
package memstore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"logship/internal/model"
	"logship/internal/store"
)

// Op 는 실패 주입 대상 연산 이름.
type Op string

const (
	OpInfo       Op = "info"
	OpGetMapping Op = "get_mapping"
	OpCreate     Op = "create_index"
	OpCount      Op = "count"
	OpBulk       Op = "bulk"
	OpSearch     Op = "search"
	OpDelete     Op = "delete_by_query"
)

// ErrInjected 는 Fail 로 주입된 실패.
var ErrInjected = errors.New("memstore: injected failure")

type Store struct {
	mu       sync.Mutex
	docs     map[string]model.LogEvent
	mappings map[string][]string
	failures map[Op]int
	calls    map[Op]int
}

func New() *Store {
	return &Store{
		docs:     make(map[string]model.LogEvent),
		mappings: make(map[string][]string),
		failures: make(map[Op]int),
		calls:    make(map[Op]int),
	}
}

var _ store.Store = (*Store)(nil)

// Put 은 id 와 함께 문서를 직접 넣는다 (index 구분 없음).
func (s *Store) Put(id string, ev model.LogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = ev
}

// SetMapping 은 index 의 mapping 필드 목록을 지정한다. nil 이면 index 를 지운다.
func (s *Store) SetMapping(index string, fields []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields == nil {
		delete(s.mappings, index)
		return
	}
	s.mappings[index] = fields
}

// Fail 은 op 의 다음 n 번 호출을 ErrInjected 로 실패시킨다.
func (s *Store) Fail(op Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

// Calls 는 op 호출 횟수 (실패 포함).
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Len 은 저장된 문서 수.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Get 은 id 로 문서를 조회한다.
func (s *Store) Get(id string) (model.LogEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.docs[id]
	return ev, ok
}

// enter 는 호출 횟수를 세고 주입된 실패를 소비한다. lock 을 잡은 상태에서 호출한다.
func (s *Store) enter(op Op) error {
	s.calls[op]++
	if n := s.failures[op]; n > 0 {
		s.failures[op] = n - 1
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

func (s *Store) Info(context.Context) (store.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInfo); err != nil {
		return store.Info{}, err
	}
	return store.Info{ClusterName: "memstore", Version: "0"}, nil
}

func (s *Store) GetMapping(_ context.Context, index string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetMapping); err != nil {
		return nil, false, err
	}
	fields, ok := s.mappings[index]
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), fields...), true, nil
}

func (s *Store) CreateIndex(_ context.Context, index string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreate); err != nil {
		return err
	}
	if _, ok := s.mappings[index]; ok {
		return fmt.Errorf("%w: index %s already exists", store.ErrStatus, index)
	}
	var m struct {
		Mappings struct {
			Properties map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.Unmarshal(body, &m); err != nil {
		return err
	}
	fields := make([]string, 0, len(m.Mappings.Properties))
	for name := range m.Mappings.Properties {
		fields = append(fields, name)
	}
	s.mappings[index] = fields
	return nil
}

func (s *Store) Count(_ context.Context, _ string, before uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCount); err != nil {
		return 0, err
	}
	var n int64
	for _, ev := range s.docs {
		if ev.Timestamp < before {
			n++
		}
	}
	return n, nil
}

// Bulk 는 {"index":{"_id":...}} + 문서 쌍으로 이루어진 NDJSON 을 처리한다.
// 새 id 는 "created", 기존 id 는 "updated" 를 돌려준다.
func (s *Store) Bulk(_ context.Context, _ string, body []byte) ([]store.BulkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpBulk); err != nil {
		return nil, err
	}

	var items []store.BulkItem
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var action struct {
			Index struct {
				ID string `json:"_id"`
			} `json:"index"`
		}
		if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
			return nil, fmt.Errorf("bulk action line: %w", err)
		}
		if !sc.Scan() {
			return nil, errors.New("bulk: missing source line")
		}
		var ev model.LogEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("bulk source line: %w", err)
		}

		id := action.Index.ID
		result, status := store.ResultCreated, 201
		if _, ok := s.docs[id]; ok {
			result, status = "updated", 200
		}
		s.docs[id] = ev
		items = append(items, store.BulkItem{ID: id, Result: result, Status: status})
	}
	return items, sc.Err()
}

// Search 는 timestamp 오름차순, 같은 timestamp 안에서는 id 순으로 정렬한다.
func (s *Store) Search(_ context.Context, _ string, from, before uint32, size int) ([]store.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSearch); err != nil {
		return nil, err
	}

	hits := make([]store.Hit, 0, size)
	for id, ev := range s.docs {
		if ev.Timestamp >= from && ev.Timestamp < before {
			hits = append(hits, store.Hit{ID: id, Event: ev})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Event.Timestamp != hits[j].Event.Timestamp {
			return hits[i].Event.Timestamp < hits[j].Event.Timestamp
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > size {
		hits = hits[:size]
	}
	return hits, nil
}

func (s *Store) DeleteByQuery(_ context.Context, _ string, before uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete); err != nil {
		return 0, err
	}
	var n int64
	for id, ev := range s.docs {
		if ev.Timestamp < before {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}
