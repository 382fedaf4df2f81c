// internal/schema/schema.go
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"

	"logship/internal/model"
)

// Field 는 index mapping 의 필드 하나에 대한 선언.
type Field struct {
	Type    string // ip, text, short, long, date ...
	Format  string // date 전용 (epoch_second)
	Keyword bool   // text 필드에 keyword sub-field 를 붙일지
}

// Descriptor 는 필드 이름 → 선언 타입.
type Descriptor map[string]Field

// KeywordIgnoreAbove 는 keyword sub-field 의 ignore_above 값.
const KeywordIgnoreAbove = 256

// Default 는 파이프라인이 기대하는 store index 의 모습이다.
// LogEvent json tag 와 1:1 로 대응해야 하며 SelfCheck 가 이를 검증한다.
var Default = Descriptor{
	"primary_ip":  {Type: "ip"},
	"alt_ip":      {Type: "ip"},
	"host":        {Type: "text", Keyword: true},
	"request":     {Type: "text", Keyword: true},
	"referer":     {Type: "text", Keyword: true},
	"status_code": {Type: "short"},
	"size":        {Type: "long"},
	"user_agent":  {Type: "text", Keyword: true},
	"timestamp":   {Type: "date", Format: "epoch_second"},
}

var ErrSelfCheck = errors.New("schema self-check failed")

// Names 는 정렬된 필드 이름 목록.
func (d Descriptor) Names() []string {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SelfCheck 는 Default descriptor 와 model.LogEvent 필드 집합이 같은지 검사한다.
// 프로세스 시작 시 ingestion 전에 한 번 호출하며, 실패는 설정 오류(fatal)다.
func SelfCheck() error {
	return Default.Check(model.FieldNames())
}

// Check 는 descriptor 와 fields 를 양방향으로 비교하고
// 처음 발견한 불일치 필드 이름을 담은 error 를 반환한다.
func (d Descriptor) Check(fields []string) error {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	for _, name := range d.Names() {
		if _, ok := set[name]; !ok {
			return fmt.Errorf("%w: %q does not exist in event", ErrSelfCheck, name)
		}
	}
	for _, f := range fields {
		if _, ok := d[f]; !ok {
			return fmt.Errorf("%w: %q does not exist in mapping", ErrSelfCheck, f)
		}
	}
	return nil
}

// Mapping 은 index 생성 요청 바디를 만든다.
//
//	{"mappings":{"dynamic":"false","properties":{...}}}
func (d Descriptor) Mapping() ([]byte, error) {
	props := make(map[string]any, len(d))
	for name, f := range d {
		p := map[string]any{"type": f.Type}
		if f.Format != "" {
			p["format"] = f.Format
		}
		if f.Keyword {
			p["fields"] = map[string]any{
				"keyword": map[string]any{"type": "keyword", "ignore_above": KeywordIgnoreAbove},
			}
		}
		props[name] = p
	}
	return json.Marshal(map[string]any{
		"mappings": map[string]any{
			"dynamic":    "false",
			"properties": props,
		},
	})
}

// Compatibility 는 원격 index mapping 검사 결과.
type Compatibility int

const (
	Compatible Compatibility = iota
	IncompatibleSchema
	IndexMissing
)

func (c Compatibility) String() string {
	switch c {
	case Compatible:
		return "compatible"
	case IncompatibleSchema:
		return "incompatible_schema"
	case IndexMissing:
		return "index_missing"
	default:
		return fmt.Sprintf("compatibility(%d)", int(c))
	}
}

// MappingReader 는 index 의 mapping 필드 목록을 조회한다.
// exists=false 면 index 가 없거나 mapping 이 비어 있다.
type MappingReader interface {
	GetMapping(ctx context.Context, index string) (fields []string, exists bool, err error)
}

// IndexCreator 는 mapping 과 함께 index 를 만든다.
type IndexCreator interface {
	CreateIndex(ctx context.Context, index string, body []byte) error
}

// RemoteCheck 는 store 가 보고한 mapping 을 Default 와 비교한다.
// 불일치는 verdict 로만 반환하며 자동 migration 은 하지 않는다.
func RemoteCheck(ctx context.Context, r MappingReader, index string) (Compatibility, error) {
	fields, exists, err := r.GetMapping(ctx, index)
	if err != nil {
		return 0, fmt.Errorf("get mapping %s: %w", index, err)
	}
	if !exists {
		return IndexMissing, nil
	}
	if err := Default.Check(fields); err != nil {
		return IncompatibleSchema, nil
	}
	return Compatible, nil
}

// CreateIndex 는 Default mapping 으로 index 를 생성한다.
func CreateIndex(ctx context.Context, c IndexCreator, index string) error {
	body, err := Default.Mapping()
	if err != nil {
		return err
	}
	return c.CreateIndex(ctx, index, body)
}
