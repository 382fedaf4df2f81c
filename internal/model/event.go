// internal/model/event.go
package model

import (
	"reflect"
	"strings"
)

// LogEvent
// ------------------------------------------------------------
// access log 한 줄을 파싱한 결과.
// 파이프라인의 "기본 단위"로 codec → batch → bulk indexer 까지 그대로 전달되고,
// retention sweep 에서는 store 에서 다시 읽어 archive 라인으로 복원된다.
//
// optional 텍스트 필드는 빈 문자열이 곧 "없음" 이다.
// 원본 로그의 "-" 는 codec 단계에서 이미 빈 문자열로 정규화된다.
//
// Timestamp 0 은 "날짜 파싱 실패" sentinel 이므로 저장되는 이벤트에는 절대 나타나지 않는다.
type LogEvent struct {
	PrimaryIP  string `json:"primary_ip"`           // 검증된 IPv4/IPv6
	AltIP      string `json:"alt_ip,omitempty"`     // X-Forwarded-For 두 번째 주소 (잘못된 값은 버림)
	Host       string `json:"host,omitempty"`       // virtual host
	Request    string `json:"request"`              // "GET / HTTP/1.1"
	Referer    string `json:"referer,omitempty"`    // Referer header
	StatusCode uint16 `json:"status_code"`          // HTTP status
	Size       uint32 `json:"size"`                 // 응답 바이트 수
	UserAgent  string `json:"user_agent,omitempty"` // User-Agent header
	Timestamp  uint32 `json:"timestamp"`            // UTC epoch seconds
}

// FieldNames 는 LogEvent 가 store 에 직렬화될 때 사용하는 필드 이름 목록을 반환한다.
// omitempty 여부와 관계없이 json tag 기준으로 모두 포함한다.
func FieldNames() []string {
	t := reflect.TypeOf(LogEvent{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	return names
}
