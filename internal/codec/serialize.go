package codec

import (
	"strconv"
	"time"

	"logship/internal/model"
)

// Serialize 는 LogEvent 를 access log 한 줄로 복원한다 (개행 없음).
// 원본 바이트를 그대로 재현하지는 않지만, Parse 로 다시 읽으면
// 같은 구조화 필드가 나온다. ident/user 는 항상 "-", 시간은 UTC(+0000) 로 쓴다.
func Serialize(ev *model.LogEvent) string {
	return string(AppendLine(make([]byte, 0, 256), ev))
}

// AppendLine 은 Serialize 결과를 dst 에 이어 붙인다.
// archive stream 처럼 줄 단위로 대량 기록할 때 할당을 줄이기 위해 사용한다.
func AppendLine(dst []byte, ev *model.LogEvent) []byte {
	dst = append(dst, ev.PrimaryIP...)
	if ev.AltIP != "" {
		dst = append(dst, ", "...)
		dst = append(dst, ev.AltIP...)
	}
	dst = append(dst, " - - ["...)
	dst = time.Unix(int64(ev.Timestamp), 0).UTC().AppendFormat(dst, TimeLayout)
	dst = append(dst, "] "...)
	dst = appendQuoted(dst, ev.Host)
	dst = append(dst, ' ')
	dst = appendQuoted(dst, ev.Request)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(ev.StatusCode), 10)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, uint64(ev.Size), 10)
	dst = append(dst, ' ')
	dst = appendQuoted(dst, ev.Referer)
	dst = append(dst, ' ')
	dst = appendQuoted(dst, ev.UserAgent)
	return dst
}

func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	if s == "" {
		dst = append(dst, '-')
	} else {
		dst = append(dst, s...)
	}
	return append(dst, '"')
}
