// internal/codec/parse.go
package codec

import (
	"errors"
	"fmt"
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"logship/internal/model"
)

// ------------------------------------------------------------
// access log 문법 (고정)
//
//	<client[, alt]> <ident> <user> [<time>] "<host>" "<request>" <status> <size> "<referer>" "<user-agent>"
//
// 예:
//
//	10.0.0.1 - - [01/Jan/2023:00:00:00 +0000] "-" "GET / HTTP/1.1" 200 512 "-" "curl/7.0"
//
// request/referer 는 내부 따옴표를 포함할 수 있으므로 lazy match,
// user-agent 는 줄 끝까지 greedy match 한다.
// ------------------------------------------------------------
var lineRe = regexp.MustCompile(
	`^([^\s,]+(?:\s*,\s*[^\s,]+)*)\s+\S+\s+\S+\s+\[([^\]]+)\]\s+"([^"]*)"\s+"(.*?)"\s+(\S+)\s+(\S+)\s+"(.*?)"\s+"(.*)"\s*$`,
)

// TimeLayout 은 access log 의 bracketed timestamp 형식이다.
const TimeLayout = "02/Jan/2006:15:04:05 -0700"

// 거절 사유. errors.Is 로 분기한다.
var (
	ErrMalformed = errors.New("malformed")
	ErrBadIP     = errors.New("bad ip")
	ErrBadTime   = errors.New("bad time")
	ErrBadNumber = errors.New("bad number")
)

// Parse 는 access log 한 줄을 LogEvent 로 변환한다.
// 문법 불일치, primary IP / 시간 / 숫자 필드 오류는 모두 거절(error)이며
// alt IP 가 잘못된 경우만 조용히 버린다.
func Parse(line string) (*model.LogEvent, error) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return nil, ErrMalformed
	}

	ev := &model.LogEvent{}

	// --- 클라이언트 주소 ---
	primary, alt, hasAlt := strings.Cut(m[1], ",")
	primary = strings.TrimSpace(primary)
	if parseIP(primary) == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadIP, primary)
	}
	ev.PrimaryIP = primary
	if hasAlt {
		alt = strings.TrimSpace(alt)
		if parseIP(alt) != nil {
			ev.AltIP = alt
		}
	}

	// --- timestamp ---
	ev.Timestamp = parseTime(m[2])
	if ev.Timestamp == 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadTime, m[2])
	}

	// --- status / size ---
	status, err := strconv.ParseUint(m[5], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: status %q", ErrBadNumber, m[5])
	}
	size, err := strconv.ParseUint(m[6], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: size %q", ErrBadNumber, m[6])
	}
	ev.StatusCode = uint16(status)
	ev.Size = uint32(size)

	// --- 텍스트 필드 ("-" → 없음) ---
	ev.Host = text(m[3])
	ev.Request = text(m[4])
	ev.Referer = text(m[7])
	ev.UserAgent = text(m[8])

	return ev, nil
}

// parseIP 는 공백/빈 값을 nil 로 처리한다.
func parseIP(s string) net.IP {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}

// parseTime 은 실패 시 sentinel 0 을 반환한다.
// uint32 범위를 벗어나는 시각도 0 으로 취급한다.
func parseTime(s string) uint32 {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0
	}
	sec := t.Unix()
	if sec <= 0 || sec > math.MaxUint32 {
		return 0
	}
	return uint32(sec)
}

func text(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// Reason 은 거절 error 를 metrics/log 용 짧은 사유 문자열로 바꾼다.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrBadIP):
		return "bad_ip"
	case errors.Is(err, ErrBadTime):
		return "bad_time"
	case errors.Is(err, ErrBadNumber):
		return "bad_number"
	default:
		return "unknown"
	}
}
