package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPort 는 descriptor 에 port 가 없거나 잘못된 경우 사용한다.
const DefaultPort = 9200

var targetRe = regexp.MustCompile(`^(https?)://([^/ :]+):?([^/ ]*)(/?[^ #?]*)`)

// Target 은 "scheme://host[:port]/index" descriptor 를 파싱한 불변 값.
type Target struct {
	Protocol string
	Host     string
	Port     int
	Index    string
}

// IsURL 은 s 가 target descriptor 형태인지 확인한다.
func IsURL(s string) bool {
	return targetRe.MatchString(s)
}

// ParseTarget 은 descriptor 를 Target 으로 변환한다.
// index 이름은 path 의 첫 segment 이며 비어 있으면 error.
func ParseTarget(desc string) (Target, error) {
	m := targetRe.FindStringSubmatch(strings.TrimSpace(desc))
	if m == nil {
		return Target{}, fmt.Errorf("invalid target %q: want scheme://host[:port]/index", desc)
	}

	port, err := strconv.Atoi(m[3])
	if err != nil || port <= 0 || port > 65535 {
		port = DefaultPort
	}

	index, _, _ := strings.Cut(strings.TrimPrefix(m[4], "/"), "/")
	if index == "" {
		return Target{}, fmt.Errorf("invalid target %q: missing index", desc)
	}

	return Target{
		Protocol: m[1],
		Host:     m[2],
		Port:     port,
		Index:    index,
	}, nil
}

// Address 는 client 접속 주소 (index 제외).
func (t Target) Address() string {
	return fmt.Sprintf("%s://%s:%d", t.Protocol, t.Host, t.Port)
}

func (t Target) String() string {
	return t.Address() + "/" + t.Index
}

// Connect 는 target 주소로 새 client 를 만든다.
// sweeper 처럼 별도 연결이 필요한 곳에서 매번 다시 호출해도 된다.
func (t Target) Connect() (*Elastic, error) {
	return NewElastic(t.Address())
}
