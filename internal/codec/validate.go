package codec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VerdictKind 는 source 파일 검사 결과 종류.
type VerdictKind int

const (
	VerdictOK VerdictKind = iota
	VerdictEmpty
	VerdictTooShort
	VerdictLowConfidence
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictOK:
		return "ok"
	case VerdictEmpty:
		return "empty"
	case VerdictTooShort:
		return "too_short"
	case VerdictLowConfidence:
		return "low_confidence"
	default:
		return fmt.Sprintf("verdict(%d)", int(k))
	}
}

// MinSourceLines 미만의 샘플은 판단 근거가 부족하다고 본다.
const MinSourceLines = 4

const (
	DefaultSampleSize = 10
	DefaultThreshold  = 0.75
)

// Verdict 는 ValidateSource 결과.
// Ratio 는 Parsed / Lines 이며 Lines == 0 이면 0 이다.
type Verdict struct {
	Kind   VerdictKind
	Lines  int
	Parsed int
	Ratio  float64
}

// OK 는 tail 대상으로 써도 되는지 여부.
func (v Verdict) OK() bool { return v.Kind == VerdictOK }

// ValidateSource 는 파일 앞부분 sampleSize 줄을 파싱해 보고
// 이 파일이 이 문법의 access log 인지 추정한다.
//
//   - 빈 파일 → empty
//   - 4줄 미만 → too_short
//   - 성공 비율 < threshold → low_confidence (0.0 포함)
//   - 그 외 → ok
//
// 빈 줄은 시도 횟수에 포함하지 않는다.
func ValidateSource(path string, sampleSize int, threshold float64) (Verdict, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Verdict{}, err
	}
	defer f.Close()

	var v Verdict
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for v.Lines < sampleSize && scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		v.Lines++
		if _, err := Parse(line); err == nil {
			v.Parsed++
		}
	}
	if err := scanner.Err(); err != nil {
		return Verdict{}, err
	}

	if v.Lines > 0 {
		v.Ratio = float64(v.Parsed) / float64(v.Lines)
	}

	switch {
	case v.Lines == 0:
		v.Kind = VerdictEmpty
	case v.Lines < MinSourceLines:
		v.Kind = VerdictTooShort
	case v.Ratio < threshold:
		v.Kind = VerdictLowConfidence
	default:
		v.Kind = VerdictOK
	}
	return v, nil
}
