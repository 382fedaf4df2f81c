// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config
//
// 실행 시 필요한 모든 설정 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
//
// 필수 env 는 없다. 값이 없으면 기본값을 쓰고,
// 형식이 잘못된 값만 fail-fast 로 종료한다.
type Config struct {

	// ---------------------------
	// 서비스 식별 / 로깅
	// ---------------------------

	ServiceName string // 모든 로그에 붙는 service 태그
	InstanceID  string // 호스트명 기반, 실패 시 랜덤 hex
	LogLevel    string // debug / info / warn / error
	LogPretty   bool   // true: console writer, false: JSON
	LogSampleN  uint32 // >1 이면 Debug/Info 를 1/N 만 기록

	// ---------------------------
	// 수집 대상
	// ---------------------------

	Sources []string // tail 후보 파일 (우선순위 순)
	Targets []string // "scheme://host[:port]/index" 후보 (우선순위 순)

	SampleSize      int     // source 검증 시 읽을 줄 수
	SampleThreshold float64 // source 검증 통과 비율
	AutoCreateIndex bool    // index 가 없으면 mapping 과 함께 생성

	TailStateFile    string        // tail offset bookmark 파일 ("" = 저장 안 함)
	TailPollInterval time.Duration // fsnotify 와 별개로 주기적 재확인

	// ---------------------------
	// Bulk 색인
	// ---------------------------

	BatchSize     int           // flush threshold
	FlushInterval time.Duration // 0 이면 threshold 에서만 flush
	BulkTimeout   time.Duration // bulk 요청 1회 timeout (retry 없음)

	// ---------------------------
	// Retention sweep
	// ---------------------------

	RetentionDays    int           // now - RetentionDays 자정 이전 문서를 archive 후 삭제
	SweepPageSize    int           // search page 크기
	SweepBackoff     time.Duration // search/delete 실패 시 고정 대기
	SweepMaxAttempts int           // 0 = 무제한 retry
	SweepMaxElapsed  time.Duration // 0 = 무제한
	ArchiveDir       string        // archive 파일 저장 디렉토리

	// ---------------------------
	// Cold storage (S3, 선택)
	// ---------------------------

	AWSRegion     string
	ArchiveBucket string // "" 이면 업로드 안 함
	ArchivePrefix string
	S3Timeout     time.Duration
	S3AppRetries  int

	// ---------------------------
	// Spill queue (선택)
	// ---------------------------

	SpillDir          string // "" 이면 실패 배치는 버린다 (at-most-once)
	SpillMaxAge       time.Duration
	SpillMaxSizeBytes int64

	// ---------------------------
	// 운영 HTTP (/metrics, /health, /sweep)
	// ---------------------------

	HTTPAddr string // "" 이면 비활성
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
func Load() Config {
	return Config{
		ServiceName: str("SERVICE_NAME", "logship"),
		InstanceID:  fallbackInstanceID(),
		LogLevel:    str("LOG_LEVEL", "info"),
		LogPretty:   boolean("LOG_PRETTY", false),
		LogSampleN:  uint32(integer("LOG_SAMPLE_N", 0)),

		Sources: list("LOG_SOURCES", "/var/log/nginx/access.log"),
		Targets: list("TARGETS", "http://127.0.0.1:9200/logger"),

		SampleSize:      integer("SAMPLE_SIZE", 10),
		SampleThreshold: float("SAMPLE_THRESHOLD", 0.75),
		AutoCreateIndex: boolean("AUTO_CREATE_INDEX", false),

		TailStateFile:    str("TAIL_STATE_FILE", ""),
		TailPollInterval: dur("TAIL_POLL_INTERVAL", time.Second),

		BatchSize:     integer("BATCH_SIZE", 500),
		FlushInterval: dur("FLUSH_INTERVAL", 0),
		BulkTimeout:   dur("BULK_TIMEOUT", 25*time.Second),

		RetentionDays:    integer("RETENTION_DAYS", 30),
		SweepPageSize:    integer("SWEEP_PAGE_SIZE", 500),
		SweepBackoff:     dur("SWEEP_BACKOFF", 6*time.Second),
		SweepMaxAttempts: integer("SWEEP_MAX_ATTEMPTS", 0),
		SweepMaxElapsed:  dur("SWEEP_MAX_ELAPSED", 0),
		ArchiveDir:       str("ARCHIVE_DIR", "archive"),

		AWSRegion:     str("AWS_REGION", ""),
		ArchiveBucket: str("ARCHIVE_BUCKET", ""),
		ArchivePrefix: str("ARCHIVE_PREFIX", "archive"),
		S3Timeout:     dur("S3_TIMEOUT", 30*time.Second),
		S3AppRetries:  integer("S3_APP_RETRIES", 3),

		SpillDir:          str("SPILL_DIR", ""),
		SpillMaxAge:       dur("SPILL_MAX_AGE", 24*time.Hour),
		SpillMaxSizeBytes: int64Val("SPILL_MAX_SIZE_BYTES", 256<<20),

		HTTPAddr: str("HTTP_ADDR", ""),
	}
}

// str / integer / int64Val / float / boolean / dur / list
//
// 공통 패턴.
// 값이 없으면 def, 형식이 잘못되면 즉시 로그 출력 후 종료(fail-fast).
func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v := str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func int64Val(key string, def int64) int64 {
	v := str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func float(key string, def float64) float64 {
	v := str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("invalid float env %s=%q: %v", key, v, err)
	}
	return f
}

func boolean(key string, def bool) bool {
	v := str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

func dur(key string, def time.Duration) time.Duration {
	v := str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

// list 는 콤마 구분 값을 순서대로 반환한다.
func list(key, def string) []string {
	var out []string
	for _, p := range strings.Split(str(key, def), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fallbackInstanceID
//
// 인스턴스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
