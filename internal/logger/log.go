// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"logship/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 프로세스 시작 시 한 번만 호출되는 로거 초기화 함수.
//
//  1. 로그 포맷 전환:
//     - LOG_PRETTY=true: 터미널용 console 출력
//     - LOG_PRETTY=false: JSON (수집기에서 검색/분석)
//
//  2. 공통 필드: 모든 로그에 "service", "instance" 가 붙는다.
//
//  3. 샘플링: LOG_SAMPLE_N > 1 이면 Debug/Info 를 1/N 만 기록한다.
//     line reject 로그는 Debug 라서 트래픽이 많을 때 여기서 걸러진다.
//     Warn/Error 는 항상 100% 기록한다.
func Init(cfg config.Config) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	} else {
		w = os.Stdout
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	logger := base
	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	zlog.Logger = logger

	// 표준 log 패키지 출력도 zerolog 로 돌린다.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
