package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"logship/internal/codec"
	"logship/internal/schema"
	"logship/internal/store"
)

var (
	errNoSource = errors.New("no usable log source")
	errNoTarget = errors.New("no usable target")
)

// probeTimeout 는 target 후보 하나를 확인하는 데 허용하는 시간 (info + mapping + create).
const probeTimeout = 10 * time.Second

// classifyArgs 는 위치 인자를 source / target 후보로 나눠 기존 목록 앞에 붙인다.
//   - 존재하는 경로 → source
//   - http(s):// URL → target
//
// 둘 다 아니면 error.
func classifyArgs(args, sources, targets []string) ([]string, []string, error) {
	var srcs, tgts []string
	for _, a := range args {
		switch {
		case store.IsURL(a):
			tgts = append(tgts, a)
		case fileExists(a):
			srcs = append(srcs, a)
		default:
			return nil, nil, fmt.Errorf("argument %q is neither an existing file nor a target URL", a)
		}
	}
	return append(srcs, sources...), append(tgts, targets...), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// selectSource 는 검증을 통과한 첫 번째 source 를 반환한다.
func selectSource(paths []string, sampleSize int, threshold float64) (string, error) {
	for _, p := range paths {
		v, err := codec.ValidateSource(p, sampleSize, threshold)
		if err != nil {
			log.Warn().Err(err).Str("source", p).Msg("source unreadable")
			continue
		}
		if !v.OK() {
			log.Warn().
				Str("source", p).
				Str("verdict", v.Kind.String()).
				Int("lines", v.Lines).
				Float64("ratio", v.Ratio).
				Msg("source rejected")
			continue
		}
		log.Info().Str("source", p).Int("lines", v.Lines).Float64("ratio", v.Ratio).Msg("source selected")
		return p, nil
	}
	return "", errNoSource
}

// connectFunc 는 Target 으로 store 연결을 만든다 (테스트에서 교체).
type connectFunc func(store.Target) (store.Store, error)

func connectElastic(t store.Target) (store.Store, error) {
	return t.Connect()
}

// selectTarget 은 다음을 모두 만족하는 첫 번째 target 을 반환한다.
//   - descriptor 파싱 성공
//   - Info 응답
//   - mapping 호환 (index 가 없으면 autoCreate 일 때 생성)
func selectTarget(ctx context.Context, descs []string, autoCreate bool, connect connectFunc) (store.Target, store.Store, error) {
	for _, d := range descs {
		t, err := store.ParseTarget(d)
		if err != nil {
			log.Warn().Err(err).Str("target", d).Msg("invalid target descriptor")
			continue
		}
		st, err := connect(t)
		if err != nil {
			log.Warn().Err(err).Str("target", t.String()).Msg("target connect failed")
			continue
		}
		if err := probeTarget(ctx, t, st, autoCreate); err != nil {
			log.Warn().Err(err).Str("target", t.String()).Msg("target rejected")
			continue
		}
		return t, st, nil
	}
	return store.Target{}, nil, errNoTarget
}

func probeTarget(ctx context.Context, t store.Target, st store.Store, autoCreate bool) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := st.Info(ctx)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	verdict, err := schema.RemoteCheck(ctx, st, t.Index)
	if err != nil {
		return err
	}
	switch verdict {
	case schema.Compatible:
	case schema.IndexMissing:
		if !autoCreate {
			return fmt.Errorf("index %s does not exist (set AUTO_CREATE_INDEX=true to create it)", t.Index)
		}
		if err := schema.CreateIndex(ctx, st, t.Index); err != nil {
			return fmt.Errorf("create index %s: %w", t.Index, err)
		}
		log.Info().Str("index", t.Index).Msg("index created")
	default:
		return fmt.Errorf("index %s: %s", t.Index, verdict)
	}

	log.Info().
		Str("target", t.String()).
		Str("cluster", info.ClusterName).
		Str("version", info.Version).
		Msg("target selected")
	return nil
}
