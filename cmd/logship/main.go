package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"logship/internal/config"
	"logship/internal/logger"
	"logship/internal/metrics"
	"logship/internal/schema"
	"logship/internal/server"
	"logship/internal/tail"
	"logship/internal/worker"
)

var version = "dev"

func main() {
	// GOMAXPROCS 환경변수가 있으면 그대로 따른다 (컨테이너 vCPU 제한 대응).
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	}

	rootCmd := &cobra.Command{
		Use:          "logship [source-file | target-url]...",
		Short:        "Ship an access log into a document store and archive old events",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg)

			sources, targets, err := classifyArgs(args, cfg.Sources, cfg.Targets)
			if err != nil {
				return err
			}
			cfg.Sources, cfg.Targets = sources, targets

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, cfg); err != nil {
				log.Error().Err(err).Msg("logship terminated")
				return err
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	// ====================================================================
	// 시작 검사
	// ====================================================================
	//
	// 1) LogEvent 와 mapping descriptor 가 어긋나면 바이너리 자체가 잘못된 것 → 종료
	// 2) source: 검증을 통과한 첫 번째 파일
	// 3) target: 응답하고 mapping 이 호환되는 첫 번째 store
	// ====================================================================
	if err := schema.SelfCheck(); err != nil {
		return err
	}

	source, err := selectSource(cfg.Sources, cfg.SampleSize, cfg.SampleThreshold)
	if err != nil {
		return err
	}
	target, st, err := selectTarget(ctx, cfg.Targets, cfg.AutoCreateIndex, connectElastic)
	if err != nil {
		return err
	}

	m := metrics.New()

	// ====================================================================
	// Retention sweep 구성
	// ====================================================================
	//
	// Sweeper 는 sweep 마다 자기 store 연결을 새로 만든다.
	// ARCHIVE_BUCKET 이 있으면 완성된 archive 를 S3 에도 올린다.
	// ====================================================================
	var uploader worker.ArchiveUploader
	if cfg.ArchiveBucket != "" {
		up, err := worker.NewS3Uploader(ctx, cfg, m)
		if err != nil {
			return err
		}
		uploader = up
	}

	sweepCfg := worker.SweepConfig{
		Index:         target.Index,
		PageSize:      cfg.SweepPageSize,
		Backoff:       cfg.SweepBackoff,
		MaxAttempts:   cfg.SweepMaxAttempts,
		MaxElapsed:    cfg.SweepMaxElapsed,
		ArchiveDir:    cfg.ArchiveDir,
		ArchivePrefix: cfg.ArchivePrefix,
	}
	sweeps := func() (*worker.Sweeper, error) {
		es, err := target.Connect()
		if err != nil {
			return nil, err
		}
		return worker.NewSweeper(sweepCfg, es, uploader, m), nil
	}

	coord := worker.NewCoordinator(cfg, m, st, target.Index, sweeps)
	if cfg.SpillDir != "" {
		q, err := worker.NewSpillQueue(cfg.SpillDir, cfg.InstanceID, cfg.SpillMaxAge, cfg.SpillMaxSizeBytes, m)
		if err != nil {
			return fmt.Errorf("spill queue: %w", err)
		}
		coord.WithSpill(q)
	}

	tailer := tail.New(tail.Config{
		Path:         source,
		StateFile:    cfg.TailStateFile,
		PollInterval: cfg.TailPollInterval,
	})

	// ====================================================================
	// 실행: tail → coordinator, (선택) 운영 HTTP
	// ====================================================================
	lines := make(chan string, cfg.BatchSize)
	g, gctx := errgroup.WithContext(ctx)
	gctx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer close(lines)
		return tailer.Run(gctx, lines)
	})
	g.Go(func() error {
		// coordinator 가 끝나면 나머지(HTTP) 도 내린다
		defer stop()
		return coord.Run(gctx, lines)
	})

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      server.NewHandler(m, coord.Gate()).Mux(),
			ReadTimeout:  8 * time.Second,
			WriteTimeout: 8 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("ops http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Info().Str("source", source).Str("target", target.String()).Msg("logship started")

	err = g.Wait()

	// 취소된 sweep 이 정리를 마칠 때까지 기다린다
	coord.Wait()
	log.Info().Str("metrics", m.String()).Msg("shutdown complete")
	return err
}
