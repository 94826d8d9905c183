package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"rategrate/grate/infra"
	"rategrate/internal/config"
	"rategrate/internal/logging"
)

var (
	simpleMS       int
	bucketSize     int
	bucketLifetime int
	requests       int
	metricsAddr    string
)

var errScenarioFailed = errors.New("one or more scenarios failed")

var runCmd = &cobra.Command{
	Use:       "run [base|simple|bucketed|all]",
	Short:     "Run one scenario or all of them",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"base", "simple", "bucketed", "all"},
	RunE:      runScenarios,
}

func init() {
	runCmd.Flags().IntVar(&simpleMS, "simple-ms", 200, "interval of the simple route in ms")
	runCmd.Flags().IntVar(&bucketSize, "bucket-size", 5, "requests per lifetime on the bucketed route")
	runCmd.Flags().IntVar(&bucketLifetime, "bucket-lifetime", 1000, "bucket lifetime in ms")
	runCmd.Flags().IntVar(&requests, "requests", 0, "requests per scenario (default: config)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve permit metrics on this address while running (e.g. :9100)")
	rootCmd.AddCommand(runCmd)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	which := "all"
	if len(args) == 1 {
		which = args[0]
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := runnerFromConfig(cfg.Client)
	r.log = log
	r.out = cmd.OutOrStdout()
	if baseURL != "" {
		r.baseURL = baseURL
	}
	if token != "" {
		r.token = token
	}
	if r.token == "" {
		r.token = uuid.NewString()
	}
	if requests > 0 {
		r.requests = requests
	}

	mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	reg := prometheus.NewRegistry()
	prom, err := infra.NewPrometheusStats(reg, infra.WithPrometheusTrackKeys(true))
	if err != nil {
		return err
	}
	stats := infra.MultiStats{mem, prom}
	if cfg.Stats.RedisEnabled {
		rdb, err := newRedisStats(ctx, cfg.Stats)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.client.Close() }()
		stats = append(stats, rdb.store)
	}
	r.stats = stats

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server failed", "addr", metricsAddr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("running scenarios", "which", which, "base_url", r.baseURL, "token", r.token, "requests", r.requests)

	var results []result
	if which == "base" || which == "all" {
		results = append(results, r.base(ctx))
	}
	if which == "simple" || which == "all" {
		results = append(results, r.simple(ctx, time.Duration(simpleMS)*time.Millisecond))
	}
	if which == "bucketed" || which == "all" {
		results = append(results, r.bucketed(ctx, bucketSize, time.Duration(bucketLifetime)*time.Millisecond))
	}

	failed := report(r.out, results)

	t := mem.Total()
	log.Info("permit stats", "acquired", t.Acquired, "released", t.Released, "recycled", t.Recycled, "canceled", t.Canceled, "waited", t.Waited)

	if failed {
		return errScenarioFailed
	}
	return nil
}

type redisStats struct {
	client *redis.Client
	store  *infra.RedisStatsStore
}

func newRedisStats(ctx context.Context, cfg config.StatsConfig) (*redisStats, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis stats ping: %w", err)
	}

	store := infra.NewRedisStatsStore(rdb,
		infra.WithStatsPrefix(cfg.Prefix),
		infra.WithStatsTTL(cfg.TTL),
		infra.WithStatsBucket(cfg.Bucket),
		infra.WithStatsTrackKeys(cfg.TrackKeys),
	)
	return &redisStats{client: rdb, store: store}, nil
}
