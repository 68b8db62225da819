package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/config"
	"github.com/mossy-p/webrtc-matchmaker/internal/handlers"
	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/metrics"
	"github.com/mossy-p/webrtc-matchmaker/internal/presence"
	"github.com/mossy-p/webrtc-matchmaker/internal/redis"
)

const shutdownTimeout = 10 * time.Second

var (
	flagPort  string
	flagEnv   string
	flagRedis bool
)

var rootCmd = &cobra.Command{
	Use:   "signaling",
	Short: "Random video-chat matchmaker and WebRTC signaling relay",
	Long: `Pairs anonymous visitors into two-party rooms and relays their WebRTC
offers, answers and ICE candidates over a websocket.

Configuration comes from the environment; flags override it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cmd.Flags().Changed("port") {
			cfg.Port = flagPort
		}
		if cmd.Flags().Changed("env") {
			cfg.Environment = flagEnv
		}
		if cmd.Flags().Changed("redis") {
			cfg.Redis.Enabled = flagRedis
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagPort, "port", "8080", "HTTP listen port")
	rootCmd.Flags().StringVar(&flagEnv, "env", "development", "environment (production or development)")
	rootCmd.Flags().BoolVar(&flagRedis, "redis", false, "mirror presence to Redis")
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(cfg *config.Config) (err error) {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ids, err := matchmaking.NewIDGenerator(cfg.RoomIDStrategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	observers := []matchmaking.Observer{m}

	// Connect to Redis
	var (
		client  *goredis.Client
		mirror  *presence.Mirror
		cluster handlers.ClusterSource
	)
	if cfg.Redis.Enabled {
		client, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Info("Redis connection established", zap.String("addr", redis.Addr(cfg.Redis)))

		mirror = presence.NewMirror(client, instanceName(), cfg.Redis.PresenceTTL, log.Named("presence"))
		observers = append(observers, mirror)
		cluster = mirror
	}

	opts := []matchmaking.Option{
		matchmaking.WithLogger(log.Named("matchmaker")),
		matchmaking.WithIDGenerator(ids),
		matchmaking.WithObserver(matchmaking.Observers(observers...)),
	}
	if !cfg.IsProduction() {
		opts = append(opts, matchmaking.WithInvariantChecks())
	}
	mm := matchmaking.New(opts...)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(cfg, mm, m, cluster, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebRTC matchmaker", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case serveErr := <-errCh:
		if serveErr != nil {
			err = fmt.Errorf("serve: %w", serveErr)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	if mirror != nil {
		log.Info("presence mirror closing", zap.Int64("dropped_events", mirror.Dropped()))
		err = multierr.Append(err, mirror.Close(shutdownCtx))
	}
	if client != nil {
		err = multierr.Append(err, client.Close())
	}
	return err
}

func instanceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
