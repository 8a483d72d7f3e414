package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/npezzotti/go-chatrelay/internal/api"
	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/server"
	"github.com/npezzotti/go-chatrelay/internal/stats"
	"github.com/rs/zerolog"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	env            string
	storeDriver    string
	dataFile       string
	pebbleDir      string
	dsn            string
	redisURL       string
	maxMessageSize int64
	rateLimitRPS   float64
	rateLimitBurst int
	allowedOrigins stringSliceFlag
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return getEnv("ADDR", ":4000")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(zerolog.DebugLevel).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

func openPersister(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (database.Persister, error) {
	switch cfg.StoreDriver {
	case config.StorePebble:
		return database.NewPebblePersister(logger, cfg.PebbleDir)
	case config.StorePostgres:
		return database.NewPgPersister(ctx, logger, cfg.DatabaseDSN)
	case config.StoreRedis:
		return database.NewRedisPersister(ctx, logger, cfg.RedisURL)
	default:
		return database.NewFilePersister(logger, cfg.DataFile)
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}

	flag.StringVar(&addr, "addr", defaultAddr(), "server address")
	flag.StringVar(&env, "env", getEnv("ENV", "development"), "environment (development or production)")
	flag.StringVar(&storeDriver, "store", getEnv("STORE_DRIVER", config.StoreFile), "room store backend: file, pebble, postgres or redis")
	flag.StringVar(&dataFile, "data-file", getEnv("DATA_FILE", "rooms-data.json"), "path of the JSON rooms file")
	flag.StringVar(&pebbleDir, "pebble-dir", getEnv("PEBBLE_DIR", "rooms-data"), "pebble data directory")
	flag.StringVar(&dsn, "dsn", getEnv("DATABASE_URL", ""), "postgres connection string")
	flag.StringVar(&redisURL, "redis-url", getEnv("REDIS_URL", ""), "redis connection URL")
	flag.Int64Var(&maxMessageSize, "max-message-size", int64(getEnvInt("MAX_MESSAGE_SIZE", int(server.DefaultLimits.MaxMessageSize))), "maximum inbound frame size in bytes")
	flag.Float64Var(&rateLimitRPS, "rate-limit-rps", getEnvFloat("RATE_LIMIT_RPS", server.DefaultLimits.EventsPerSecond), "inbound events per second per connection")
	flag.IntVar(&rateLimitBurst, "rate-limit-burst", getEnvInt("RATE_LIMIT_BURST", server.DefaultLimits.Burst), "inbound event burst per connection")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed websocket and CORS origins")
	flag.Parse()

	if v := os.Getenv("ALLOWED_ORIGINS"); len(allowedOrigins) == 0 && v != "" {
		allowedOrigins.Set(v)
	}

	cfg, err := config.NewConfig(config.Options{
		ServerAddr:     addr,
		Env:            env,
		StoreDriver:    storeDriver,
		DataFile:       dataFile,
		PebbleDir:      pebbleDir,
		DatabaseDSN:    dsn,
		RedisURL:       redisURL,
		AllowedOrigins: allowedOrigins,
		MaxMessageSize: maxMessageSize,
		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	ctx := context.Background()
	p, err := openPersister(ctx, logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.StoreDriver).Msg("failed to open room store")
	}

	store := database.NewRoomStore(logger, p)
	store.Load(ctx)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close room store")
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, store, statsUpdater, server.Limits{
		MaxMessageSize:  cfg.MaxMessageSize,
		EventsPerSecond: cfg.RateLimit.EventsPerSecond,
		Burst:           cfg.RateLimit.Burst,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create chat server")
	}

	srv := api.NewRelayApp(mux, logger, chatServer, store, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server stopped")
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat server shutdown")
	}

	logger.Info().Msg("shutdown complete")
}
