package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"reserva-backend/internal/config"
	"reserva-backend/internal/env"
	"reserva-backend/internal/infrastructure/events"
	"reserva-backend/internal/infrastructure/repo"
	"reserva-backend/internal/metrics"
	"reserva-backend/internal/server"
	"reserva-backend/internal/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	loaded := env.Load(".env", ".env.local")
	envDefaults := config.EnvDefaults()

	envName := flag.String("env", envDefaults.Env, "")
	port := flag.Int("port", envDefaults.Port, "")
	jwtSecret := flag.String("jwt-secret", envDefaults.JWTSecret, "")
	logJSON := flag.Bool("log-json", envDefaults.LogJSON, "")
	dbURL := flag.String("database-url", envDefaults.DatabaseURL, "postgres DSN; in-memory store when empty")
	brokers := flag.String("kafka-brokers", envDefaults.KafkaBrokers, "comma separated; events disabled when empty")
	topic := flag.String("kafka-topic", envDefaults.KafkaTopic, "")
	warning := flag.Duration("expiry-warning", envDefaults.ExpiryWarning, "")
	sweep := flag.Duration("sweep-interval", envDefaults.SweepInterval, "")
	window := flag.Duration("reservation-window", envDefaults.ReservationWindow, "")
	issue := flag.String("issue-token", "", "print a token for user:role and exit")

	flag.Parse()

	cfg := config.Config{
		Env:               *envName,
		Port:              *port,
		JWTSecret:         *jwtSecret,
		LogJSON:           *logJSON,
		DatabaseURL:       *dbURL,
		KafkaBrokers:      *brokers,
		KafkaTopic:        *topic,
		ExpiryWarning:     *warning,
		SweepInterval:     *sweep,
		ReservationWindow: *window,
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if cfg.JWTSecret == "" {
		log.Fatal("jwt secret is required (RESERVA_JWT_SECRET or -jwt-secret)")
	}
	auth := &usecase.AuthService{JWTSecret: cfg.JWTSecret}

	if *issue != "" {
		uid, role, _ := strings.Cut(*issue, ":")
		tok, err := auth.Issue(uid, role)
		if err != nil {
			log.Fatal("issue token", zap.Error(err))
		}
		fmt.Println(tok)
		return
	}

	log.Info("starting reserva-backend",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.Strings("env_files_keys", loaded),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("kafka", cfg.KafkaBrokers != ""),
	)

	var store usecase.OrderRepo
	if cfg.DatabaseURL != "" {
		pg, err := repo.NewPostgresRepo(cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("open postgres", zap.Error(err))
		}
		defer pg.Close()
		store = pg
	} else {
		store = repo.NewMemoryOrderRepo()
	}

	var publisher events.Publisher = events.NopPublisher{}
	if bs := events.ParseBrokers(cfg.KafkaBrokers); len(bs) > 0 {
		kp, err := events.NewKafkaPublisher(bs, cfg.KafkaTopic, log)
		if err != nil {
			log.Fatal("kafka publisher", zap.Error(err))
		}
		publisher = kp
	}
	defer publisher.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	orders := &usecase.OrderService{
		Repo:              store,
		Events:            publisher,
		Metrics:           m,
		Logger:            log,
		ReservationWindow: cfg.ReservationWindow,
	}
	srv := server.New(cfg, orders, auth, m, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepExpired(ctx, orders, cfg.SweepInterval, log)

	httpSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if !cfg.LogJSON {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.EncoderConfig.LevelKey = "severity"
	zc.EncoderConfig.MessageKey = "message"
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// sweepExpired cancels reservations whose window ran out while nobody was
// watching them.
func sweepExpired(ctx context.Context, orders *usecase.OrderService, every time.Duration, log *zap.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := orders.ExpireOverdue(ctx)
			if err != nil {
				log.Warn("expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("expired reservations", zap.Int("count", n))
			}
		}
	}
}
