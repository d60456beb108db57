// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/erigontech/syncfabric/internal/hub"
	"github.com/erigontech/syncfabric/internal/protocol"
	"github.com/erigontech/syncfabric/internal/storage"
)

var (
	logFile    string
	cacheSize  int
	queueTTL   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "hub-broker",
		Short: "Runs the multi-tenant sync fabric's hub broker.",
		RunE:  run,
	}
	root.Flags().StringVar(&logFile, "log-file", "", "path to a rotated log file; empty logs to stderr")
	root.Flags().IntVar(&cacheSize, "catalog-cache-size", 4096, "entries held in the tenant/branch LRU cache")
	root.Flags().DurationVar(&queueTTL, "offline-queue-ttl", 24*time.Hour, "TTL for a disconnected branch's queued messages")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if logFile == "" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig = encCfg
		logger, _ := cfg.Build()
		return logger.Sugar()
	}

	ws := zapcore.AddSync(&lumberjack.Logger{Filename: logFile, MaxSize: 100, MaxBackups: 5, MaxAge: 28, Compress: true})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zap.InfoLevel)
	return zap.New(core).Sugar()
}

func run(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Sync()

	cfg, err := hub.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to catalog database: %w", err)
	}
	defer pool.Close()

	gateway, err := storage.NewCachedGateway(storage.NewPostgresGateway(pool), cacheSize)
	if err != nil {
		return fmt.Errorf("build catalog cache: %w", err)
	}

	metrics := hub.NewMetrics()
	registry := hub.NewRegistry(cfg.MaxConnections)
	auth := hub.NewAuthenticator(gateway, cfg.JWTSecret, cfg.JWTExpiry, metrics)

	var offline *hub.OfflineQueue
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		offline = hub.NewOfflineQueue(redisClient, protocol.TextCodec{}, queueTTL, metrics.OfflineQueueDepth)
	}

	router := hub.NewRouter(registry, gateway, offline, metrics)
	h := hub.NewHub(cfg, gateway, auth, registry, router, offline, metrics, log)

	sweeper := hub.NewStaleSweeper(registry, cfg.MessageTimeout, log)
	go sweeper.Run(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler: h.Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Shutdown(shutdownCtx)
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infow("hub broker listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
