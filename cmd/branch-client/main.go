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
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/erigontech/syncfabric/internal/cdc"
	"github.com/erigontech/syncfabric/internal/client"
	"github.com/erigontech/syncfabric/internal/protocol"
)

var (
	logFile   string
	useBinary bool
)

func main() {
	root := &cobra.Command{
		Use:   "branch-client",
		Short: "Runs one branch's side of the sync fabric: CDC drain, hub connection, replication.",
		RunE:  run,
	}
	root.Flags().StringVar(&logFile, "log-file", "", "path to a rotated log file; empty logs to stderr")
	root.Flags().BoolVar(&useBinary, "binary-codec", false, "use the compact-binary wire codec instead of text")

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

	cfg, err := client.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.LocalDatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to local database: %w", err)
	}
	defer pool.Close()

	engine := cdc.NewEngine(pool, cfg.TrackedTables, log)
	if err := engine.InstallTriggers(ctx, cfg.DatabaseSchema); err != nil {
		return fmt.Errorf("install CDC triggers: %w", err)
	}

	repl := client.NewReplicator(pool, cfg.DatabaseSchema, log)

	var codec protocol.MessageCodec = protocol.TextCodec{}
	if useBinary {
		codec = protocol.BinaryCodec{}
	}

	var loop *client.SyncLoop
	conn := client.NewClient(cfg, codec, log, func(m protocol.Message) {
		loop.HandleInbound(m)
	})
	loop = client.NewSyncLoop(cfg, engine, conn, repl, log)

	go loop.Run(ctx)

	log.Infow("branch client starting", "tenant", cfg.TenantId, "branch", cfg.BranchId, "hub", cfg.HubURL)
	if err := conn.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("client run: %w", err)
	}
	return nil
}
