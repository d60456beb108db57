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

// Package client is the branch side: it watches a local database for
// changes via CDC, ships them to the hub broker, and applies whatever
// the hub forwards back from other branches in the same tenant.
package client

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erigontech/syncfabric/internal/types"
)

type Config struct {
	TenantId           types.TenantId
	BranchId           types.BranchId
	ApiKey             string
	HubURL             string
	LocalDatabaseURL   string
	DatabaseSchema     string
	TrackedTables      []string
	SyncInterval       time.Duration
}

func LoadConfig() (Config, error) {
	cfg := Config{
		TenantId:         types.TenantId(os.Getenv("TENANT_ID")),
		BranchId:         types.BranchId(os.Getenv("BRANCH_ID")),
		ApiKey:           os.Getenv("API_KEY"),
		HubURL:           getEnv("HUB_URL", "ws://localhost:8080/ws"),
		LocalDatabaseURL: getEnv("LOCAL_DATABASE_URL", "postgres://localhost:5432/branch"),
		DatabaseSchema:   getEnv("DATABASE_SCHEMA", "public"),
		SyncInterval:     30 * time.Second,
	}

	if tables := os.Getenv("TRACKED_TABLES"); tables != "" {
		for _, t := range strings.Split(tables, ",") {
			cfg.TrackedTables = append(cfg.TrackedTables, strings.TrimSpace(t))
		}
	}

	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("client: invalid SYNC_INTERVAL: %w", err)
		}
		cfg.SyncInterval = time.Duration(n) * time.Second
	}

	if cfg.TenantId == "" || cfg.BranchId == "" || cfg.ApiKey == "" {
		return Config{}, fmt.Errorf("client: TENANT_ID, BRANCH_ID, and API_KEY are required")
	}
	if len(cfg.TrackedTables) == 0 {
		return Config{}, fmt.Errorf("client: TRACKED_TABLES must name at least one table")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
