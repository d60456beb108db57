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

// Package hub is the broker side: it accepts branch WebSocket
// connections, authenticates them, and routes sync traffic between
// branches that belong to the same tenant, never across tenants.
package hub

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is read from the environment with defaults matching a local
// development broker; production deployments override every field.
type Config struct {
	ServerHost         string
	ServerPort         int
	MaxConnections     int
	HeartbeatInterval  time.Duration
	MessageTimeout     time.Duration
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTExpiry          time.Duration
	RateLimitPerSecond int
	RequireTLS         bool
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ServerHost:         getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:         8080,
		MaxConnections:     10000,
		HeartbeatInterval:  30 * time.Second,
		MessageTimeout:     90 * time.Second,
		DatabaseURL:        getEnv("DATABASE_URL", "postgres://localhost:5432/syncfabric"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTExpiry:          24 * time.Hour,
		RateLimitPerSecond: 100,
		RequireTLS:         false,
	}

	var err error
	if cfg.ServerPort, err = getEnvInt("SERVER_PORT", cfg.ServerPort); err != nil {
		return Config{}, err
	}
	if cfg.MaxConnections, err = getEnvInt("MAX_CONNECTIONS", cfg.MaxConnections); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = getEnvSeconds("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return Config{}, err
	}
	if cfg.MessageTimeout, err = getEnvSeconds("MESSAGE_TIMEOUT", cfg.MessageTimeout); err != nil {
		return Config{}, err
	}
	if cfg.JWTExpiry, err = getEnvSeconds("JWT_EXPIRY", cfg.JWTExpiry); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerSecond, err = getEnvInt("RATE_LIMIT", cfg.RateLimitPerSecond); err != nil {
		return Config{}, err
	}
	if cfg.RequireTLS, err = getEnvBool("REQUIRE_TLS", cfg.RequireTLS); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("hub: JWT_SECRET must be set")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("hub: invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvSeconds(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("hub: invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("hub: invalid %s: %w", key, err)
	}
	return b, nil
}
