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

package storage

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2 parameters tuned for an interactive handshake path: verified
// once per WebSocket connect, not per message, so the cost can be
// comfortably above the OWASP minimums without pacing the hot path.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 2
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// HashApiKey produces a self-describing PHC-like encoded hash
// ("argon2id$time$memory$threads$salt$hash", the cost parameters in
// decimal and the salt and hash base64-raw-encoded) suitable for
// storage in branches.api_key_hash.
func HashApiKey(key string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(key), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		argon2Time, argon2Memory, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyApiKey checks key against an encoded hash produced by
// HashApiKey, in constant time with respect to the hash comparison.
func VerifyApiKey(key, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false, fmt.Errorf("apikey: malformed hash encoding")
	}

	var time_, memory uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[1], "%d", &time_); err != nil {
		return false, fmt.Errorf("apikey: malformed time cost: %w", err)
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &memory); err != nil {
		return false, fmt.Errorf("apikey: malformed memory cost: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "%d", &threads); err != nil {
		return false, fmt.Errorf("apikey: malformed parallelism: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("apikey: malformed salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("apikey: malformed digest: %w", err)
	}

	got := argon2.IDKey([]byte(key), salt, time_, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
