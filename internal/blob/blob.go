// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package blob stores whole documents by key on the local filesystem or S3.
package blob

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read when no document is stored under a key.
var ErrNotExist = errors.New("blob does not exist")

// Store reads and replaces whole documents.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}
