/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kentakayama/suit-storage/internal/dfucache"
	"github.com/kentakayama/suit-storage/internal/nvm"
)

// CacheSource serves payloads already present in a DFU cache partition.
type CacheSource struct {
	Cache     *dfucache.Cache
	ChunkSize int
}

func (s *CacheSource) Fetch(ctx context.Context, uri string, w io.Writer) (int64, error) {
	dev, region, err := s.Cache.Find(uri)
	if errors.Is(err, dfucache.ErrNotFound) {
		return 0, fmt.Errorf("%w: %q not cached", ErrNotFound, uri)
	}
	if err != nil {
		return 0, err
	}
	if region.Size == 0 {
		return 0, nil
	}

	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	r := nvm.NewSectionReader(dev, region.Address, region.Size)
	return io.CopyBuffer(onlyWriter{w}, contextReader{ctx: ctx, r: r}, make([]byte, chunk))
}

// onlyWriter hides ReaderFrom so that io.CopyBuffer honours the chunk size.
type onlyWriter struct {
	io.Writer
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
