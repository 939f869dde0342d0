/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package fetch streams payloads addressed by URI, or held in memory, into a
// writer.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidArgument = errors.New("fetch: invalid argument")
	ErrNotFound        = errors.New("fetch: uri not found")
	ErrTransport       = errors.New("fetch: transport failure")
)

// DefaultChunkSize is used when a chunk size of zero is given.
const DefaultChunkSize = 4096

// Source streams the payload addressed by uri into w. A source that does
// not know uri returns ErrNotFound before writing anything.
type Source interface {
	Fetch(ctx context.Context, uri string, w io.Writer) (int64, error)
}

// Chain tries its sources in order until one knows the uri.
type Chain []Source

func (c Chain) Fetch(ctx context.Context, uri string, w io.Writer) (int64, error) {
	if uri == "" {
		return 0, fmt.Errorf("%w: empty uri", ErrInvalidArgument)
	}
	for _, s := range c {
		n, err := s.Fetch(ctx, uri, w)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return n, err
	}
	return 0, fmt.Errorf("%w: %q", ErrNotFound, uri)
}

// StreamMemory writes payload to w in chunks of at most chunk bytes.
func StreamMemory(ctx context.Context, payload []byte, w io.Writer, chunk int) (int64, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrInvalidArgument)
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	var written int64
	for len(payload) > 0 {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n := min(chunk, len(payload))
		m, err := w.Write(payload[:n])
		written += int64(m)
		if err != nil {
			return written, err
		}
		payload = payload[n:]
	}
	return written, nil
}
