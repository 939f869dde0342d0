/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package sink provides the stream sinks that fetched payloads are written
// into. A sink is owned by exactly one fetch and released once.
package sink

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("sink: invalid argument")
	ErrNoSpace         = errors.New("sink: no space left")
	ErrIO              = errors.New("sink: i/o failure")
)

// StreamSink is a write destination bound to one address window.
type StreamSink interface {
	// Write appends buf at the cursor.
	Write(buf []byte) error
	// Seek moves the cursor; offset must stay below the window limit.
	Seek(offset uint64) error
	// UsedStorage returns the highest offset written so far.
	UsedStorage() (uint64, error)
	// Release ends the lifetime of the sink. A second call fails.
	Release() error
}

// Eraser is implemented by sinks that must be erased before writing.
type Eraser interface {
	Erase() error
}

// Aborter is implemented by sinks that publish their content on release.
// After Abort the content is discarded by Release instead.
type Aborter interface {
	Abort()
}

// window is the cursor bookkeeping shared by all sink variants.
type window struct {
	limit    uint64
	cursor   uint64
	used     uint64
	released bool
}

func (w *window) reserve(n int) (uint64, error) {
	if w.released {
		return 0, fmt.Errorf("%w: sink released", ErrInvalidArgument)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty write", ErrInvalidArgument)
	}
	if uint64(n) > w.limit-w.cursor {
		return 0, fmt.Errorf("%w: write of %d bytes at offset 0x%x exceeds limit 0x%x", ErrNoSpace, n, w.cursor, w.limit)
	}
	return w.cursor, nil
}

func (w *window) advance(n int) {
	w.cursor += uint64(n)
	if w.cursor > w.used {
		w.used = w.cursor
	}
}

func (w *window) Seek(offset uint64) error {
	if w.released {
		return fmt.Errorf("%w: sink released", ErrInvalidArgument)
	}
	if offset >= w.limit {
		return fmt.Errorf("%w: seek to 0x%x with limit 0x%x", ErrNoSpace, offset, w.limit)
	}
	w.cursor = offset
	return nil
}

func (w *window) UsedStorage() (uint64, error) {
	if w.released {
		return 0, fmt.Errorf("%w: sink released", ErrInvalidArgument)
	}
	return w.used, nil
}

func (w *window) release() error {
	if w.released {
		return fmt.Errorf("%w: sink already released", ErrInvalidArgument)
	}
	w.released = true
	return nil
}
