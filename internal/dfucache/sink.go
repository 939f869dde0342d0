/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package dfucache

import (
	"fmt"
	"math"

	"github.com/kentakayama/suit-storage/internal/nvm"
	"github.com/kentakayama/suit-storage/internal/sink"
)

// Sink streams a payload into a cache pool. The entry header is programmed
// on release, so a payload only becomes visible once it is complete.
type Sink struct {
	flash        *sink.FlashSink
	part         partition
	uri          string
	started      bool
	headerAt     uint64
	writeEnabled bool
	aborted      bool
}

var (
	_ sink.StreamSink = (*Sink)(nil)
	_ sink.Eraser     = (*Sink)(nil)
	_ sink.Aborter    = (*Sink)(nil)
)

// Sink opens a sink for uri in cache pool id. With writeEnabled unset the
// sink only validates that the entry could be written.
func (c *Cache) Sink(id uint64, uri string, writeEnabled bool) (*Sink, error) {
	if uri == "" || len(uri) > maxURILength {
		return nil, fmt.Errorf("%w: uri of %d bytes", ErrInvalidArgument, len(uri))
	}
	p, err := c.pool(id)
	if err != nil {
		return nil, err
	}
	res, err := scan(p)
	if err != nil {
		return nil, err
	}
	for _, e := range res.entries {
		if e.URI == uri {
			return nil, fmt.Errorf("%w: %q in cache pool %d", ErrExists, uri, id)
		}
	}

	hdr, err := entryHeader(res.started, uri, 0)
	if err != nil {
		return nil, err
	}
	dataStart := res.free + uint64(len(hdr))
	if dataStart >= p.region.End() {
		return nil, fmt.Errorf("%w: cache pool %d is full", ErrNoSpace, id)
	}
	limit := min(p.region.End()-dataStart, math.MaxUint32)
	flash, err := sink.NewFlashSink(p.dev, dataStart, limit)
	if err != nil {
		return nil, err
	}
	return &Sink{
		flash:        flash,
		part:         p,
		uri:          uri,
		started:      res.started,
		headerAt:     res.free,
		writeEnabled: writeEnabled,
	}, nil
}

func (s *Sink) Write(buf []byte) error {
	if !s.writeEnabled {
		return fmt.Errorf("%w: cache sink opened for check only", sink.ErrInvalidArgument)
	}
	return s.flash.Write(buf)
}

func (s *Sink) Seek(offset uint64) error {
	return s.flash.Seek(offset)
}

func (s *Sink) UsedStorage() (uint64, error) {
	return s.flash.UsedStorage()
}

// Erase erases the free tail of the pool, including the bytes left behind
// by an earlier interrupted fetch.
func (s *Sink) Erase() error {
	if !s.writeEnabled {
		return fmt.Errorf("%w: cache sink opened for check only", sink.ErrInvalidArgument)
	}
	if _, err := s.flash.UsedStorage(); err != nil {
		return err
	}
	return nvm.EraseUnaligned(s.part.dev, s.headerAt, s.part.region.End()-s.headerAt)
}

// Abort leaves the entry unpublished. The bytes already written stay in the
// free tail and are erased by the next fetch into the pool.
func (s *Sink) Abort() {
	s.aborted = true
}

func (s *Sink) Release() error {
	used, err := s.flash.UsedStorage()
	if err != nil {
		return err
	}
	if err := s.flash.Release(); err != nil {
		return err
	}
	if !s.writeEnabled || s.aborted || used == 0 {
		return nil
	}

	hdr, err := entryHeader(s.started, s.uri, uint32(used))
	if err != nil {
		return err
	}
	if err := nvm.WriteUnaligned(s.part.dev, s.headerAt, hdr); err != nil {
		return fmt.Errorf("commit cache entry %q: %w", s.uri, err)
	}
	return nil
}
