/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package platform implements the fetch operations of the SUIT processor:
// it selects the sink of a destination component and streams a payload
// into it.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/domain/service"
	"github.com/kentakayama/suit-storage/internal/fetch"
	"github.com/kentakayama/suit-storage/internal/metric"
	"github.com/kentakayama/suit-storage/internal/sink"
)

// Deps are the collaborators of a Platform. Digests and Metrics may be nil.
type Deps struct {
	Components service.ComponentResolver
	Selector   SinkSelector
	Source     service.PayloadSource
	Digests    service.DigestCache
	Metrics    *metric.Metrics
}

type Platform struct {
	components service.ComponentResolver
	selector   SinkSelector
	source     service.PayloadSource
	digests    service.DigestCache
	metrics    *metric.Metrics
	chunkSize  int
	logger     *log.Logger
}

func New(cfg config.PlatformConfig, deps Deps) (*Platform, error) {
	if deps.Components == nil || deps.Selector == nil {
		return nil, errors.New("platform: component resolver and sink selector are required")
	}
	cfg = cfg.WithDefaults()
	p := &Platform{
		components: deps.Components,
		selector:   deps.Selector,
		source:     deps.Source,
		metrics:    deps.Metrics,
		chunkSize:  cfg.ChunkSize,
		logger:     cfg.Logger,
	}
	if !cfg.DisableDigestCache {
		p.digests = deps.Digests
	}
	return p, nil
}

// streamFunc writes a payload into the selected sink.
type streamFunc func(ctx context.Context, s sink.StreamSink) (int64, error)

// CheckFetch verifies that uri could be fetched into dst without touching
// the destination.
func (p *Platform) CheckFetch(ctx context.Context, dst model.ComponentHandle, uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: empty uri", domain.ErrInvalidArgument)
	}
	return p.run(ctx, "check_fetch", dst, uri, false, nil)
}

// Fetch streams the payload addressed by uri into dst.
func (p *Platform) Fetch(ctx context.Context, dst model.ComponentHandle, uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: empty uri", domain.ErrInvalidArgument)
	}
	if p.source == nil {
		return fmt.Errorf("%w: no payload source", domain.ErrUnsupported)
	}
	return p.run(ctx, "fetch", dst, uri, true, func(ctx context.Context, s sink.StreamSink) (int64, error) {
		return p.source.Fetch(ctx, uri, sink.NewWriter(s))
	})
}

// CheckFetchIntegrated verifies that payload could be written into dst
// without touching the destination.
func (p *Platform) CheckFetchIntegrated(ctx context.Context, dst model.ComponentHandle, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", domain.ErrInvalidArgument)
	}
	return p.run(ctx, "check_fetch_integrated", dst, "", false, nil)
}

// FetchIntegrated writes a payload carried inside the envelope into dst.
func (p *Platform) FetchIntegrated(ctx context.Context, dst model.ComponentHandle, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", domain.ErrInvalidArgument)
	}
	return p.run(ctx, "fetch_integrated", dst, "", true, func(ctx context.Context, s sink.StreamSink) (int64, error) {
		return fetch.StreamMemory(ctx, payload, sink.NewWriter(s), p.chunkSize)
	})
}

func (p *Platform) run(ctx context.Context, op string, dst model.ComponentHandle, uri string, writeEnabled bool, stream streamFunc) (err error) {
	start := time.Now()
	var written int64
	defer func() {
		p.metrics.ObserveFetch(op, err, written, time.Since(start))
	}()

	typ, err := p.components.Type(dst)
	if err != nil {
		return domain.Translate(err)
	}

	if writeEnabled && p.digests != nil {
		if err := p.digests.RemoveByHandle(dst); err != nil {
			return domain.Translate(err)
		}
	}

	s, err := p.selector.Select(dst, uri, writeEnabled)
	if err != nil {
		p.logger.Printf("%s: no sink for component %d (%s): %v", op, dst, typ, err)
		return domain.Translate(err)
	}
	defer func() {
		if a, ok := s.(sink.Aborter); ok && err != nil {
			a.Abort()
		}
		if rerr := s.Release(); rerr != nil && err == nil {
			err = domain.Translate(rerr)
		}
	}()

	if !writeEnabled {
		return nil
	}

	if e, ok := s.(sink.Eraser); ok {
		if err := e.Erase(); err != nil {
			p.logger.Printf("%s: erase of component %d (%s) failed: %v", op, dst, typ, err)
			return domain.Translate(err)
		}
	}

	written, err = stream(ctx, s)
	if err != nil {
		p.logger.Printf("%s: streaming into component %d (%s) failed after %d bytes: %v", op, dst, typ, written, err)
		return domain.Translate(err)
	}
	p.logger.Printf("%s: wrote %d bytes into component %d (%s)", op, written, dst, typ)
	return nil
}
