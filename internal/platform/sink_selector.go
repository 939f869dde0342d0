/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package platform

import (
	"fmt"

	"github.com/kentakayama/suit-storage/internal/dfucache"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/domain/service"
	"github.com/kentakayama/suit-storage/internal/nvm"
	"github.com/kentakayama/suit-storage/internal/sink"
	"github.com/kentakayama/suit-storage/internal/suit"
)

// SinkSelector builds the sink that a fetch into a component writes to.
type SinkSelector interface {
	Select(dst model.ComponentHandle, uri string, writeEnabled bool) (sink.StreamSink, error)
}

// DefaultSinkSelector maps component types to sinks:
//
//	MEM                  -> flash sink over the component's address range
//	CACHE_POOL           -> DFU cache pool entry keyed by the URI
//	CAND_IMG, CAND_MFST  -> RAM buffer committed to the component on release
type DefaultSinkSelector struct {
	components  service.ComponentResolver
	flash       nvm.Device
	cache       *dfucache.Cache
	memptrLimit uint64
	reserved    []model.Region
}

var _ SinkSelector = (*DefaultSinkSelector)(nil)

// NewSinkSelector creates a selector. reserved lists the regions of flash
// that MEM components may never overlap.
func NewSinkSelector(components service.ComponentResolver, flash nvm.Device, cache *dfucache.Cache, memptrLimit uint64, reserved []model.Region) *DefaultSinkSelector {
	return &DefaultSinkSelector{
		components:  components,
		flash:       flash,
		cache:       cache,
		memptrLimit: memptrLimit,
		reserved:    reserved,
	}
}

// Select returns collaborator errors untranslated.
func (s *DefaultSinkSelector) Select(dst model.ComponentHandle, uri string, writeEnabled bool) (sink.StreamSink, error) {
	typ, err := s.components.Type(dst)
	if err != nil {
		return nil, err
	}

	switch typ {
	case suit.ComponentTypeMem:
		return s.memSink(dst)
	case suit.ComponentTypeCachePool:
		return s.cacheSink(dst, uri, writeEnabled)
	case suit.ComponentTypeCandidateImage, suit.ComponentTypeCandidateManifest:
		var commit func([]byte) error
		if writeEnabled {
			commit = func(data []byte) error {
				return s.components.SetMemPtr(dst, data)
			}
		}
		m, err := sink.NewMemPtrSink(s.memptrLimit, commit)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: no sink for component type %q", domain.ErrUnsupported, typ)
	}
}

func (s *DefaultSinkSelector) memSink(dst model.ComponentHandle) (sink.StreamSink, error) {
	if s.flash == nil {
		return nil, fmt.Errorf("%w: no flash device", domain.ErrUnsupported)
	}
	id, err := s.components.ID(dst)
	if err != nil {
		return nil, err
	}
	addr, err := id.Number(2)
	if err != nil {
		return nil, err
	}
	size, err := id.Number(3)
	if err != nil {
		return nil, err
	}

	region := model.Region{Address: addr, Size: size}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty memory component", domain.ErrInvalidArgument)
	}
	if !(model.Region{Size: s.flash.Size()}).Contains(region) {
		return nil, fmt.Errorf("%w: memory component %s outside flash", domain.ErrOutOfBounds, region)
	}
	for _, r := range s.reserved {
		if r.Overlaps(region) {
			return nil, fmt.Errorf("%w: memory component %s overlaps reserved region %s", domain.ErrOutOfBounds, region, r)
		}
	}
	f, err := sink.NewFlashSink(s.flash, addr, size)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *DefaultSinkSelector) cacheSink(dst model.ComponentHandle, uri string, writeEnabled bool) (sink.StreamSink, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("%w: no dfu cache", domain.ErrUnsupported)
	}
	id, err := s.components.ID(dst)
	if err != nil {
		return nil, err
	}
	pool, err := id.Number(1)
	if err != nil {
		return nil, err
	}
	if !s.cache.HasPool(pool) {
		return nil, fmt.Errorf("%w: cache pool %d", domain.ErrUnsupported, pool)
	}
	cs, err := s.cache.Sink(pool, uri, writeEnabled)
	if err != nil {
		return nil, err
	}
	return cs, nil
}
