/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package platform

import (
	"bytes"
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/suit-storage/internal/component"
	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/dfucache"
	"github.com/kentakayama/suit-storage/internal/digestcache"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/fetch"
	"github.com/kentakayama/suit-storage/internal/nvm"
	"github.com/kentakayama/suit-storage/internal/sink"
	"github.com/kentakayama/suit-storage/internal/suit"
)

// truncatedURI is served as 100 bytes followed by a dropped connection.
const truncatedURI = "https://example.com/truncated.bin"

type board struct {
	flash    *nvm.Memory
	cache    *dfucache.Cache
	registry *component.Registry
	digests  *digestcache.Cache
	selector *DefaultSinkSelector
	platform *Platform
}

// newBoard lays out a 64 KiB flash: a reserved area at [0, 0x4000), a MEM
// area, and a cache pool at [0x8000, 0xA000).
func newBoard(t *testing.T, remote map[string][]byte) *board {
	t.Helper()
	b := &board{
		flash:    nvm.NewMemory(0x10000, 0x1000, 4),
		cache:    dfucache.New(),
		registry: component.NewRegistry(8),
	}
	require.NoError(t, b.cache.AddPool(0, b.flash, model.Region{Address: 0x8000, Size: 0x2000}))
	b.digests = digestcache.New(b.registry, 4)
	b.selector = NewSinkSelector(b.registry, b.flash, b.cache, 256, []model.Region{{Address: 0, Size: 0x4000}})

	remoteSource := sourceFunc(func(ctx context.Context, uri string, w io.Writer) (int64, error) {
		if uri == truncatedURI {
			n, err := w.Write(bytes.Repeat([]byte{0xAA}, 100))
			if err != nil {
				return int64(n), err
			}
			return int64(n), io.ErrUnexpectedEOF
		}
		payload, ok := remote[uri]
		if !ok {
			return 0, fetch.ErrNotFound
		}
		return fetch.StreamMemory(ctx, payload, w, 0)
	})

	p, err := New(config.PlatformConfig{Logger: log.New(io.Discard, "", 0)}, Deps{
		Components: b.registry,
		Selector:   b.selector,
		Source:     fetch.Chain{&fetch.CacheSource{Cache: b.cache}, remoteSource},
		Digests:    b.digests,
	})
	require.NoError(t, err)
	b.platform = p
	return b
}

func (b *board) handle(t *testing.T, id suit.ComponentID) model.ComponentHandle {
	t.Helper()
	raw, err := id.Encode()
	require.NoError(t, err)
	h, err := b.registry.Create(raw)
	require.NoError(t, err)
	return h
}

func (b *board) memHandle(t *testing.T, addr, size uint64) model.ComponentHandle {
	t.Helper()
	id, err := suit.NewMemComponentID(0, addr, size)
	require.NoError(t, err)
	return b.handle(t, id)
}

func (b *board) typedHandle(t *testing.T, typ suit.ComponentType, n uint64) model.ComponentHandle {
	t.Helper()
	id, err := suit.NewComponentID(typ, n)
	require.NoError(t, err)
	return b.handle(t, id)
}

func TestSelect_MemComponent(t *testing.T) {
	b := newBoard(t, nil)
	h := b.memHandle(t, 0x4000, 0x1000)

	s, err := b.selector.Select(h, "", true)
	require.NoError(t, err)
	_, ok := s.(sink.Eraser)
	assert.True(t, ok)
	require.NoError(t, s.Release())

	// reserved, empty and out of device
	_, err = b.selector.Select(b.memHandle(t, 0x3000, 0x2000), "", true)
	assert.ErrorIs(t, err, domain.ErrOutOfBounds)
	_, err = b.selector.Select(b.memHandle(t, 0x5000, 0), "", true)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = b.selector.Select(b.memHandle(t, 0xF000, 0x2000), "", true)
	assert.ErrorIs(t, err, domain.ErrOutOfBounds)
}

func TestSelect_Unsupported(t *testing.T) {
	b := newBoard(t, nil)

	_, err := b.selector.Select(b.typedHandle(t, suit.ComponentTypeInstalledManifest, 0), "", true)
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	// unknown cache pool
	_, err = b.selector.Select(b.typedHandle(t, suit.ComponentTypeCachePool, 7), testURI, true)
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestFetch_MemComponent(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A}, 0x321)
	b := newBoard(t, map[string][]byte{testURI: payload})
	h := b.memHandle(t, 0x4000, 0x1000)

	id, err := b.registry.ID(h)
	require.NoError(t, err)
	d, err := suit.ComputeDigest(suit.AlgorithmSHA256, []byte("old image"))
	require.NoError(t, err)
	require.NoError(t, b.digests.Add(id, d))

	require.NoError(t, b.platform.Fetch(context.Background(), h, testURI))
	assert.Equal(t, payload, b.flash.Bytes()[0x4000:0x4000+len(payload)])
	assert.Zero(t, b.digests.Len())

	err = b.platform.Fetch(context.Background(), h, "https://example.com/missing.bin")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetch_TooLargeForComponent(t *testing.T) {
	b := newBoard(t, nil)
	h := b.memHandle(t, 0x4000, 0x10)

	err := b.platform.FetchIntegrated(context.Background(), h, bytes.Repeat([]byte{1}, 0x11))
	assert.ErrorIs(t, err, domain.ErrSize)
}

func TestFetch_CandidateImage(t *testing.T) {
	b := newBoard(t, nil)
	h := b.typedHandle(t, suit.ComponentTypeCandidateImage, 0)

	require.NoError(t, b.platform.CheckFetchIntegrated(context.Background(), h, []byte("image")))
	got, err := b.registry.MemPtr(h)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, b.platform.FetchIntegrated(context.Background(), h, []byte("image")))
	got, err = b.registry.MemPtr(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), got)

	err = b.platform.FetchIntegrated(context.Background(), h, bytes.Repeat([]byte{1}, 257))
	assert.ErrorIs(t, err, domain.ErrSize)

	// the failed fetch leaves the previous image in place
	got, err = b.registry.MemPtr(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), got)
}

func TestFetch_CandidateImageFailedStream(t *testing.T) {
	b := newBoard(t, nil)
	h := b.typedHandle(t, suit.ComponentTypeCandidateImage, 0)

	err := b.platform.Fetch(context.Background(), h, truncatedURI)
	require.Error(t, err)
	got, err := b.registry.MemPtr(h)
	require.NoError(t, err)
	assert.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.platform.FetchIntegrated(context.Background(), h, []byte("image")))
	err = b.platform.FetchIntegrated(ctx, h, []byte("other"))
	assert.ErrorIs(t, err, context.Canceled)
	got, err = b.registry.MemPtr(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), got)
}

func TestFetch_CachePoolFailedStream(t *testing.T) {
	payload := bytes.Repeat([]byte("radio"), 40)
	remote := map[string][]byte{testURI: payload}
	b := newBoard(t, remote)
	pool := b.typedHandle(t, suit.ComponentTypeCachePool, 0)
	mem := b.memHandle(t, 0x5000, 0x1000)

	err := b.platform.Fetch(context.Background(), pool, truncatedURI)
	require.Error(t, err)

	entries, err := b.cache.Entries(0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, _, err = b.cache.Find(truncatedURI)
	assert.ErrorIs(t, err, dfucache.ErrNotFound)

	// the URI is not served from the cache, so the chain reports the failure again
	err = b.platform.Fetch(context.Background(), mem, truncatedURI)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExists)

	// the pool still accepts a complete fetch, written over the leftovers
	require.NoError(t, b.platform.Fetch(context.Background(), pool, testURI))
	entries, err = b.cache.Entries(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testURI, entries[0].URI)

	delete(remote, testURI)
	require.NoError(t, b.platform.Fetch(context.Background(), mem, testURI))
	assert.Equal(t, payload, b.flash.Bytes()[0x5000:0x5000+len(payload)])
}

func TestFetch_ThroughCachePool(t *testing.T) {
	payload := bytes.Repeat([]byte("radio"), 100)
	remote := map[string][]byte{testURI: payload}
	b := newBoard(t, remote)
	pool := b.typedHandle(t, suit.ComponentTypeCachePool, 0)
	mem := b.memHandle(t, 0x5000, 0x1000)

	require.NoError(t, b.platform.CheckFetch(context.Background(), pool, testURI))
	require.NoError(t, b.platform.Fetch(context.Background(), pool, testURI))

	entries, err := b.cache.Entries(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testURI, entries[0].URI)
	assert.Equal(t, uint64(len(payload)), entries[0].Region.Size)

	// cached twice under one URI
	err = b.platform.Fetch(context.Background(), pool, testURI)
	assert.ErrorIs(t, err, domain.ErrExists)

	// the chain now serves the URI from the cache
	delete(remote, testURI)
	require.NoError(t, b.platform.Fetch(context.Background(), mem, testURI))
	assert.Equal(t, payload, b.flash.Bytes()[0x5000:0x5000+len(payload)])
}

func TestFetch_FlashNotReady(t *testing.T) {
	b := newBoard(t, map[string][]byte{testURI: []byte("payload")})
	h := b.memHandle(t, 0x4000, 0x1000)
	b.flash.SetReady(false)

	err := b.platform.Fetch(context.Background(), h, testURI)
	assert.ErrorIs(t, err, domain.ErrHWNotReady)
}
