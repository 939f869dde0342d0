/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/fetch"
	"github.com/kentakayama/suit-storage/internal/sink"
	"github.com/kentakayama/suit-storage/internal/suit"
)

const testURI = "https://example.com/app.bin"

// events records the order in which collaborators are called.
type events []string

func (e *events) add(s string) { *e = append(*e, s) }

type fakeComponents struct {
	typ suit.ComponentType
	err error
}

func (f *fakeComponents) Type(model.ComponentHandle) (suit.ComponentType, error) {
	return f.typ, f.err
}

func (f *fakeComponents) ID(model.ComponentHandle) (suit.ComponentID, error) {
	return suit.NewComponentID(f.typ, 0)
}

func (f *fakeComponents) SetMemPtr(model.ComponentHandle, []byte) error { return nil }

type fakeDigests struct {
	ev  *events
	err error
}

func (f *fakeDigests) RemoveByHandle(model.ComponentHandle) error {
	f.ev.add("digest")
	return f.err
}

// countingSink counts every call and fails on demand.
type countingSink struct {
	ev         *events
	data       bytes.Buffer
	erases     int
	releases   int
	eraseErr   error
	writeErr   error
	releaseErr error
}

func (s *countingSink) Write(buf []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.ev.add("write")
	s.data.Write(buf)
	return nil
}

func (s *countingSink) Seek(uint64) error { return nil }

func (s *countingSink) UsedStorage() (uint64, error) { return uint64(s.data.Len()), nil }

func (s *countingSink) Erase() error {
	s.ev.add("erase")
	s.erases++
	return s.eraseErr
}

func (s *countingSink) Release() error {
	s.ev.add("release")
	s.releases++
	return s.releaseErr
}

type fakeSelector struct {
	ev           *events
	sink         *countingSink
	err          error
	writeEnabled []bool
}

func (f *fakeSelector) Select(_ model.ComponentHandle, _ string, writeEnabled bool) (sink.StreamSink, error) {
	f.ev.add("select")
	f.writeEnabled = append(f.writeEnabled, writeEnabled)
	if f.err != nil {
		return nil, f.err
	}
	return f.sink, nil
}

type sourceFunc func(ctx context.Context, uri string, w io.Writer) (int64, error)

func (f sourceFunc) Fetch(ctx context.Context, uri string, w io.Writer) (int64, error) {
	return f(ctx, uri, w)
}

func staticSource(payload []byte) sourceFunc {
	return func(ctx context.Context, uri string, w io.Writer) (int64, error) {
		if uri != testURI {
			return 0, fetch.ErrNotFound
		}
		return fetch.StreamMemory(ctx, payload, w, 7)
	}
}

type fixture struct {
	ev       events
	sink     *countingSink
	selector *fakeSelector
	digests  *fakeDigests
	platform *Platform
}

func newFixture(t *testing.T, source fetch.Source) *fixture {
	t.Helper()
	f := &fixture{}
	f.sink = &countingSink{ev: &f.ev}
	f.selector = &fakeSelector{ev: &f.ev, sink: f.sink}
	f.digests = &fakeDigests{ev: &f.ev}

	p, err := New(config.PlatformConfig{ChunkSize: 16, Logger: log.New(io.Discard, "", 0)}, Deps{
		Components: &fakeComponents{typ: suit.ComponentTypeMem},
		Selector:   f.selector,
		Source:     source,
		Digests:    f.digests,
	})
	require.NoError(t, err)
	f.platform = p
	return f
}

func TestFetch_Success(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5)
	f := newFixture(t, staticSource(payload))

	require.NoError(t, f.platform.Fetch(context.Background(), 1, testURI))
	assert.Equal(t, payload, f.sink.data.Bytes())
	assert.Equal(t, 1, f.sink.erases)
	assert.Equal(t, 1, f.sink.releases)
	assert.Equal(t, []bool{true}, f.selector.writeEnabled)

	// digest invalidated before the sink is selected; erase precedes writes
	require.GreaterOrEqual(t, len(f.ev), 4)
	assert.Equal(t, []string{"digest", "select", "erase", "write"}, []string(f.ev[:4]))
	assert.Equal(t, "release", f.ev[len(f.ev)-1])
}

func TestFetchIntegrated_Chunks(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5}, 40)
	f := newFixture(t, nil)

	require.NoError(t, f.platform.FetchIntegrated(context.Background(), 1, payload))
	assert.Equal(t, payload, f.sink.data.Bytes())
	writes := 0
	for _, e := range f.ev {
		if e == "write" {
			writes++
		}
	}
	// chunk size 16
	assert.Equal(t, 3, writes)
	assert.Equal(t, 1, f.sink.releases)
}

func TestCheckFetch_DoesNotTouchDestination(t *testing.T) {
	f := newFixture(t, staticSource([]byte("payload")))

	require.NoError(t, f.platform.CheckFetch(context.Background(), 1, testURI))
	require.NoError(t, f.platform.CheckFetchIntegrated(context.Background(), 1, []byte("payload")))

	assert.Equal(t, []string{"select", "release", "select", "release"}, []string(f.ev))
	assert.Equal(t, []bool{false, false}, f.selector.writeEnabled)
	assert.Zero(t, f.sink.erases)
	assert.Zero(t, f.sink.data.Len())
}

func TestFetch_ReleaseOnFailure(t *testing.T) {
	payload := []byte("payload")

	cases := []struct {
		name     string
		setup    func(f *fixture)
		kind     error
		releases int
	}{
		{
			name: "selection",
			setup: func(f *fixture) {
				f.selector.err = fmt.Errorf("%w: no sink", domain.ErrUnsupported)
			},
			kind:     domain.ErrUnsupported,
			releases: 0,
		},
		{
			name: "digest cache",
			setup: func(f *fixture) {
				f.digests.err = errors.New("digest cache down")
			},
			kind:     domain.ErrIO,
			releases: 0,
		},
		{
			name: "erase",
			setup: func(f *fixture) {
				f.sink.eraseErr = sink.ErrIO
			},
			kind:     domain.ErrIO,
			releases: 1,
		},
		{
			name: "stream",
			setup: func(f *fixture) {
				f.sink.writeErr = fmt.Errorf("%w: full", sink.ErrNoSpace)
			},
			kind:     domain.ErrSize,
			releases: 1,
		},
		{
			name: "stream and release",
			setup: func(f *fixture) {
				f.sink.writeErr = sink.ErrIO
				f.sink.releaseErr = sink.ErrInvalidArgument
			},
			kind:     domain.ErrIO,
			releases: 1,
		},
		{
			name: "release",
			setup: func(f *fixture) {
				f.sink.releaseErr = sink.ErrInvalidArgument
			},
			kind:     domain.ErrInvalidArgument,
			releases: 1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for _, integrated := range []bool{false, true} {
				f := newFixture(t, staticSource(payload))
				c.setup(f)

				var err error
				if integrated {
					err = f.platform.FetchIntegrated(context.Background(), 1, payload)
				} else {
					err = f.platform.Fetch(context.Background(), 1, testURI)
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, c.kind)
				assert.Equal(t, c.releases, f.sink.releases)
			}
		})
	}
}

func TestFetch_UnknownURI(t *testing.T) {
	f := newFixture(t, staticSource([]byte("payload")))

	err := f.platform.Fetch(context.Background(), 1, "https://example.com/other.bin")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, f.sink.releases)
}

func TestFetch_InvalidArguments(t *testing.T) {
	f := newFixture(t, staticSource([]byte("payload")))
	ctx := context.Background()

	assert.ErrorIs(t, f.platform.Fetch(ctx, 1, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, f.platform.CheckFetch(ctx, 1, ""), domain.ErrInvalidArgument)
	assert.ErrorIs(t, f.platform.FetchIntegrated(ctx, 1, nil), domain.ErrInvalidArgument)
	assert.ErrorIs(t, f.platform.CheckFetchIntegrated(ctx, 1, nil), domain.ErrInvalidArgument)
	assert.Empty(t, f.ev)
}

func TestFetch_TypeResolutionFailure(t *testing.T) {
	f := newFixture(t, staticSource([]byte("payload")))
	f.platform.components = &fakeComponents{err: errors.New("no such handle")}

	err := f.platform.Fetch(context.Background(), 1, testURI)
	assert.ErrorIs(t, err, domain.ErrIO)
	assert.Empty(t, f.ev)
}

func TestFetch_DigestCacheDisabled(t *testing.T) {
	var ev events
	s := &countingSink{ev: &ev}
	p, err := New(config.PlatformConfig{DisableDigestCache: true, Logger: log.New(io.Discard, "", 0)}, Deps{
		Components: &fakeComponents{typ: suit.ComponentTypeMem},
		Selector:   &fakeSelector{ev: &ev, sink: s},
		Source:     staticSource([]byte("payload")),
		Digests:    &fakeDigests{ev: &ev},
	})
	require.NoError(t, err)

	require.NoError(t, p.Fetch(context.Background(), 1, testURI))
	assert.NotContains(t, ev, "digest")
}
