/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/suit"
)

func encode(t *testing.T, typ suit.ComponentType, numbers ...uint64) []byte {
	t.Helper()
	id, err := suit.NewComponentID(typ, numbers...)
	require.NoError(t, err)
	raw, err := id.Encode()
	require.NoError(t, err)
	return raw
}

func TestRegistry_CreateRelease(t *testing.T) {
	r := NewRegistry(2)

	h1, err := r.Create(encode(t, suit.ComponentTypeMem, 0, 0x1000, 0x100))
	require.NoError(t, err)
	h2, err := r.Create(encode(t, suit.ComponentTypeCandidateImage, 0))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, err = r.Create(encode(t, suit.ComponentTypeCachePool, 0))
	assert.ErrorIs(t, err, ErrNoSpace)

	typ, err := r.Type(h1)
	require.NoError(t, err)
	assert.Equal(t, suit.ComponentTypeMem, typ)

	id, err := r.ID(h1)
	require.NoError(t, err)
	addr, err := id.Number(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), addr)

	require.NoError(t, r.Release(h1))
	assert.ErrorIs(t, r.Release(h1), ErrInvalidHandle)
	_, err = r.Type(h1)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	h3, err := r.Create(encode(t, "UNKNOWN"))
	require.NoError(t, err)
	typ, err = r.Type(h3)
	require.NoError(t, err)
	assert.Equal(t, suit.ComponentTypeUnsupported, typ)
}

func TestRegistry_MemPtr(t *testing.T) {
	r := NewRegistry(0)
	h, err := r.Create(encode(t, suit.ComponentTypeCandidateManifest, 1))
	require.NoError(t, err)

	data, err := r.MemPtr(h)
	require.NoError(t, err)
	assert.Nil(t, data)

	payload := []byte("envelope")
	require.NoError(t, r.SetMemPtr(h, payload))
	payload[0] = 'E'
	data, err = r.MemPtr(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("envelope"), data)

	assert.ErrorIs(t, r.SetMemPtr(model.InvalidComponentHandle, payload), ErrInvalidHandle)
	_, err = r.MemPtr(model.ComponentHandle(99))
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestRegistry_CreateInvalid(t *testing.T) {
	r := NewRegistry(1)
	_, err := r.Create([]byte{0x80})
	assert.ErrorIs(t, err, suit.ErrSUITComponentIDInvalidFormat)
	_, err = r.Create([]byte{0x81, 0x41, 0x01})
	assert.ErrorIs(t, err, suit.ErrInvalidType)
}
