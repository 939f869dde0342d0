/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/suit-storage/internal/nvm"
)

func openTestNVM(t *testing.T) (*NVM, context.Context) {
	t.Helper()
	ctx := context.Background()
	db, err := InitDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })

	dev, err := OpenNVM(ctx, db, "flash0", 4096, 256, 4)
	require.NoError(t, err)
	return dev, ctx
}

func TestNVM_ErasedByDefault(t *testing.T) {
	dev, _ := openTestNVM(t)

	erased, err := nvm.IsErased(dev, 0, dev.Size())
	require.NoError(t, err)
	assert.True(t, erased)
}

func TestNVM_WriteAcrossPages(t *testing.T) {
	dev, ctx := openTestNVM(t)

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, dev.Write(240, data))

	got := make([]byte, len(data))
	require.NoError(t, dev.Read(240, got))
	assert.Equal(t, data, got)

	pages, err := dev.ProgrammedPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pages)

	// Programming clears bits only.
	require.NoError(t, dev.Write(256, []byte{0xF0, 0x0F, 0xFF, 0x00}))
	require.NoError(t, dev.Read(256, got[:4]))
	assert.Equal(t, []byte{0x10, 0x01, 0x12, 0x00}, got[:4])
}

func TestNVM_NotReadyAfterClose(t *testing.T) {
	ctx := context.Background()
	db, err := InitDB(ctx, ":memory:")
	require.NoError(t, err)
	dev, err := OpenNVM(ctx, db, "flash0", 4096, 256, 4)
	require.NoError(t, err)
	assert.True(t, dev.Ready())

	require.NoError(t, CloseDB(db))
	assert.False(t, dev.Ready())
	assert.ErrorIs(t, dev.Read(0, make([]byte, 4)), nvm.ErrNotReady)
	assert.ErrorIs(t, dev.Write(0, []byte{1, 2, 3, 4}), nvm.ErrNotReady)
}

func TestNVM_Erase(t *testing.T) {
	dev, ctx := openTestNVM(t)

	require.NoError(t, dev.Write(0, []byte{1, 2, 3, 4}))
	require.NoError(t, dev.Write(512, []byte{5, 6, 7, 8}))
	require.NoError(t, dev.Erase(0, 256))

	erased, err := nvm.IsErased(dev, 0, 256)
	require.NoError(t, err)
	assert.True(t, erased)

	pages, err := dev.ProgrammedPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pages)
}

func TestNVM_Geometry(t *testing.T) {
	dev, _ := openTestNVM(t)

	assert.ErrorIs(t, dev.Write(2, []byte{1, 2, 3, 4}), nvm.ErrMisaligned)
	assert.ErrorIs(t, dev.Erase(128, 256), nvm.ErrMisaligned)
	assert.ErrorIs(t, dev.Read(4000, make([]byte, 200)), nvm.ErrOutOfRange)
}

func TestOpenNVM_Reopen(t *testing.T) {
	ctx := context.Background()
	db, err := InitDB(ctx, ":memory:")
	require.NoError(t, err)
	defer CloseDB(db)

	dev, err := OpenNVM(ctx, db, "flash0", 4096, 256, 4)
	require.NoError(t, err)
	require.NoError(t, dev.Write(16, []byte("SUIT")))

	again, err := OpenNVM(ctx, db, "flash0", 4096, 256, 4)
	require.NoError(t, err)
	got := make([]byte, 4)
	require.NoError(t, again.Read(16, got))
	assert.Equal(t, []byte("SUIT"), got)

	_, err = OpenNVM(ctx, db, "flash0", 8192, 256, 4)
	assert.Error(t, err)

	_, err = OpenNVM(ctx, db, "flash1", 1000, 256, 4)
	assert.Error(t, err)
}
