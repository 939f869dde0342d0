/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package nvm

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_WriteReadErase(t *testing.T) {
	m := NewMemory(0x2000, 0x1000, 4)

	require.NoError(t, m.Write(0x10, []byte{1, 2, 3, 4}))
	buf := make([]byte, 6)
	require.NoError(t, m.Read(0x10, buf))
	assert.Equal(t, []byte{1, 2, 3, 4, 0xFF, 0xFF}, buf)

	// programming only clears bits
	require.NoError(t, m.Write(0x10, []byte{0xFF, 0xFF, 0x00, 0xFF}))
	require.NoError(t, m.Read(0x10, buf[:4]))
	assert.Equal(t, []byte{1, 2, 0, 4}, buf[:4])

	require.NoError(t, m.Erase(0, 0x1000))
	erased, err := IsErased(m, 0, 0x1000)
	require.NoError(t, err)
	assert.True(t, erased)
}

func TestMemory_Geometry(t *testing.T) {
	m := NewMemory(0x2000, 0x1000, 4)

	assert.ErrorIs(t, m.Write(0x11, []byte{1, 2, 3, 4}), ErrMisaligned)
	assert.ErrorIs(t, m.Write(0x10, []byte{1, 2}), ErrMisaligned)
	assert.ErrorIs(t, m.Erase(0x800, 0x1000), ErrMisaligned)
	assert.ErrorIs(t, m.Read(0x1FFF, make([]byte, 2)), ErrOutOfRange)
	assert.ErrorIs(t, m.Erase(0x1000, 0x2000), ErrOutOfRange)

	m.SetReady(false)
	assert.ErrorIs(t, m.Read(0, make([]byte, 1)), ErrNotReady)
}

func TestMemory_PowerCut(t *testing.T) {
	m := NewMemory(0x1000, 0x1000, 1)

	m.PowerCut(3)
	err := m.Write(0, []byte{0, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, m.Write(8, []byte{0}), ErrIO)
	assert.ErrorIs(t, m.Erase(0, 0x1000), ErrIO)

	m.PowerOn()
	buf := make([]byte, 5)
	require.NoError(t, m.Read(0, buf))
	assert.Equal(t, []byte{0, 0, 0, 0xFF, 0xFF}, buf)
}

func TestWriteUnaligned(t *testing.T) {
	m := NewMemory(0x100, 0x100, 8)
	require.NoError(t, WriteUnaligned(m, 3, []byte("hello, flash")))
	require.NoError(t, WriteUnaligned(m, 15, []byte("!")))

	buf := make([]byte, 16)
	require.NoError(t, m.Read(0, buf))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, buf[:3])
	assert.Equal(t, "hello, flash!", string(buf[3:]))
}

func TestFile_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")

	d, err := OpenFile(path, 0x2000, 0x1000, 4)
	require.NoError(t, err)
	require.NoError(t, d.Write(0x1000, []byte{0xDE, 0xAD, 0xBE, 0xEF}))
	require.NoError(t, d.Close())

	d, err = OpenFile(path, 0x2000, 0x1000, 4)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, 4)
	require.NoError(t, d.Read(0x1000, buf))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf)

	require.NoError(t, d.Erase(0x1000, 0x1000))
	require.NoError(t, d.Read(0x1000, buf))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, buf)

	_, err = OpenFile(path, 0x3000, 0x1000, 4)
	assert.Error(t, err)
}

func TestEraseUnaligned(t *testing.T) {
	m := NewMemory(0x300, 0x100, 4)
	data := make([]byte, 0x300)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, m.Write(0, data))

	require.NoError(t, EraseUnaligned(m, 0x80, 0x100))

	got := m.Bytes()
	assert.Equal(t, data[:0x80], got[:0x80])
	assert.Equal(t, data[0x180:], got[0x180:])
	erased, err := IsErased(m, 0x80, 0x100)
	require.NoError(t, err)
	assert.True(t, erased)

	assert.ErrorIs(t, EraseUnaligned(m, 0x280, 0x100), ErrOutOfRange)
}

func TestNewSectionReader(t *testing.T) {
	m := NewMemory(0x100, 0x100, 1)
	require.NoError(t, m.Write(0xF0, []byte("0123456789abcdef")))

	r := NewSectionReader(m, 0xF8, 0x10)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("89abcdef"), got)
}
