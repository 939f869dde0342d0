/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package nvm

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// File keeps a flash image in a regular file. Writes and erases are synced
// before they return.
type File struct {
	f          *os.File
	size       uint64
	eraseBlock uint64
	writeBlock uint64
}

var _ Device = (*File)(nil)

// OpenFile opens the image at path, creating an erased image of the given
// size when it does not exist yet.
func OpenFile(path string, size, eraseBlock, writeBlock uint64) (*File, error) {
	if eraseBlock == 0 || writeBlock == 0 || size%eraseBlock != 0 {
		return nil, fmt.Errorf("invalid flash geometry: size 0x%x, erase 0x%x, write 0x%x", size, eraseBlock, writeBlock)
	}

	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}
	d := &File{f: f, size: size, eraseBlock: eraseBlock, writeBlock: writeBlock}

	if errors.Is(statErr, fs.ErrNotExist) {
		if err := d.fill(0, size); err != nil {
			f.Close()
			return nil, fmt.Errorf("initialize flash image: %w", err)
		}
		return d, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat flash image: %w", err)
	}
	if uint64(info.Size()) != size {
		f.Close()
		return nil, fmt.Errorf("flash image %s has %d bytes, expected %d", path, info.Size(), size)
	}
	return d, nil
}

func (d *File) Ready() bool            { return d.f != nil }
func (d *File) Size() uint64           { return d.size }
func (d *File) EraseBlockSize() uint64 { return d.eraseBlock }
func (d *File) WriteBlockSize() uint64 { return d.writeBlock }

func (d *File) Read(off uint64, buf []byte) error {
	if err := CheckRange(d, off, uint64(len(buf)), 0); err != nil {
		return err
	}
	if _, err := d.f.ReadAt(buf, int64(off)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (d *File) Write(off uint64, buf []byte) error {
	if err := CheckRange(d, off, uint64(len(buf)), d.writeBlock); err != nil {
		return err
	}
	cur := make([]byte, len(buf))
	if _, err := d.f.ReadAt(cur, int64(off)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	for i := range cur {
		cur[i] &= buf[i]
	}
	if _, err := d.f.WriteAt(cur, int64(off)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (d *File) Erase(off, size uint64) error {
	if err := CheckRange(d, off, size, d.eraseBlock); err != nil {
		return err
	}
	return d.fill(off, size)
}

func (d *File) fill(off, size uint64) error {
	block := bytes.Repeat([]byte{ErasedValue}, int(d.eraseBlock))
	for pos := off; pos < off+size; pos += d.eraseBlock {
		if _, err := d.f.WriteAt(block, int64(pos)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Close releases the image file.
func (d *File) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
