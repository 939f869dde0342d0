/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package nvm defines the non-volatile memory contract used by the SUIT
// storage engine and the flash sinks, together with a RAM flash emulator and
// a file-backed device.
package nvm

import (
	"errors"
	"fmt"
	"io"
)

// ErasedValue is the content of every byte after an erase.
const ErasedValue = 0xFF

var (
	ErrNotReady   = errors.New("nvm: device not ready")
	ErrOutOfRange = errors.New("nvm: access out of range")
	ErrMisaligned = errors.New("nvm: misaligned access")
	ErrIO         = errors.New("nvm: i/o failure")
)

// Device is the flash controller contract. A single Write is expected to be
// atomic at write-block granularity.
type Device interface {
	Ready() bool
	Size() uint64
	EraseBlockSize() uint64
	WriteBlockSize() uint64
	Read(off uint64, buf []byte) error
	Write(off uint64, buf []byte) error
	Erase(off, size uint64) error
}

// AlignDown rounds v down to a multiple of block.
func AlignDown(v, block uint64) uint64 {
	if block <= 1 {
		return v
	}
	return v - v%block
}

// AlignUp rounds v up to a multiple of block.
func AlignUp(v, block uint64) uint64 {
	if block <= 1 {
		return v
	}
	return AlignDown(v+block-1, block)
}

// CheckRange validates an access against the geometry of dev.
func CheckRange(dev Device, off, size, align uint64) error {
	if !dev.Ready() {
		return ErrNotReady
	}
	if off > dev.Size() || size > dev.Size()-off {
		return fmt.Errorf("%w: [0x%x, +0x%x) on device of 0x%x bytes", ErrOutOfRange, off, size, dev.Size())
	}
	if align > 1 && (off%align != 0 || size%align != 0) {
		return fmt.Errorf("%w: [0x%x, +0x%x) with block size 0x%x", ErrMisaligned, off, size, align)
	}
	return nil
}

// WriteUnaligned programs data at off, reading back the partial write blocks
// at either end so that the device only ever sees aligned writes. Bytes around
// data are rewritten with their current content.
func WriteUnaligned(dev Device, off uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	wbs := dev.WriteBlockSize()
	end := off + uint64(len(data))
	start, alignedEnd := AlignDown(off, wbs), AlignUp(end, wbs)
	if start == off && alignedEnd == end {
		return dev.Write(off, data)
	}

	buf := make([]byte, alignedEnd-start)
	if err := dev.Read(start, buf); err != nil {
		return err
	}
	copy(buf[off-start:], data)
	return dev.Write(start, buf)
}

// EraseUnaligned erases [off, off+size). The erase blocks at either end are
// erased whole and the bytes outside the range are programmed back.
func EraseUnaligned(dev Device, off, size uint64) error {
	if size == 0 {
		return nil
	}
	ebs := dev.EraseBlockSize()
	end := off + size
	start, alignedEnd := AlignDown(off, ebs), AlignUp(end, ebs)
	if alignedEnd > dev.Size() {
		return fmt.Errorf("%w: [0x%x, +0x%x) on device of 0x%x bytes", ErrOutOfRange, off, size, dev.Size())
	}

	head := make([]byte, off-start)
	tail := make([]byte, alignedEnd-end)
	if err := dev.Read(start, head); err != nil {
		return err
	}
	if err := dev.Read(end, tail); err != nil {
		return err
	}
	if err := dev.Erase(start, alignedEnd-start); err != nil {
		return err
	}
	if err := writeIfProgrammed(dev, start, head); err != nil {
		return err
	}
	return writeIfProgrammed(dev, end, tail)
}

func writeIfProgrammed(dev Device, off uint64, data []byte) error {
	for _, b := range data {
		if b != ErasedValue {
			return WriteUnaligned(dev, off, data)
		}
	}
	return nil
}

// IsErased reports whether every byte of [off, off+size) reads as erased.
func IsErased(dev Device, off, size uint64) (bool, error) {
	const chunk = 256
	buf := make([]byte, chunk)
	for size > 0 {
		n := min(size, chunk)
		if err := dev.Read(off, buf[:n]); err != nil {
			return false, err
		}
		for _, b := range buf[:n] {
			if b != ErasedValue {
				return false, nil
			}
		}
		off += n
		size -= n
	}
	return true, nil
}

type readerAt struct {
	dev Device
}

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	size := r.dev.Size()
	if off < 0 || uint64(off) >= size {
		return 0, io.EOF
	}
	n := min(uint64(len(p)), size-uint64(off))
	if err := r.dev.Read(uint64(off), p[:n]); err != nil {
		return 0, err
	}
	if n < uint64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// NewSectionReader reads [off, off+size) of dev.
func NewSectionReader(dev Device, off, size uint64) *io.SectionReader {
	return io.NewSectionReader(readerAt{dev: dev}, int64(off), int64(size))
}
