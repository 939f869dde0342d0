/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package nvm

import (
	"fmt"
	"sync"
)

// Memory emulates a NOR flash in RAM. Programming clears bits only, as real
// flash does, so rewriting a byte with its current value is harmless.
//
// The fault hooks let tests simulate a power loss in the middle of a write,
// a failing erase, or a controller that never comes up.
type Memory struct {
	mu         sync.Mutex
	data       []byte
	eraseBlock uint64
	writeBlock uint64

	notReady  bool
	failErase bool
	powerCut  bool
	budget    int // bytes left before the power cut, -1 when disarmed
}

// NewMemory creates an erased device of the given geometry.
func NewMemory(size, eraseBlock, writeBlock uint64) *Memory {
	if eraseBlock == 0 {
		eraseBlock = 1
	}
	if writeBlock == 0 {
		writeBlock = 1
	}
	m := &Memory{
		data:       make([]byte, size),
		eraseBlock: eraseBlock,
		writeBlock: writeBlock,
		budget:     -1,
	}
	for i := range m.data {
		m.data[i] = ErasedValue
	}
	return m
}

var _ Device = (*Memory)(nil)

func (m *Memory) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.notReady
}

func (m *Memory) Size() uint64           { return uint64(len(m.data)) }
func (m *Memory) EraseBlockSize() uint64 { return m.eraseBlock }
func (m *Memory) WriteBlockSize() uint64 { return m.writeBlock }

func (m *Memory) Read(off uint64, buf []byte) error {
	if err := CheckRange(m, off, uint64(len(buf)), 0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(buf, m.data[off:])
	return nil
}

func (m *Memory) Write(off uint64, buf []byte) error {
	if err := CheckRange(m, off, uint64(len(buf)), m.writeBlock); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.powerCut {
		return fmt.Errorf("%w: power lost", ErrIO)
	}

	n := len(buf)
	if m.budget >= 0 && n > m.budget {
		n = m.budget
		m.powerCut = true
	}
	for i := 0; i < n; i++ {
		m.data[off+uint64(i)] &= buf[i]
	}
	if m.budget >= 0 {
		m.budget -= n
	}
	if m.powerCut {
		return fmt.Errorf("%w: power lost after %d bytes", ErrIO, n)
	}
	return nil
}

func (m *Memory) Erase(off, size uint64) error {
	if err := CheckRange(m, off, size, m.eraseBlock); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.powerCut {
		return fmt.Errorf("%w: power lost", ErrIO)
	}
	if m.failErase {
		return fmt.Errorf("%w: erase failed at 0x%x", ErrIO, off)
	}
	for i := off; i < off+size; i++ {
		m.data[i] = ErasedValue
	}
	return nil
}

// PowerCut arms a power loss: after n more bytes have been programmed the
// write in flight is truncated and every later write or erase fails until
// PowerOn is called.
func (m *Memory) PowerCut(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget = n
}

// PowerOn restores a device after PowerCut. Programmed content is kept.
func (m *Memory) PowerOn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerCut = false
	m.budget = -1
}

// FailErase makes every erase fail while set.
func (m *Memory) FailErase(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErase = fail
}

// SetReady switches the controller on or off.
func (m *Memory) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notReady = !ready
}

// Bytes returns a copy of the device content.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
