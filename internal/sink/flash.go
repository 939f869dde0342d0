/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sink

import (
	"fmt"

	"github.com/kentakayama/suit-storage/internal/nvm"
)

// FlashSink writes into the window [base, base+limit) of an NVM device.
type FlashSink struct {
	window
	dev  nvm.Device
	base uint64
}

var (
	_ StreamSink = (*FlashSink)(nil)
	_ Eraser     = (*FlashSink)(nil)
)

func NewFlashSink(dev nvm.Device, base, limit uint64) (*FlashSink, error) {
	if dev == nil || limit == 0 {
		return nil, fmt.Errorf("%w: flash window of 0x%x bytes", ErrInvalidArgument, limit)
	}
	if !dev.Ready() {
		return nil, nvm.ErrNotReady
	}
	if base > dev.Size() || limit > dev.Size()-base {
		return nil, fmt.Errorf("%w: window [0x%x, +0x%x) outside device of 0x%x bytes", ErrInvalidArgument, base, limit, dev.Size())
	}
	return &FlashSink{
		window: window{limit: limit},
		dev:    dev,
		base:   base,
	}, nil
}

func (s *FlashSink) Write(buf []byte) error {
	off, err := s.reserve(len(buf))
	if err != nil {
		return err
	}
	if err := nvm.WriteUnaligned(s.dev, s.base+off, buf); err != nil {
		return fmt.Errorf("flash sink write at 0x%x: %w", s.base+off, err)
	}
	s.advance(len(buf))
	return nil
}

// Erase erases the whole window.
func (s *FlashSink) Erase() error {
	if s.released {
		return fmt.Errorf("%w: sink released", ErrInvalidArgument)
	}
	if err := nvm.EraseUnaligned(s.dev, s.base, s.limit); err != nil {
		return fmt.Errorf("flash sink erase of [0x%x, +0x%x): %w", s.base, s.limit, err)
	}
	return nil
}

func (s *FlashSink) Release() error {
	return s.release()
}
