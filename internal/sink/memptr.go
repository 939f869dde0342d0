/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sink

import "fmt"

// MemPtrSink collects a payload in RAM and hands it to its owner on release.
type MemPtrSink struct {
	window
	buf     []byte
	commit  func(data []byte) error
	aborted bool
}

var (
	_ StreamSink = (*MemPtrSink)(nil)
	_ Aborter    = (*MemPtrSink)(nil)
)

// NewMemPtrSink creates a sink of at most limit bytes. commit may be nil, in
// which case the collected bytes are dropped on release.
func NewMemPtrSink(limit uint64, commit func(data []byte) error) (*MemPtrSink, error) {
	if limit == 0 {
		return nil, fmt.Errorf("%w: zero memory limit", ErrInvalidArgument)
	}
	return &MemPtrSink{
		window: window{limit: limit},
		commit: commit,
	}, nil
}

func (s *MemPtrSink) Write(buf []byte) error {
	off, err := s.reserve(len(buf))
	if err != nil {
		return err
	}
	end := off + uint64(len(buf))
	if end > uint64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-uint64(len(s.buf)))...)
	}
	copy(s.buf[off:], buf)
	s.advance(len(buf))
	return nil
}

// Bytes returns the payload collected so far.
func (s *MemPtrSink) Bytes() []byte {
	return s.buf[:s.used]
}

// Abort keeps the owner's previous payload.
func (s *MemPtrSink) Abort() {
	s.aborted = true
}

func (s *MemPtrSink) Release() error {
	if err := s.release(); err != nil {
		return err
	}
	if s.commit == nil || s.aborted {
		return nil
	}
	return s.commit(s.Bytes())
}
