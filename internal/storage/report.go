/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package storage

import (
	"fmt"

	"github.com/kentakayama/suit-storage/internal/domain"
)

func (s *Storage) reportBank(index int) (bank, error) {
	if index < 0 || index >= len(s.layout.reports) {
		return bank{}, fmt.Errorf("%w: report %d, %d slots", domain.ErrOutOfBounds, index, len(s.layout.reports))
	}
	return s.layout.reports[index], nil
}

// ClearReport erases the report at index.
func (s *Storage) ClearReport(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("report_clear", s.clearReport(index))
}

func (s *Storage) clearReport(index int) error {
	if err := s.ready(); err != nil {
		return err
	}
	b, err := s.reportBank(index)
	if err != nil {
		return err
	}
	return b.erase()
}

// SaveReport replaces the report at index with buf.
func (s *Storage) SaveReport(index int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("report_save", s.saveReport(index, buf))
}

func (s *Storage) saveReport(index int, buf []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	b, err := s.reportBank(index)
	if err != nil {
		return err
	}
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty report", domain.ErrInvalidArgument)
	}
	if uint64(len(buf)) > s.cfg.ReportCapacity {
		return fmt.Errorf("%w: report of %d bytes, capacity %d", domain.ErrSize, len(buf), s.cfg.ReportCapacity)
	}
	if err := b.erase(); err != nil {
		return err
	}
	return b.program(1, [16]byte{}, buf)
}

// Report returns the report saved at index.
func (s *Storage) Report(index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, err := s.report(index)
	return buf, s.done("report_read", err)
}

func (s *Storage) report(index int) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	b, err := s.reportBank(index)
	if err != nil {
		return nil, err
	}
	rec, err := b.read()
	if err != nil {
		return nil, err
	}
	if rec.state != bankValid {
		return nil, fmt.Errorf("%w: report %d is %s", domain.ErrNotFound, index, rec.state)
	}
	return rec.payload, nil
}
