/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/kentakayama/suit-storage/internal/domain"
)

// vars reads the NVV table. Values never written read as zero.
func (s *Storage) vars() ([]uint32, [2]record, error) {
	table := make([]uint32, s.cfg.NVVCount)
	recs, err := s.layout.nvv.read()
	if err != nil {
		return nil, recs, err
	}
	cur := current(recs)
	if cur < 0 {
		return table, recs, nil
	}
	var stored []uint32
	if err := cbor.Unmarshal(recs[cur].payload, &stored); err != nil {
		return nil, recs, fmt.Errorf("%w: nvv table: %w", domain.ErrCBORDecoding, err)
	}
	copy(table, stored)
	return table, recs, nil
}

func (s *Storage) checkVarIndex(index int) error {
	if index < 0 || index >= s.cfg.NVVCount {
		return fmt.Errorf("%w: nvv %d, table holds %d", domain.ErrNotFound, index, s.cfg.NVVCount)
	}
	return nil
}

// Var returns the non-volatile variable at index.
func (s *Storage) Var(index int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.getVar(index)
	return v, s.done("var_get", err)
}

func (s *Storage) getVar(index int) (uint32, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if err := s.checkVarIndex(index); err != nil {
		return 0, err
	}
	table, _, err := s.vars()
	if err != nil {
		return 0, err
	}
	return table[index], nil
}

// SetVar persists value at index.
func (s *Storage) SetVar(index int, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("var_set", s.setVar(index, value))
}

func (s *Storage) setVar(index int, value uint32) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.checkVarIndex(index); err != nil {
		return err
	}
	table, recs, err := s.vars()
	if err != nil {
		return err
	}
	table[index] = value
	payload, err := cbor.Marshal(table)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	_, err = s.layout.nvv.replace(recs, [16]byte{}, payload)
	return err
}
