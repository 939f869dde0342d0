/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package storage persists the state of the SUIT processor in one NVM
// partition: the update candidate, the installed envelopes keyed by manifest
// class ID, the non-volatile variables and the reports.
//
// Every record is written next to the previous one and committed by a
// trailer, so a power loss never leaves a reader with a torn record.
package storage

import (
	"fmt"
	"log"
	"sync"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/metric"
	"github.com/kentakayama/suit-storage/internal/nvm"
)

type Storage struct {
	mu      sync.Mutex
	dev     nvm.Device
	cfg     config.StorageConfig
	logger  *log.Logger
	metrics *metric.Metrics
	layout  *layout
}

// New creates an engine over dev. Init must be called before any other
// operation. metrics may be nil.
func New(dev nvm.Device, cfg config.StorageConfig, metrics *metric.Metrics) *Storage {
	cfg = cfg.WithDefaults()
	return &Storage{
		dev:     dev,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: metrics,
	}
}

func (s *Storage) done(op string, err error) error {
	err = domain.Translate(err)
	s.metrics.ObserveStorage(op, err)
	return err
}

// ready checks the preconditions shared by every operation.
func (s *Storage) ready() error {
	if s.layout == nil {
		return fmt.Errorf("%w: storage not initialized", domain.ErrIncorrectState)
	}
	if !s.dev.Ready() {
		return fmt.Errorf("%w: nvm controller", domain.ErrHWNotReady)
	}
	return nil
}

// Init computes the partition layout and reports damaged records left by an
// interrupted write. Damaged records are not repaired here; see
// RecoverInterrupted.
func (s *Storage) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("init", s.init())
}

func (s *Storage) init() error {
	if s.dev == nil {
		return fmt.Errorf("%w: no nvm device", domain.ErrInvalidArgument)
	}
	if !s.dev.Ready() {
		return fmt.Errorf("%w: nvm controller", domain.ErrHWNotReady)
	}
	l, err := newLayout(s.dev, s.cfg)
	if err != nil {
		return err
	}

	counts := make(map[bankState]int)
	for _, nb := range l.banks() {
		rec, err := nb.bank.read()
		if err != nil {
			return err
		}
		counts[rec.state]++
		if rec.state.damaged() {
			s.logger.Printf("storage: %s at %s is %s", nb.name, nb.bank.region, rec.state)
		}
	}
	s.layout = l

	slots, err := s.readSlots()
	if err != nil {
		return err
	}
	for _, dup := range duplicates(slots) {
		s.logger.Printf("storage: class %s is installed in more than one slot", dup)
	}

	s.logger.Printf("storage: partition %s, %d valid, %d interrupted, %d corrupted banks",
		l.partition, counts[bankValid], counts[bankInterrupted], counts[bankCorrupted])
	return nil
}

// Partition returns the region used by the storage, zero before Init.
func (s *Storage) Partition() model.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout == nil {
		return model.Region{}
	}
	return s.layout.partition
}

// RecoverInterrupted erases every interrupted or corrupted bank, and the
// older slot of a class installed more than once. It returns the number of
// erased banks.
func (s *Storage) RecoverInterrupted() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.recover()
	return n, s.done("recover", err)
}

func (s *Storage) recover() (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	erased := 0
	for _, nb := range s.layout.banks() {
		rec, err := nb.bank.read()
		if err != nil {
			return erased, err
		}
		if !rec.state.damaged() {
			continue
		}
		if err := nb.bank.erase(); err != nil {
			return erased, err
		}
		s.logger.Printf("storage: erased %s %s", rec.state, nb.name)
		erased++
	}

	slots, err := s.readSlots()
	if err != nil {
		return erased, err
	}
	for _, dup := range duplicates(slots) {
		newest := newestSlot(slots, dup)
		for i := range slots {
			if i == newest || !slots[i].claims(dup) {
				continue
			}
			for j, b := range s.layout.envelopes[i] {
				if slots[i].recs[j].state == bankErased {
					continue
				}
				if err := b.erase(); err != nil {
					return erased, err
				}
				erased++
			}
			s.logger.Printf("storage: erased duplicate of class %s in envelope slot %d", dup, i)
		}
	}
	return erased, nil
}
