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
	"github.com/kentakayama/suit-storage/internal/domain/model"
)

// UpdateCandidate returns the staged update candidate. The first region holds
// the envelope, the others are DFU cache partitions.
func (s *Storage) UpdateCandidate() ([]model.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regions, err := s.updateCandidate()
	return regions, s.done("update_candidate_get", err)
}

func (s *Storage) updateCandidate() ([]model.Region, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	recs, err := s.layout.candidate.read()
	if err != nil {
		return nil, err
	}
	cur := current(recs)
	if cur < 0 {
		return nil, fmt.Errorf("%w: no update candidate", domain.ErrNotFound)
	}

	// A descriptor that does not decode has no valid region count.
	var regions []model.Region
	if err := cbor.Unmarshal(recs[cur].payload, &regions); err != nil {
		return nil, fmt.Errorf("%w: update candidate descriptor: %w", domain.ErrSize, err)
	}
	if len(regions) == 0 || len(regions) > s.cfg.UpdateCandidateRegions {
		return nil, fmt.Errorf("%w: update candidate of %d regions", domain.ErrSize, len(regions))
	}
	return regions, nil
}

// SetUpdateCandidate stages regions as the update candidate.
func (s *Storage) SetUpdateCandidate(regions []model.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("update_candidate_set", s.setUpdateCandidate(regions))
}

func (s *Storage) setUpdateCandidate(regions []model.Region) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(regions) == 0 {
		return fmt.Errorf("%w: no regions", domain.ErrInvalidArgument)
	}
	if len(regions) > s.cfg.UpdateCandidateRegions {
		return fmt.Errorf("%w: %d regions, at most %d supported", domain.ErrSize, len(regions), s.cfg.UpdateCandidateRegions)
	}

	area := s.cfg.DFUArea
	if area.Size == 0 {
		area = model.Region{Size: s.dev.Size()}
	}
	for _, r := range regions {
		if r.Size == 0 {
			return fmt.Errorf("%w: empty region at 0x%x", domain.ErrInvalidArgument, r.Address)
		}
		if !area.Contains(r) {
			return fmt.Errorf("%w: region %s outside update area %s", domain.ErrSize, r, area)
		}
		if r.Overlaps(s.layout.partition) {
			return fmt.Errorf("%w: region %s overlaps the storage partition", domain.ErrInvalidArgument, r)
		}
	}

	payload, err := cbor.Marshal(regions)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	recs, err := s.layout.candidate.read()
	if err != nil {
		return err
	}
	if _, err := s.layout.candidate.replace(recs, [16]byte{}, payload); err != nil {
		return err
	}
	s.logger.Printf("storage: update candidate set to %v", regions)
	return nil
}

// ClearUpdateCandidate drops the staged update candidate.
func (s *Storage) ClearUpdateCandidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("update_candidate_clear", s.clearUpdateCandidate())
}

func (s *Storage) clearUpdateCandidate() error {
	if err := s.ready(); err != nil {
		return err
	}
	recs, err := s.layout.candidate.read()
	if err != nil {
		return err
	}
	return s.layout.candidate.clear(recs)
}
