/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package storage

import (
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/suit"
	"github.com/kentakayama/suit-storage/internal/util"
)

// envelopeRecord is the payload of an envelope bank. The envelope is the
// last item so that it ends where the record payload ends.
type envelopeRecord struct {
	_              struct{} `cbor:",toarray"`
	SequenceNumber uint64
	Envelope       []byte
}

// slot is the content of one envelope slot.
type slot struct {
	recs [2]record
}

func (s slot) empty() bool {
	return s.recs[0].state == bankErased && s.recs[1].state == bankErased
}

func (s slot) damaged() bool {
	return s.recs[0].state.damaged() || s.recs[1].state.damaged()
}

// claims reports whether any readable header of the slot names id.
func (s slot) claims(id uuid.UUID) bool {
	for _, rec := range s.recs {
		if rec.keyKnown && uuid.UUID(rec.header.Key) == id {
			return true
		}
	}
	return false
}

// classes returns the class IDs of the valid records of the slot.
func (s slot) classes() util.Set[uuid.UUID] {
	ids := util.NewSet[uuid.UUID]()
	for _, rec := range s.recs {
		if rec.state == bankValid {
			ids.Add(uuid.UUID(rec.header.Key))
		}
	}
	return ids
}

// current returns the bank of the newest valid record of id, -1 when none.
func (s slot) current(id uuid.UUID) int {
	idx := -1
	for i, rec := range s.recs {
		if rec.state != bankValid || uuid.UUID(rec.header.Key) != id {
			continue
		}
		if idx < 0 || rec.header.Generation > s.recs[idx].header.Generation {
			idx = i
		}
	}
	return idx
}

func (s *Storage) readSlots() ([]slot, error) {
	slots := make([]slot, len(s.layout.envelopes))
	for i, p := range s.layout.envelopes {
		recs, err := p.read()
		if err != nil {
			return nil, err
		}
		slots[i] = slot{recs: recs}
	}
	return slots, nil
}

func sortedIDs(ids util.Set[uuid.UUID]) []uuid.UUID {
	out := ids.Values()
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return out
}

// duplicates returns the class IDs with valid records in more than one slot.
func duplicates(slots []slot) []uuid.UUID {
	seen := util.NewSet[uuid.UUID]()
	dups := util.NewSet[uuid.UUID]()
	for _, sl := range slots {
		for id := range sl.classes() {
			if seen.Has(id) {
				dups.Add(id)
			}
			seen.Add(id)
		}
	}
	return sortedIDs(dups)
}

// newestSlot returns the slot holding the newest valid record of id, -1 when
// none.
func newestSlot(slots []slot, id uuid.UUID) int {
	idx := -1
	var generation uint32
	for i, sl := range slots {
		b := sl.current(id)
		if b < 0 {
			continue
		}
		if g := sl.recs[b].header.Generation; idx < 0 || g > generation {
			idx, generation = i, g
		}
	}
	return idx
}

// InstallEnvelope stores envelope as the installed envelope of classID.
// Integrated payloads and severable members are removed first. The record is
// written next to the previous envelope of the class, which stays readable
// until the new one is committed.
//
// A slot left damaged by an interrupted install makes the call fail with
// domain.ErrIncorrectState until RecoverInterrupted is run. The class of a
// torn record cannot be trusted, so damage in any slot blocks every class.
func (s *Storage) InstallEnvelope(classID uuid.UUID, envelope []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done("install_envelope", s.installEnvelope(classID, envelope))
}

func (s *Storage) installEnvelope(classID uuid.UUID, envelope []byte) error {
	if err := s.ready(); err != nil {
		return err
	}
	if classID == uuid.Nil {
		return fmt.Errorf("%w: nil class id", domain.ErrInvalidArgument)
	}
	if len(envelope) == 0 {
		return fmt.Errorf("%w: empty envelope", domain.ErrInvalidArgument)
	}

	env, err := suit.ParseEnvelope(envelope)
	if err != nil {
		return err
	}
	if err := env.CheckManifestDigest(); err != nil {
		return err
	}
	seq, err := env.SequenceNumber()
	if err != nil {
		return err
	}
	stripped, err := env.Stripped()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCBORDecoding, err)
	}
	payload, err := cbor.Marshal(envelopeRecord{SequenceNumber: seq, Envelope: stripped})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCBORDecoding, err)
	}

	slots, err := s.readSlots()
	if err != nil {
		return err
	}
	target := -1
	for i, sl := range slots {
		if sl.damaged() {
			return fmt.Errorf("%w: install into envelope slot %d was interrupted", domain.ErrIncorrectState, i)
		}
		if !sl.claims(classID) {
			continue
		}
		if target >= 0 {
			return fmt.Errorf("%w: class %s is installed in slots %d and %d", domain.ErrIncorrectState, classID, target, i)
		}
		target = i
	}

	if target >= 0 {
		if others := slots[target].classes(); len(others) > 1 {
			return fmt.Errorf("%w: slot %d is shared by %d classes", domain.ErrIncorrectState, target, len(others))
		}
	} else {
		for i, sl := range slots {
			if sl.empty() {
				target = i
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("%w: no free envelope slot for class %s", domain.ErrSize, classID)
		}
	}

	generation, err := s.layout.envelopes[target].replace(slots[target].recs, classID, payload)
	if err != nil {
		return err
	}
	s.logger.Printf("storage: installed class %s sequence %d (%d of %d bytes kept) in slot %d, generation %d",
		classID, seq, len(stripped), len(envelope), target, generation)
	return nil
}

// InstalledEnvelope returns the newest installed envelope of classID.
func (s *Storage) InstalledEnvelope(classID uuid.UUID) (*model.InstalledEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ie, err := s.installedEnvelope(classID)
	return ie, s.done("installed_envelope", err)
}

func (s *Storage) installedEnvelope(classID uuid.UUID) (*model.InstalledEnvelope, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	slots, err := s.readSlots()
	if err != nil {
		return nil, err
	}
	idx := newestSlot(slots, classID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: class %s", domain.ErrNotFound, classID)
	}
	bankIdx := slots[idx].current(classID)
	rec := slots[idx].recs[bankIdx]

	var er envelopeRecord
	if err := cbor.Unmarshal(rec.payload, &er); err != nil {
		return nil, fmt.Errorf("%w: envelope record of class %s: %w", domain.ErrCBORDecoding, classID, err)
	}
	if len(er.Envelope) == 0 {
		return nil, fmt.Errorf("%w: envelope record of class %s is empty", domain.ErrCBORDecoding, classID)
	}

	b := s.layout.envelopes[idx][bankIdx]
	return &model.InstalledEnvelope{
		ClassID:        classID,
		SequenceNumber: er.SequenceNumber,
		Generation:     rec.header.Generation,
		Region: model.Region{
			Address: b.region.Address + b.payloadOffset() + uint64(len(rec.payload)-len(er.Envelope)),
			Size:    uint64(len(er.Envelope)),
		},
		Envelope: er.Envelope,
	}, nil
}

// InstalledClassIDs lists the classes with an installed envelope.
func (s *Storage) InstalledClassIDs() ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.installedClassIDs()
	return ids, s.done("installed_class_ids", err)
}

func (s *Storage) installedClassIDs() ([]uuid.UUID, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	slots, err := s.readSlots()
	if err != nil {
		return nil, err
	}
	ids := util.NewSet[uuid.UUID]()
	for _, sl := range slots {
		for id := range sl.classes() {
			ids.Add(id)
		}
	}
	return sortedIDs(ids), nil
}
