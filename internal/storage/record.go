/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/nvm"
)

// A bank holds at most one record:
//
//	header  | magic "SUIT" | generation u32 | length u32 | key [16]byte |
//	payload | length bytes                                              |
//	trailer | xxhash64(payload) u64 | "COMMITED"                        |
//
// Each part starts on a write block boundary and is programmed in that order,
// so a record whose trailer reads back intact was written completely.
const (
	recordMagic  = "SUIT"
	commitMarker = "COMMITED"
	headerLen    = 4 + 4 + 4 + 16
	trailerLen   = 8 + 8
)

type bankState int

const (
	bankErased bankState = iota
	bankInterrupted
	bankCorrupted
	bankValid
)

func (s bankState) String() string {
	switch s {
	case bankErased:
		return "erased"
	case bankInterrupted:
		return "interrupted"
	case bankCorrupted:
		return "corrupted"
	case bankValid:
		return "valid"
	}
	return fmt.Sprintf("bankState(%d)", int(s))
}

// damaged banks block writers until they are recovered.
func (s bankState) damaged() bool {
	return s == bankInterrupted || s == bankCorrupted
}

type recordHeader struct {
	Generation uint32
	Length     uint32
	Key        [16]byte
}

func (h recordHeader) marshal() []byte {
	buf := make([]byte, 0, headerLen)
	buf = append(buf, recordMagic...)
	buf = binary.BigEndian.AppendUint32(buf, h.Generation)
	buf = binary.BigEndian.AppendUint32(buf, h.Length)
	return append(buf, h.Key[:]...)
}

type record struct {
	state bankState
	// keyKnown is set when the header could be parsed, even if the record
	// itself is damaged.
	keyKnown bool
	header   recordHeader
	payload  []byte
}

// bank is one erase block aligned area of the storage partition.
type bank struct {
	dev    nvm.Device
	region model.Region
}

func (b bank) payloadOffset() uint64 {
	return nvm.AlignUp(headerLen, b.dev.WriteBlockSize())
}

func (b bank) trailerOffset(n uint64) uint64 {
	return nvm.AlignUp(b.payloadOffset()+n, b.dev.WriteBlockSize())
}

// capacity is the largest payload the bank can hold.
func (b bank) capacity() uint64 {
	overhead := b.payloadOffset() + nvm.AlignUp(trailerLen, b.dev.WriteBlockSize())
	if b.region.Size < overhead {
		return 0
	}
	return b.region.Size - overhead
}

func (b bank) read() (record, error) {
	var rec record

	hdr := make([]byte, headerLen)
	if err := b.dev.Read(b.region.Address, hdr); err != nil {
		return rec, err
	}
	if isErased(hdr) {
		rec.state = bankErased
		return rec, nil
	}
	if string(hdr[:4]) != recordMagic {
		rec.state = bankCorrupted
		return rec, nil
	}
	rec.header = recordHeader{
		Generation: binary.BigEndian.Uint32(hdr[4:]),
		Length:     binary.BigEndian.Uint32(hdr[8:]),
	}
	copy(rec.header.Key[:], hdr[12:])
	rec.keyKnown = true

	n := uint64(rec.header.Length)
	if n > b.capacity() {
		rec.state = bankCorrupted
		return rec, nil
	}

	trailer := make([]byte, trailerLen)
	if err := b.dev.Read(b.region.Address+b.trailerOffset(n), trailer); err != nil {
		return rec, err
	}
	if string(trailer[8:]) != commitMarker {
		rec.state = bankInterrupted
		return rec, nil
	}

	payload := make([]byte, n)
	if err := b.dev.Read(b.region.Address+b.payloadOffset(), payload); err != nil {
		return rec, err
	}
	if xxhash.Sum64(payload) != binary.BigEndian.Uint64(trailer) {
		rec.state = bankCorrupted
		return rec, nil
	}
	rec.state = bankValid
	rec.payload = payload
	return rec, nil
}

func isErased(buf []byte) bool {
	for _, c := range buf {
		if c != nvm.ErasedValue {
			return false
		}
	}
	return true
}

func (b bank) erase() error {
	return b.dev.Erase(b.region.Address, b.region.Size)
}

// program writes a record into an erased bank. The payload is read back and
// compared before the trailer commits it.
func (b bank) program(generation uint32, key [16]byte, payload []byte) error {
	n := uint64(len(payload))
	if n > b.capacity() {
		return fmt.Errorf("%w: record of %d bytes, bank holds %d", domain.ErrSize, n, b.capacity())
	}

	hdr := recordHeader{Generation: generation, Length: uint32(n), Key: key}
	if err := b.write(0, hdr.marshal()); err != nil {
		return err
	}
	if err := b.write(b.payloadOffset(), payload); err != nil {
		return err
	}

	readBack := make([]byte, n)
	if err := b.dev.Read(b.region.Address+b.payloadOffset(), readBack); err != nil {
		return err
	}
	if !bytes.Equal(readBack, payload) {
		return fmt.Errorf("%w: verification of bank %s failed", domain.ErrIO, b.region)
	}

	trailer := binary.BigEndian.AppendUint64(make([]byte, 0, trailerLen), xxhash.Sum64(payload))
	trailer = append(trailer, commitMarker...)
	return b.write(b.trailerOffset(n), trailer)
}

// write programs data at a write block aligned offset of the bank, padding
// the last block with the erased value.
func (b bank) write(off uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	padded := nvm.AlignUp(uint64(len(data)), b.dev.WriteBlockSize())
	buf := bytes.Repeat([]byte{nvm.ErasedValue}, int(padded))
	copy(buf, data)
	return b.dev.Write(b.region.Address+off, buf)
}

// pair is a ping-pong couple of banks. The valid record with the highest
// generation is current; writes go to the other bank.
type pair [2]bank

func (p pair) read() ([2]record, error) {
	var recs [2]record
	for i, b := range p {
		rec, err := b.read()
		if err != nil {
			return recs, err
		}
		recs[i] = rec
	}
	return recs, nil
}

// current returns the index of the newest valid record, -1 when none.
func current(recs [2]record) int {
	idx := -1
	for i, rec := range recs {
		if rec.state != bankValid {
			continue
		}
		if idx < 0 || rec.header.Generation > recs[idx].header.Generation {
			idx = i
		}
	}
	return idx
}

// replace writes payload into the bank that does not hold the current
// record, leaving the current record intact until the new one is committed.
func (p pair) replace(recs [2]record, key [16]byte, payload []byte) (uint32, error) {
	target, generation := 0, uint32(1)
	if cur := current(recs); cur >= 0 {
		target = 1 - cur
		generation = recs[cur].header.Generation + 1
	}
	if n := uint64(len(payload)); n > p[target].capacity() {
		return 0, fmt.Errorf("%w: record of %d bytes, bank holds %d", domain.ErrSize, n, p[target].capacity())
	}
	if err := p[target].erase(); err != nil {
		return 0, err
	}
	if err := p[target].program(generation, key, payload); err != nil {
		return 0, err
	}
	return generation, nil
}

// clear erases the older bank first so that an interrupted clear never
// resurrects a stale record.
func (p pair) clear(recs [2]record) error {
	order := []int{0, 1}
	if cur := current(recs); cur == 0 {
		order = []int{1, 0}
	}
	for _, i := range order {
		if recs[i].state == bankErased {
			continue
		}
		if err := p[i].erase(); err != nil {
			return err
		}
	}
	return nil
}
