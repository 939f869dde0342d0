/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package dfucache stores fetched payloads keyed by URI in NVM partitions.
//
// A partition holds an indefinite-length CBOR map. Each entry is the URI as
// a text string followed by the payload as a byte string with a 4-byte length
// argument. The first erased byte after the last entry acts as the break.
package dfucache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/nvm"
)

var (
	ErrInvalidArgument = errors.New("dfucache: invalid argument")
	ErrNotFound        = errors.New("dfucache: uri not found")
	ErrExists          = errors.New("dfucache: uri already cached")
	ErrNoSpace         = errors.New("dfucache: no space left")
	ErrCorrupted       = errors.New("dfucache: corrupted partition")
)

const (
	mapStart     = 0xBF
	bstrLen32    = 0x5A
	bstrHdrSize  = 5
	maxURILength = 1024
	// maxEntryHeader bounds the text string header plus the URI.
	maxEntryHeader = 9 + maxURILength
)

// Entry is one cached payload.
type Entry struct {
	URI    string
	Region model.Region
}

type partition struct {
	dev    nvm.Device
	region model.Region
}

// Cache is the set of DFU cache partitions known to the platform.
type Cache struct {
	pools      map[uint64]partition
	candidates []partition
}

func New() *Cache {
	return &Cache{pools: make(map[uint64]partition)}
}

// AddPool registers the cache pool partition with the given id.
func (c *Cache) AddPool(id uint64, dev nvm.Device, region model.Region) error {
	if _, ok := c.pools[id]; ok {
		return fmt.Errorf("%w: cache pool %d registered twice", ErrInvalidArgument, id)
	}
	if err := checkPartition(dev, region); err != nil {
		return err
	}
	c.pools[id] = partition{dev: dev, region: region}
	return nil
}

// UseCandidate replaces the read-only partitions that came with the update
// candidate.
func (c *Cache) UseCandidate(dev nvm.Device, regions []model.Region) error {
	parts := make([]partition, 0, len(regions))
	for _, r := range regions {
		if err := checkPartition(dev, r); err != nil {
			return err
		}
		parts = append(parts, partition{dev: dev, region: r})
	}
	c.candidates = parts
	return nil
}

func checkPartition(dev nvm.Device, region model.Region) error {
	if dev == nil || region.Size == 0 {
		return fmt.Errorf("%w: empty partition", ErrInvalidArgument)
	}
	if !(model.Region{Size: dev.Size()}).Contains(region) {
		return fmt.Errorf("%w: partition %s outside device", ErrInvalidArgument, region)
	}
	return nil
}

// HasPool reports whether a cache pool with the given id is registered.
func (c *Cache) HasPool(id uint64) bool {
	_, ok := c.pools[id]
	return ok
}

func (c *Cache) pool(id uint64) (partition, error) {
	p, ok := c.pools[id]
	if !ok {
		return partition{}, fmt.Errorf("%w: no cache pool %d", ErrInvalidArgument, id)
	}
	return p, nil
}

// Find returns the device and region holding the payload cached for uri.
// Cache pools are searched in id order, then the candidate partitions.
// A partition that does not parse as a cache is skipped.
func (c *Cache) Find(uri string) (nvm.Device, model.Region, error) {
	ids := make([]uint64, 0, len(c.pools))
	for id := range c.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]partition, 0, len(ids)+len(c.candidates))
	for _, id := range ids {
		parts = append(parts, c.pools[id])
	}
	parts = append(parts, c.candidates...)

	for _, p := range parts {
		res, err := scan(p)
		if errors.Is(err, ErrCorrupted) {
			continue
		}
		if err != nil {
			return nil, model.Region{}, err
		}
		for _, e := range res.entries {
			if e.URI == uri {
				return p.dev, e.Region, nil
			}
		}
	}
	return nil, model.Region{}, fmt.Errorf("%w: %q", ErrNotFound, uri)
}

// Entries lists the payloads of a cache pool.
func (c *Cache) Entries(id uint64) ([]Entry, error) {
	p, err := c.pool(id)
	if err != nil {
		return nil, err
	}
	res, err := scan(p)
	if err != nil {
		return nil, err
	}
	return res.entries, nil
}

// Clear erases a cache pool.
func (c *Cache) Clear(id uint64) error {
	p, err := c.pool(id)
	if err != nil {
		return err
	}
	return nvm.EraseUnaligned(p.dev, p.region.Address, p.region.Size)
}

type scanResult struct {
	entries []Entry
	// free is the address of the first byte after the last entry.
	free uint64
	// started is false while the map start byte is still erased.
	started bool
}

func scan(p partition) (scanResult, error) {
	r := nvm.NewSectionReader(p.dev, p.region.Address, p.region.Size)
	res := scanResult{free: p.region.Address}

	first := make([]byte, 1)
	if _, err := r.ReadAt(first, 0); err != nil {
		return res, err
	}
	switch first[0] {
	case nvm.ErasedValue:
		return res, nil
	case mapStart:
		res.started = true
	default:
		return res, fmt.Errorf("%w: partition %s does not start with a map", ErrCorrupted, p.region)
	}

	off := uint64(1)
	hdr := make([]byte, maxEntryHeader+bstrHdrSize)
	for off < p.region.Size {
		n, err := r.ReadAt(hdr[:min(uint64(len(hdr)), p.region.Size-off)], int64(off))
		if err != nil && err != io.EOF {
			return res, err
		}
		chunk := hdr[:n]
		if n == 0 || chunk[0] == nvm.ErasedValue {
			break
		}

		var uri string
		rest, err := cbor.UnmarshalFirst(chunk, &uri)
		if err != nil {
			return res, fmt.Errorf("%w: entry at offset 0x%x: %w", ErrCorrupted, off, err)
		}
		if len(rest) < bstrHdrSize || rest[0] != bstrLen32 {
			return res, fmt.Errorf("%w: entry %q has no payload header", ErrCorrupted, uri)
		}
		size := uint64(binary.BigEndian.Uint32(rest[1:bstrHdrSize]))
		dataOff := off + uint64(len(chunk)-len(rest)) + bstrHdrSize
		if dataOff > p.region.Size || size > p.region.Size-dataOff {
			return res, fmt.Errorf("%w: entry %q overruns the partition", ErrCorrupted, uri)
		}

		res.entries = append(res.entries, Entry{
			URI:    uri,
			Region: model.Region{Address: p.region.Address + dataOff, Size: size},
		})
		off = dataOff + size
	}
	res.free = p.region.Address + off
	return res, nil
}

// entryHeader encodes the bytes that precede a payload of the given size.
func entryHeader(started bool, uri string, size uint32) ([]byte, error) {
	var hdr []byte
	if !started {
		hdr = append(hdr, mapStart)
	}
	enc, err := cbor.Marshal(uri)
	if err != nil {
		return nil, err
	}
	hdr = append(hdr, enc...)
	hdr = append(hdr, bstrLen32)
	return binary.BigEndian.AppendUint32(hdr, size), nil
}
