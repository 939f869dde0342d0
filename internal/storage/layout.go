/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package storage

import (
	"fmt"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/nvm"
)

// Upper bounds of the CBOR encodings stored in the fixed size banks.
const (
	cborArrayHeaderMax = 9
	cborRegionMax      = 1 + 9 + 9
	cborUint32Max      = 5
)

// layout splits the partition, in this order, into the update candidate
// pair, the NVV pair, one pair per envelope slot and one bank per report.
type layout struct {
	partition model.Region
	candidate pair
	nvv       pair
	envelopes []pair
	reports   []bank
}

func bankSize(dev nvm.Device, payload uint64) uint64 {
	wbs := dev.WriteBlockSize()
	size := nvm.AlignUp(headerLen, wbs) + nvm.AlignUp(payload, wbs) + nvm.AlignUp(trailerLen, wbs)
	return nvm.AlignUp(size, dev.EraseBlockSize())
}

func newLayout(dev nvm.Device, cfg config.StorageConfig) (*layout, error) {
	if cfg.NVVCount <= 0 || cfg.Reports < 0 || cfg.EnvelopeSlots <= 0 || cfg.UpdateCandidateRegions <= 0 {
		return nil, fmt.Errorf("%w: storage table sizes must be positive", domain.ErrInvalidArgument)
	}
	ebs := dev.EraseBlockSize()

	candSize := bankSize(dev, cborArrayHeaderMax+cborRegionMax*uint64(cfg.UpdateCandidateRegions))
	nvvSize := bankSize(dev, cborArrayHeaderMax+cborUint32Max*uint64(cfg.NVVCount))
	envSize := nvm.AlignUp(cfg.EnvelopeBankSize, ebs)
	if envSize == 0 {
		return nil, fmt.Errorf("%w: envelope bank size", domain.ErrInvalidArgument)
	}
	reportSize := bankSize(dev, cfg.ReportCapacity)
	need := 2*candSize + 2*nvvSize + 2*envSize*uint64(cfg.EnvelopeSlots) + reportSize*uint64(cfg.Reports)

	// Without a configured partition the storage takes the top of the device
	// and leaves the rest to update candidates and components.
	part := cfg.Partition
	if part.Size == 0 {
		if need > dev.Size() {
			return nil, fmt.Errorf("%w: storage needs 0x%x bytes, device has 0x%x", domain.ErrSize, need, dev.Size())
		}
		part = model.Region{Address: dev.Size() - need, Size: need}
	}
	if !(model.Region{Size: dev.Size()}).Contains(part) {
		return nil, fmt.Errorf("%w: partition %s outside device of 0x%x bytes", domain.ErrOutOfBounds, part, dev.Size())
	}
	if part.Address%ebs != 0 || part.Size%ebs != 0 {
		return nil, fmt.Errorf("%w: partition %s not aligned to erase block 0x%x", domain.ErrInvalidArgument, part, ebs)
	}
	if need > part.Size {
		return nil, fmt.Errorf("%w: storage needs 0x%x bytes, partition %s", domain.ErrSize, need, part)
	}

	l := &layout{partition: part}
	next := part.Address
	take := func(size uint64) bank {
		b := bank{dev: dev, region: model.Region{Address: next, Size: size}}
		next += size
		return b
	}
	l.candidate = pair{take(candSize), take(candSize)}
	l.nvv = pair{take(nvvSize), take(nvvSize)}
	for i := 0; i < cfg.EnvelopeSlots; i++ {
		l.envelopes = append(l.envelopes, pair{take(envSize), take(envSize)})
	}
	for i := 0; i < cfg.Reports; i++ {
		l.reports = append(l.reports, take(reportSize))
	}
	return l, nil
}

type namedBank struct {
	name string
	bank bank
}

// banks lists every bank of the layout with a name for logs.
func (l *layout) banks() []namedBank {
	var out []namedBank
	for i, b := range l.candidate {
		out = append(out, namedBank{fmt.Sprintf("update candidate bank %d", i), b})
	}
	for i, b := range l.nvv {
		out = append(out, namedBank{fmt.Sprintf("nvv bank %d", i), b})
	}
	for slot, p := range l.envelopes {
		for i, b := range p {
			out = append(out, namedBank{fmt.Sprintf("envelope slot %d bank %d", slot, i), b})
		}
	}
	for i, b := range l.reports {
		out = append(out, namedBank{fmt.Sprintf("report %d", i), b})
	}
	return out
}
