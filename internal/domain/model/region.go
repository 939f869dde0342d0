/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "fmt"

// Region is a contiguous address range of an NVM device.
type Region struct {
	_       struct{} `cbor:",toarray"`
	Address uint64   `json:"address" yaml:"address"`
	Size    uint64   `json:"size" yaml:"size"`
}

// End returns the first address after the region.
func (r Region) End() uint64 {
	return r.Address + r.Size
}

// Contains reports whether o lies entirely inside r.
func (r Region) Contains(o Region) bool {
	return o.Address >= r.Address && o.Size <= r.Size && o.Address-r.Address <= r.Size-o.Size
}

// Overlaps reports whether r and o share at least one address.
func (r Region) Overlaps(o Region) bool {
	return r.Size > 0 && o.Size > 0 && r.Address < o.End() && o.Address < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[0x%x, +0x%x)", r.Address, r.Size)
}
