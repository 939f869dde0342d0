/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package suit

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ComponentType is the text carried in the first element of a component id.
type ComponentType string

const (
	ComponentTypeUnsupported       ComponentType = ""
	ComponentTypeMem               ComponentType = "MEM"
	ComponentTypeCachePool         ComponentType = "CACHE_POOL"
	ComponentTypeCandidateImage    ComponentType = "CAND_IMG"
	ComponentTypeCandidateManifest ComponentType = "CAND_MFST"
	ComponentTypeInstalledManifest ComponentType = "INSTLD_MFST"
	ComponentTypeSoCSpecific       ComponentType = "SOC_SPEC"
)

func (t ComponentType) Valid() bool {
	switch t {
	case ComponentTypeMem, ComponentTypeCachePool, ComponentTypeCandidateImage,
		ComponentTypeCandidateManifest, ComponentTypeInstalledManifest, ComponentTypeSoCSpecific:
		return true
	}
	return false
}

// ComponentID is a SUIT_Component_Identifier: an array of bstr.
type ComponentID [][]byte

// NewComponentID builds [type, n...] with every element bstr-wrapped.
func NewComponentID(t ComponentType, numbers ...uint64) (ComponentID, error) {
	typ, err := detEncMode.Marshal(string(t))
	if err != nil {
		return nil, err
	}
	id := ComponentID{typ}
	for _, n := range numbers {
		b, err := detEncMode.Marshal(n)
		if err != nil {
			return nil, err
		}
		id = append(id, b)
	}
	return id, nil
}

// NewMemComponentID builds ['MEM', cpu, address, size].
func NewMemComponentID(cpu, address, size uint64) (ComponentID, error) {
	return NewComponentID(ComponentTypeMem, cpu, address, size)
}

// DecodeComponentID decodes an encoded SUIT_Component_Identifier.
func DecodeComponentID(data []byte) (ComponentID, error) {
	var id ComponentID
	if err := cbor.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSUITComponentIDInvalidFormat, err)
	}
	if len(id) == 0 {
		return nil, ErrSUITComponentIDInvalidFormat
	}
	return id, nil
}

func (c ComponentID) Encode() ([]byte, error) {
	return detEncMode.Marshal([][]byte(c))
}

// Type decodes the component type. An unknown type is not an error; it
// yields ComponentTypeUnsupported.
func (c ComponentID) Type() (ComponentType, error) {
	if len(c) == 0 {
		return ComponentTypeUnsupported, ErrSUITComponentIDInvalidFormat
	}
	var s string
	if err := cbor.Unmarshal(c[0], &s); err != nil {
		return ComponentTypeUnsupported, fmt.Errorf("%w: %w", ErrInvalidType, err)
	}
	t := ComponentType(s)
	if !t.Valid() {
		return ComponentTypeUnsupported, nil
	}
	return t, nil
}

// Number decodes element i as a component number.
func (c ComponentID) Number(i int) (uint64, error) {
	if i < 0 || i >= len(c) {
		return 0, fmt.Errorf("%w: component id has no element %d", ErrInvalidValue, i)
	}
	return DecodeComponentNumber(c[i])
}

// DecodeComponentNumber decodes a bstr-wrapped unsigned integer.
func DecodeComponentNumber(b []byte) (uint64, error) {
	var n uint64
	if err := cbor.Unmarshal(b, &n); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return n, nil
}

func (c ComponentID) String() string {
	enc, err := c.Encode()
	if err != nil {
		return "<invalid>"
	}
	return hex.EncodeToString(enc)
}
