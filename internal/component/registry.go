/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package component keeps the table of component handles and the payloads
// committed to RAM-backed components.
package component

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/suit"
)

var (
	ErrInvalidHandle = errors.New("component: invalid handle")
	ErrNoSpace       = errors.New("component: handle table full")
)

// DefaultMaxHandles is used when NewRegistry is given a non-positive size.
const DefaultMaxHandles = 16

type entry struct {
	id     suit.ComponentID
	typ    suit.ComponentType
	memptr []byte
}

// Registry maps handles to decoded component ids.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
}

func NewRegistry(maxHandles int) *Registry {
	if maxHandles <= 0 {
		maxHandles = DefaultMaxHandles
	}
	return &Registry{entries: make([]*entry, maxHandles)}
}

// Create decodes an encoded component id and allocates a handle for it.
func (r *Registry) Create(rawID []byte) (model.ComponentHandle, error) {
	id, err := suit.DecodeComponentID(rawID)
	if err != nil {
		return model.InvalidComponentHandle, err
	}
	typ, err := id.Type()
	if err != nil {
		return model.InvalidComponentHandle, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e == nil {
			r.entries[i] = &entry{id: id, typ: typ}
			return model.ComponentHandle(i + 1), nil
		}
	}
	return model.InvalidComponentHandle, ErrNoSpace
}

// Release frees the handle and drops any payload committed to it.
func (r *Registry) Release(h model.ComponentHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.lookup(h); err != nil {
		return err
	}
	r.entries[h-1] = nil
	return nil
}

func (r *Registry) lookup(h model.ComponentHandle) (*entry, error) {
	if h == model.InvalidComponentHandle || int(h) > len(r.entries) || r.entries[h-1] == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return r.entries[h-1], nil
}

// Type returns the component type. Unknown types yield
// suit.ComponentTypeUnsupported.
func (r *Registry) Type(h model.ComponentHandle) (suit.ComponentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return suit.ComponentTypeUnsupported, err
	}
	return e.typ, nil
}

func (r *Registry) ID(h model.ComponentHandle) (suit.ComponentID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.id, nil
}

// MemPtr returns the payload committed to a RAM-backed component, nil when
// nothing was committed.
func (r *Registry) MemPtr(h model.ComponentHandle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.memptr, nil
}

func (r *Registry) SetMemPtr(h model.ComponentHandle, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(h)
	if err != nil {
		return err
	}
	e.memptr = append([]byte(nil), data...)
	return nil
}
