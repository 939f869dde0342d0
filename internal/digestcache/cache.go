/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package digestcache remembers the digests already checked for components,
// so that a component is not hashed twice while it is not rewritten.
package digestcache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/suit"
)

var (
	ErrNotFound     = errors.New("digestcache: no digest cached")
	ErrMismatch     = errors.New("digestcache: digest mismatch")
	ErrUnsupported  = errors.New("digestcache: unsupported digest algorithm")
	ErrNoSpace      = errors.New("digestcache: cache full")
	errInvalidEntry = errors.New("digestcache: invalid digest")
)

// IDResolver maps a component handle to its component id.
type IDResolver interface {
	ID(h model.ComponentHandle) (suit.ComponentID, error)
}

// Cache maps encoded component ids to digests.
type Cache struct {
	mu       sync.Mutex
	resolver IDResolver
	max      int
	entries  map[string]digest.Digest
}

// New creates a cache of at most maxEntries digests.
func New(resolver IDResolver, maxEntries int) *Cache {
	return &Cache{
		resolver: resolver,
		max:      maxEntries,
		entries:  make(map[string]digest.Digest),
	}
}

func toDigest(d suit.Digest) (digest.Digest, error) {
	var alg digest.Algorithm
	switch d.DigestAlg {
	case suit.AlgorithmSHA256:
		alg = digest.SHA256
	case suit.AlgorithmSHA384:
		alg = digest.SHA384
	case suit.AlgorithmSHA512:
		alg = digest.SHA512
	default:
		return "", fmt.Errorf("%w: %d", ErrUnsupported, d.DigestAlg)
	}
	dg := digest.NewDigestFromBytes(alg, d.DigestBytes)
	if err := dg.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidEntry, err)
	}
	return dg, nil
}

func key(id suit.ComponentID) (string, error) {
	raw, err := id.Encode()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Add stores the digest verified for a component.
func (c *Cache) Add(id suit.ComponentID, d suit.Digest) error {
	dg, err := toDigest(d)
	if err != nil {
		return err
	}
	k, err := key(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; !ok && c.max > 0 && len(c.entries) >= c.max {
		return ErrNoSpace
	}
	c.entries[k] = dg
	return nil
}

// Compare checks d against the digest cached for the component.
func (c *Cache) Compare(id suit.ComponentID, d suit.Digest) error {
	dg, err := toDigest(d)
	if err != nil {
		return err
	}
	k, err := key(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if cached != dg {
		return fmt.Errorf("%w: cached %s, given %s", ErrMismatch, cached, dg)
	}
	return nil
}

// Remove drops the digest of a component. Removing an absent entry is not an
// error.
func (c *Cache) Remove(id suit.ComponentID) error {
	k, err := key(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
	return nil
}

// RemoveByHandle drops the digest of the component behind h.
func (c *Cache) RemoveByHandle(h model.ComponentHandle) error {
	id, err := c.resolver.ID(h)
	if err != nil {
		return err
	}
	return c.Remove(id)
}

// Len returns the number of cached digests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
