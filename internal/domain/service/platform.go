/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"
	"io"

	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/suit"
)

// ComponentResolver interprets component handles.
type ComponentResolver interface {
	Type(h model.ComponentHandle) (suit.ComponentType, error)
	ID(h model.ComponentHandle) (suit.ComponentID, error)
	// SetMemPtr commits a payload to a RAM-backed component.
	SetMemPtr(h model.ComponentHandle, data []byte) error
}

// DigestCache is invalidated before a component is rewritten.
type DigestCache interface {
	RemoveByHandle(h model.ComponentHandle) error
}

// PayloadSource streams the payload addressed by a URI.
type PayloadSource interface {
	Fetch(ctx context.Context, uri string, w io.Writer) (int64, error)
}
