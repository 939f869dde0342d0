/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import "errors"

// Error kinds returned by the storage engine and the fetch pipeline.
// Collaborator errors are converted to one of these by Translate.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported component id")
	ErrSize            = errors.New("invalid size")
	ErrOutOfBounds     = errors.New("out of bounds")
	ErrNotFound        = errors.New("item not found")
	ErrIO              = errors.New("i/o failure")
	ErrHWNotReady      = errors.New("hardware not ready")
	ErrCBORDecoding    = errors.New("cbor decoding failed")
	ErrIncorrectState  = errors.New("incorrect state")
	ErrExists          = errors.New("item already exists")
	ErrDigestMismatch  = errors.New("digest mismatch")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrUnsupported,
	ErrSize,
	ErrOutOfBounds,
	ErrNotFound,
	ErrIO,
	ErrHWNotReady,
	ErrCBORDecoding,
	ErrIncorrectState,
	ErrExists,
	ErrDigestMismatch,
}

// IsKind reports whether err already carries one of the error kinds.
func IsKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
