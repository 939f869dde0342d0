/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/kentakayama/suit-storage/internal/component"
	"github.com/kentakayama/suit-storage/internal/dfucache"
	"github.com/kentakayama/suit-storage/internal/digestcache"
	"github.com/kentakayama/suit-storage/internal/fetch"
	"github.com/kentakayama/suit-storage/internal/nvm"
	"github.com/kentakayama/suit-storage/internal/sink"
	"github.com/kentakayama/suit-storage/internal/suit"
)

type mapping struct {
	from error
	kind error
}

// mappings is ordered: the first match wins.
var mappings = []mapping{
	{nvm.ErrNotReady, ErrHWNotReady},
	{nvm.ErrIO, ErrIO},
	{nvm.ErrOutOfRange, ErrOutOfBounds},
	{nvm.ErrMisaligned, ErrInvalidArgument},

	{sink.ErrInvalidArgument, ErrInvalidArgument},
	{sink.ErrNoSpace, ErrSize},
	{sink.ErrIO, ErrIO},

	{dfucache.ErrInvalidArgument, ErrInvalidArgument},
	{dfucache.ErrNotFound, ErrNotFound},
	{dfucache.ErrExists, ErrExists},
	{dfucache.ErrNoSpace, ErrSize},
	{dfucache.ErrCorrupted, ErrCBORDecoding},

	{component.ErrInvalidHandle, ErrInvalidArgument},
	{component.ErrNoSpace, ErrSize},

	{digestcache.ErrNotFound, ErrNotFound},
	{digestcache.ErrMismatch, ErrDigestMismatch},
	{digestcache.ErrUnsupported, ErrUnsupported},
	{digestcache.ErrNoSpace, ErrSize},

	{fetch.ErrInvalidArgument, ErrInvalidArgument},
	{fetch.ErrNotFound, ErrNotFound},
	{fetch.ErrTransport, ErrIO},

	{suit.ErrSUITDigestMismatch, ErrDigestMismatch},
	{suit.ErrSUITManifestNotAuthenticated, ErrDigestMismatch},
	{suit.ErrSUITPayloadNotFound, ErrNotFound},
	{suit.ErrNotSupported, ErrUnsupported},
	{suit.ErrSUITEnvelopeInvalidFormat, ErrCBORDecoding},
	{suit.ErrSUITManifestInvalidFormat, ErrCBORDecoding},
	{suit.ErrSUITComponentIDInvalidFormat, ErrCBORDecoding},
	{suit.ErrInvalidType, ErrCBORDecoding},
	{suit.ErrInvalidValue, ErrCBORDecoding},

	{context.Canceled, ErrIO},
	{context.DeadlineExceeded, ErrIO},
}

// Translate converts a collaborator error into one of the error kinds of
// this package. The result matches both the kind and err with errors.Is.
// Errors that already carry a kind are returned unchanged, and anything
// unrecognised is reported as ErrIO.
func Translate(err error) error {
	if err == nil || IsKind(err) {
		return err
	}
	return fmt.Errorf("%w: %w", Kind(err), err)
}

// Kind returns the error kind err translates to, nil for a nil error.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	for _, m := range mappings {
		if errors.Is(err, m.from) {
			return m.kind
		}
	}
	return ErrIO
}
