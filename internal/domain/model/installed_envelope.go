/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "github.com/google/uuid"

// InstalledEnvelope is the envelope persisted for one manifest class.
type InstalledEnvelope struct {
	ClassID        uuid.UUID
	SequenceNumber uint64
	Generation     uint32
	// Region is where Envelope lives on the storage device.
	Region   Region
	Envelope []byte
}
