/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

// ComponentHandle refers to a component created from a SUIT component id.
// The zero value is never a valid handle.
type ComponentHandle uint32

const InvalidComponentHandle ComponentHandle = 0
