/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package suit

import "github.com/google/uuid"

// VendorID derives a vendor id from a domain name (RFC 9124, UUIDv5 in the
// DNS namespace).
func VendorID(domain string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(domain))
}

// ClassID derives a manifest class id from a vendor id and a class name.
func ClassID(vendor uuid.UUID, class string) uuid.UUID {
	return uuid.NewSHA1(vendor, []byte(class))
}

