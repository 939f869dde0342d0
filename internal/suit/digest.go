/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package suit

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	"github.com/veraison/go-cose"
)

// COSE hash algorithm identifiers (RFC 9054).
const (
	AlgorithmSHA256 cose.Algorithm = -16
	AlgorithmSHA384 cose.Algorithm = -43
	AlgorithmSHA512 cose.Algorithm = -44
)

// Digest is a SUIT_Digest.
type Digest struct {
	_           struct{}       `cbor:",toarray"`
	DigestAlg   cose.Algorithm `cbor:"0,keyasint"` // SHA-256 (-16), etc.
	DigestBytes []byte         `cbor:"1,keyasint"`
}

func hashOf(alg cose.Algorithm) (crypto.Hash, error) {
	var h crypto.Hash
	switch alg {
	case AlgorithmSHA256:
		h = crypto.SHA256
	case AlgorithmSHA384:
		h = crypto.SHA384
	case AlgorithmSHA512:
		h = crypto.SHA512
	default:
		return 0, fmt.Errorf("%w: digest algorithm %d", ErrNotSupported, alg)
	}
	if !h.Available() {
		return 0, fmt.Errorf("%w: digest algorithm %d", ErrNotSupported, alg)
	}
	return h, nil
}

// ComputeDigest hashes data with alg.
func ComputeDigest(alg cose.Algorithm, data []byte) (Digest, error) {
	h, err := hashOf(alg)
	if err != nil {
		return Digest{}, err
	}
	w := h.New()
	w.Write(data)
	return Digest{DigestAlg: alg, DigestBytes: w.Sum(nil)}, nil
}

// Check fails with ErrSUITDigestMismatch unless d is the digest of data.
func (d Digest) Check(data []byte) error {
	actual, err := ComputeDigest(d.DigestAlg, data)
	if err != nil {
		return err
	}
	if !bytes.Equal(actual.DigestBytes, d.DigestBytes) {
		return ErrSUITDigestMismatch
	}
	return nil
}

func (d Digest) String() string {
	return fmt.Sprintf("[%d, h'%x']", d.DigestAlg, d.DigestBytes)
}
