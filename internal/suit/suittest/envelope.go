/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package suittest builds SUIT envelopes for tests.
package suittest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"

	"github.com/kentakayama/suit-storage/internal/suit"
)

// Options describes the envelope to build.
type Options struct {
	SequenceNumber uint64
	Components     []suit.ComponentID
	// Signer signs the manifest digest; an unsigned envelope carries the
	// digest only.
	Signer cose.Signer
	KID    []byte
	// Payloads become integrated payloads under their text keys.
	Payloads map[string][]byte
	// Severable members are bstr-wrapped under their integer keys.
	Severable map[uint64][]byte
	Tagged    bool
	// CorruptDigest flips the manifest digest.
	CorruptDigest bool
}

func marshal(t testing.TB, v any) []byte {
	t.Helper()
	em, err := cbor.CoreDetEncOptions().EncMode()
	require.NoError(t, err)
	b, err := em.Marshal(v)
	require.NoError(t, err)
	return b
}

// Envelope returns an encoded SUIT_Envelope.
func Envelope(t testing.TB, opts Options) []byte {
	t.Helper()

	common := map[uint64]any{}
	if len(opts.Components) > 0 {
		ids := make([][][]byte, 0, len(opts.Components))
		for _, c := range opts.Components {
			ids = append(ids, [][]byte(c))
		}
		common[2] = ids
	}
	manifest := marshal(t, map[uint64]any{
		1: uint64(1),
		2: opts.SequenceNumber,
		3: marshal(t, common),
	})

	digest, err := suit.ComputeDigest(suit.AlgorithmSHA256, manifest)
	require.NoError(t, err)
	if opts.CorruptDigest {
		digest.DigestBytes[0] ^= 0xFF
	}
	digestBytes := marshal(t, digest)

	auth := [][]byte{digestBytes}
	if opts.Signer != nil {
		msg := cose.NewSign1Message()
		msg.Headers.Protected.SetAlgorithm(opts.Signer.Algorithm())
		if opts.KID != nil {
			msg.Headers.Unprotected[cose.HeaderLabelKeyID] = opts.KID
		}
		msg.Payload = digestBytes
		require.NoError(t, msg.Sign(rand.Reader, nil, opts.Signer))
		msg.Payload = nil
		block, err := msg.MarshalCBOR()
		require.NoError(t, err)
		auth = append(auth, block)
	}

	envelope := map[any]any{
		uint64(2): marshal(t, auth),
		uint64(3): manifest,
	}
	for k, v := range opts.Payloads {
		envelope[k] = v
	}
	for k, v := range opts.Severable {
		envelope[k] = marshal(t, v)
	}

	encoded := marshal(t, envelope)
	if opts.Tagged {
		encoded = append([]byte{0xD8, 0x6B}, encoded...)
	}
	return encoded
}

// NewKey generates a P-256 signing key and the matching public COSE key.
func NewKey(t testing.TB, kid []byte) (cose.Signer, *cose.Key) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := cose.NewSigner(cose.AlgorithmES256, priv)
	require.NoError(t, err)

	x := priv.PublicKey.X.FillBytes(make([]byte, 32))
	y := priv.PublicKey.Y.FillBytes(make([]byte, 32))
	key, err := cose.NewKeyEC2(cose.AlgorithmES256, x, y, nil)
	require.NoError(t, err)
	key.ID = kid
	return signer, key
}
