/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package suit

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

const (
	EnvelopeTag         = 107
	envelopeTagBytesLen = 2
)

var envelopeTagBytes = []byte{0xD8, 0x6B}

// SUIT_Envelope member keys
const (
	KeyAuthenticationWrapper uint64 = 2
	KeyManifest              uint64 = 3
	KeyDependencyResolution  uint64 = 15
	KeyPayloadFetch          uint64 = 16
	KeyInstall               uint64 = 20
	KeyText                  uint64 = 23
)

// SeverableKeys lists the envelope members that may be removed without
// invalidating the signature.
var SeverableKeys = []uint64{KeyDependencyResolution, KeyPayloadFetch, KeyInstall, KeyText}

var detEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type Nested[T any] struct {
	Value T
}

func (n *Nested[T]) UnmarshalCBOR(data []byte) error {
	// data is bstr wrapped something
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	// raw is the content
	return cbor.Unmarshal(raw, &n.Value)
}

func (n Nested[T]) MarshalCBOR() ([]byte, error) {
	raw, err := detEncMode.Marshal(n.Value)
	if err != nil {
		return nil, err
	}
	return detEncMode.Marshal(raw)
}

// draft-ietf-suit-manifest

type Envelope struct {
	Tagged                bool
	AuthenticationWrapper Nested[AuthenticationWrapper]
	ManifestBstr          cbor.RawMessage
	// Severable holds the bstr-wrapped severable members present in the envelope.
	Severable map[uint64]cbor.RawMessage
	// IntegratedPayloads maps the text keys of the envelope to their content.
	IntegratedPayloads map[string][]byte

	members map[any]cbor.RawMessage
}

// ParseEnvelope decodes a (possibly tagged) SUIT_Envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := e.UnmarshalCBOR(data); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Envelope) UnmarshalCBOR(data []byte) error {
	e.Tagged, data = e.SkipTag(data)
	var t map[any]cbor.RawMessage
	if err := cbor.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("%w: %w", ErrSUITEnvelopeInvalidFormat, err)
	}

	authenticationWrapperRaw := t[KeyAuthenticationWrapper]
	if authenticationWrapperRaw == nil {
		return ErrSUITEnvelopeInvalidFormat
	}
	if err := cbor.Unmarshal(authenticationWrapperRaw, &e.AuthenticationWrapper); err != nil {
		return fmt.Errorf("%w: %w", ErrSUITEnvelopeInvalidFormat, err)
	}

	e.ManifestBstr = t[KeyManifest]
	if e.ManifestBstr == nil {
		return ErrSUITEnvelopeInvalidFormat
	}

	e.Severable = make(map[uint64]cbor.RawMessage)
	e.IntegratedPayloads = make(map[string][]byte)
	for k, v := range t {
		switch key := k.(type) {
		case uint64:
			if isSeverable(key) {
				e.Severable[key] = v
			}
		case string:
			var payload []byte
			if err := cbor.Unmarshal(v, &payload); err != nil {
				return fmt.Errorf("%w: integrated payload %q is not a bstr", ErrSUITEnvelopeInvalidFormat, key)
			}
			e.IntegratedPayloads[key] = payload
		}
	}
	e.members = t

	return nil
}

func (e *Envelope) SkipTag(data []byte) (bool, []byte) {
	// rough tag check
	if len(data) >= envelopeTagBytesLen && bytes.Equal(data[:envelopeTagBytesLen], envelopeTagBytes) {
		// tag exists, skip the data
		return true, data[envelopeTagBytesLen:]
	} else {
		return false, data
	}
}

func isSeverable(key uint64) bool {
	for _, k := range SeverableKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Stripped returns the untagged envelope without integrated payloads and
// severable members, encoded with core deterministic rules.
func (e *Envelope) Stripped() ([]byte, error) {
	kept := make(map[any]cbor.RawMessage, len(e.members))
	for k, v := range e.members {
		switch key := k.(type) {
		case string:
			continue
		case uint64:
			if isSeverable(key) {
				continue
			}
		}
		kept[k] = v
	}
	return detEncMode.Marshal(kept)
}

// IntegratedPayload returns the payload stored under key.
func (e *Envelope) IntegratedPayload(key string) ([]byte, error) {
	p, ok := e.IntegratedPayloads[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSUITPayloadNotFound, key)
	}
	return p, nil
}

// ManifestBytes returns the content of the bstr-wrapped SUIT_Manifest.
func (e *Envelope) ManifestBytes() ([]byte, error) {
	var raw []byte
	if err := cbor.Unmarshal(e.ManifestBstr, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSUITManifestInvalidFormat, err)
	}
	return raw, nil
}

// Manifest decodes the SUIT_Manifest.
func (e *Envelope) Manifest() (*Manifest, error) {
	raw, err := e.ManifestBytes()
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := cbor.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSUITManifestInvalidFormat, err)
	}
	return &m, nil
}

// SequenceNumber reads suit-manifest-sequence-number without decoding the
// rest of the manifest.
func (e *Envelope) SequenceNumber() (uint64, error) {
	raw, err := e.ManifestBytes()
	if err != nil {
		return 0, err
	}
	var h struct {
		ManifestVersion        uint64  `cbor:"1,keyasint"`
		ManifestSequenceNumber *uint64 `cbor:"2,keyasint"`
	}
	if err := cbor.Unmarshal(raw, &h); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSUITManifestInvalidFormat, err)
	}
	if h.ManifestSequenceNumber == nil {
		return 0, fmt.Errorf("%w: missing sequence number", ErrSUITManifestInvalidFormat)
	}
	return *h.ManifestSequenceNumber, nil
}

// CheckManifestDigest compares the digest of the authentication wrapper with
// the digest of the manifest.
func (e *Envelope) CheckManifestDigest() error {
	var digest Digest
	if err := cbor.Unmarshal(e.AuthenticationWrapper.Value.DigestBstr, &digest); err != nil {
		return ErrSUITManifestNotAuthenticated
	}
	raw, err := e.ManifestBytes()
	if err != nil {
		return err
	}
	if err := digest.Check(raw); err != nil {
		return fmt.Errorf("%w: %w", ErrSUITManifestNotAuthenticated, err)
	}
	return nil
}

func (e *Envelope) Verify(key *cose.Key) error {
	// Verify a SUIT Manifest based on the following sections:
	// draft-ietf-suit-manifest-34#section-6.2
	// draft-ietf-suit-manifest-34#section-8.3

	// step 1: compare the digest with hash(bstr-wrapped SUIT_Manifest)
	if err := e.CheckManifestDigest(); err != nil {
		return err
	}

	// step 2: verify the authentication block with specified key
	publicKey, err := key.PublicKey()
	if err != nil {
		return ErrFatal
	}
	verifier, err := cose.NewVerifier(key.Algorithm, publicKey)
	if err != nil {
		return ErrFatal
	}

	for _, block := range e.AuthenticationWrapper.Value.AuthenticationBlocks {
		if block.KID != nil && len(key.ID) > 0 && !bytes.Equal(block.KID, key.ID) {
			continue
		}
		var sign1 Nested[cose.Sign1Message]
		if err := cbor.Unmarshal(block.authenticationBlockBstr, &sign1); err != nil {
			// only COSE_Sign1 is supported
			continue
		}
		if sign1.Value.Payload != nil {
			return ErrSUITManifestInvalidFormat
		}
		sign1.Value.Payload = e.AuthenticationWrapper.Value.DigestBstr
		if err := sign1.Value.Verify(nil, verifier); err == nil {
			// authenticated
			return nil
		}
	}
	return ErrSUITManifestNotAuthenticated
}

type AuthenticationWrapper struct {
	// the bstr-wrapped SUIT_Digest
	DigestBstr           []byte
	AuthenticationBlocks []AuthenticationBlock
}

type AuthenticationBlock struct {
	// KID is nil when the block carries no kid or is not a COSE_Sign1.
	KID                     []byte
	authenticationBlockBstr cbor.RawMessage
}

func (a *AuthenticationWrapper) UnmarshalCBOR(data []byte) error {
	var suitAuthenticationElements []cbor.RawMessage
	if err := cbor.Unmarshal(data, &suitAuthenticationElements); err != nil {
		return ErrSUITEnvelopeInvalidFormat
	}
	// requires bstr .cbor SUIT_Digest followed by bstr .cbor SUIT_Authentication_Block
	if len(suitAuthenticationElements) < 1 {
		return ErrSUITEnvelopeInvalidFormat
	}
	if err := cbor.Unmarshal(suitAuthenticationElements[0], &a.DigestBstr); err != nil {
		return ErrSUITEnvelopeInvalidFormat
	}

	a.AuthenticationBlocks = make([]AuthenticationBlock, 0, len(suitAuthenticationElements)-1)
	for _, raw := range suitAuthenticationElements[1:] {
		block := AuthenticationBlock{authenticationBlockBstr: raw}
		var sign1 Nested[cose.Sign1Message]
		if err := cbor.Unmarshal(raw, &sign1); err == nil {
			block.KID = extractKID(sign1.Value)
		}
		a.AuthenticationBlocks = append(a.AuthenticationBlocks, block)
	}

	return nil
}

func extractKID(sign1 cose.Sign1Message) []byte {
	if p4, ok := sign1.Headers.Protected[cose.HeaderLabelKeyID]; ok {
		if kid, ok := p4.([]byte); ok {
			return kid
		}
		return nil
	}
	if u4, ok := sign1.Headers.Unprotected[cose.HeaderLabelKeyID]; ok {
		if kid, ok := u4.([]byte); ok {
			return kid
		}
		return nil
	}
	return nil
}

type Manifest struct {
	ManifestVersion        uint64         `cbor:"1,keyasint"`
	ManifestSequenceNumber uint64         `cbor:"2,keyasint"`
	Common                 Nested[Common] `cbor:"3,keyasint"`
}

type Common struct {
	Components     []ComponentID `cbor:"2,keyasint,omitempty"`
	SharedSequence []byte        `cbor:"4,keyasint,omitempty"` // no need to extract SUIT_Shared_Sequence
}
