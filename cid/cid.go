// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package cid implements the node's content identifier: a 32-byte SHA-256
// digest wrapped in a fixed CIDv1/raw/sha2-256 self-description, matching
// github.com/ipfs/go-cid's wire format exactly (version 1, raw codec 0x55,
// multihash code 0x12, digest length 32).
package cid

import (
	"crypto/sha256"
	"io"
	"strings"

	gocid "github.com/ipfs/go-cid"
	mbase "github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
)

// binaryPrefix is the fixed 4-byte self-description every CID carries:
// CIDv1, raw codec (0x55), sha2-256 multihash code (0x12), digest length 32.
var binaryPrefix = [4]byte{0x01, 0x55, 0x12, 0x20}

const (
	binaryLen = 36
	textLen   = 59
)

// CID is an immutable 32-byte SHA-256 digest. Two CIDs are equal iff their
// digests are equal; the zero value is not a valid CID.
type CID struct {
	digest [32]byte
}

// Of computes the CID of an in-memory byte slice.
func Of(data []byte) CID {
	return CID{digest: sha256.Sum256(data)}
}

// Read streams r through SHA-256 without buffering the whole body.
func Read(r io.Reader) (CID, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return CID{}, err
	}

	var c CID
	copy(c.digest[:], h.Sum(nil))

	return c, nil
}

// Equal reports whether two CIDs name the same digest.
func (c CID) Equal(other CID) bool {
	return c.digest == other.digest
}

// Digest returns the raw 32-byte SHA-256 digest.
func (c CID) Digest() [32]byte {
	return c.digest
}

func (c CID) toGoCID() gocid.Cid {
	// mh.Encode never fails for a valid code/length pair such as SHA2_256.
	mhash, _ := mh.Encode(c.digest[:], mh.SHA2_256) //nolint:errcheck
	return gocid.NewCidV1(gocid.Raw, mhash)
}

// ToBytes returns the canonical 36-byte binary form:
// [0x01, 0x55, 0x12, 0x20] followed by the 32-byte digest.
func (c CID) ToBytes() []byte {
	return c.toGoCID().Bytes()
}

// FromBytes decodes the canonical 36-byte binary form, rejecting anything
// with the wrong length or a prefix other than CIDv1/raw/sha2-256/32.
func FromBytes(b []byte) (CID, error) {
	if len(b) != binaryLen {
		return CID{}, newFormatError(ReasonWrongLength, "expected %d bytes, got %d", binaryLen, len(b))
	}

	for i, want := range binaryPrefix {
		if b[i] != want {
			return CID{}, newFormatError(ReasonWrongPrefix, "byte %d: expected 0x%02x, got 0x%02x", i, want, b[i])
		}
	}

	var c CID
	copy(c.digest[:], b[4:])

	return c, nil
}

// ToText returns the canonical textual form: "b" followed by the lowercase
// unpadded RFC 4648 base32 encoding of ToBytes.
func (c CID) ToText() string {
	text, err := mbase.Encode(mbase.Base32, c.ToBytes())
	if err != nil {
		// mbase.Base32 is a constant, valid encoding; Encode cannot fail here.
		panic(err)
	}

	return text
}

func (c CID) String() string {
	return c.ToText()
}

// Parse decodes the canonical textual form. The leading multibase character
// must be 'b'; the remainder is matched case-insensitively against the RFC
// 4648 base32 alphabet with no padding.
func Parse(text string) (CID, error) {
	if text == "" {
		return CID{}, newFormatError(ReasonMissingMultibase, "empty string")
	}

	lower := strings.ToLower(text)
	if lower[0] != 'b' {
		return CID{}, newFormatError(ReasonMissingMultibase, "expected leading 'b', got %q", text[:1])
	}

	encoding, data, err := mbase.Decode(lower)
	if err != nil {
		return CID{}, newFormatError(ReasonBadBase32Char, "%s", err)
	}

	if encoding != mbase.Base32 {
		return CID{}, newFormatError(ReasonMissingMultibase, "not a base32-lower multibase string")
	}

	return FromBytes(data)
}

// IsValidText reports whether s both matches ^b[a-z2-7]{58}$ case-insensitively
// and decodes to a well-formed CID.
func IsValidText(s string) bool {
	if len(s) != textLen {
		return false
	}

	_, err := Parse(s)

	return err == nil
}
