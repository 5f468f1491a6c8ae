// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

package cid

import "fmt"

// Reason distinguishes the sub-cases of a FormatError.
type Reason string

const (
	ReasonWrongPrefix      Reason = "wrong_prefix"
	ReasonWrongLength      Reason = "wrong_length"
	ReasonBadBase32Char    Reason = "bad_base32_char"
	ReasonMissingMultibase Reason = "missing_multibase_prefix"
)

// FormatError reports why a binary or textual CID failed to parse.
type FormatError struct {
	Reason  Reason
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cid: %s: %s", e.Reason, e.Message)
}

func newFormatError(reason Reason, format string, args ...any) *FormatError {
	return &FormatError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
