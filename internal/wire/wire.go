// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package wire implements the framed byte protocol shared by the publisher
// and the subscriber: escape-based delimiting, type-preserving payload
// encoding, and the small set of control keys that route a frame to its
// handler. Everything here must be byte-exact on both ends of the wire.
package wire

import "errors"

// KeySize is the fixed width, in bytes, of a frame's KEY field.
const KeySize = 7

// MaxTagLen is the maximum number of bytes a sanitized TAG may carry.
const MaxTagLen = 15

// MaxNameLen is the maximum number of bytes a subscriber name may carry.
const MaxNameLen = 15

// ACK is the single byte exchanged as the protocol's liveness/receipt signal.
const ACK byte = 0x06

// Control keys. Each has the shape "__xxx__" with xxx exactly 3 bytes.
var (
	KeyDie = [KeySize]byte{'_', '_', 'd', 'i', 'e', '_', '_'}
	KeyPng = [KeySize]byte{'_', '_', 'p', 'n', 'g', '_', '_'}
	KeyRaw = [KeySize]byte{'_', '_', 'r', 'a', 'w', '_', '_'}
	KeyJsn = [KeySize]byte{'_', '_', 'j', 's', 'n', '_', '_'}
)

// KeyDieStr, KeyPngStr, KeyRawStr and KeyJsnStr are the string forms of the
// control keys, convenient for header construction and logging.
const (
	KeyDieStr = "__die__"
	KeyPngStr = "__png__"
	KeyRawStr = "__raw__"
	KeyJsnStr = "__jsn__"
)

// END is the two-byte end marker. A frame terminates in END END; any single
// END occurring inside a payload is escaped by appending ESC.
var END = [2]byte{0xAC, 0x96}

// ESC is the escape byte appended after an END or DSEP that occurs inside a
// payload, so that a literal double END END never occurs mid-payload.
const ESC byte = 0xEE

// DSEP is the dictionary/list item delimiter (doubled, like END), escaped
// the same way inside a dict/list item.
var DSEP = [2]byte{0xAC, 0xBD}

// MAP is the single-byte separator between a frame's TAG/UNPACK/PAYLOAD
// header fields.
const MAP = byte(':')

// Unpack flags.
const (
	UnpackTrue  = '1'
	UnpackFalse = '0'
)

// Errors surfaced by the wire package.
var (
	ErrNameEmpty    = errors.New("wire: subscriber name must not be empty")
	ErrNameTooLong  = errors.New("wire: subscriber name exceeds 15 bytes")
	ErrUnknownKey   = errors.New("wire: unrecognized control key")
	ErrTruncatedKey = errors.New("wire: frame shorter than key size")
)

// tagAllowed reports whether r is one of [A-Za-z0-9 ._-].
func tagAllowed(r byte) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '.' || r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// CleanTag strips every byte not in [A-Za-z0-9 ._-] from s, then truncates
// the result to MaxTagLen bytes.
func CleanTag(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if tagAllowed(s[i]) {
			out = append(out, s[i])
		}
	}
	if len(out) > MaxTagLen {
		out = out[:MaxTagLen]
	}
	return string(out)
}

// ValidateName checks a subscriber name against spec.md's length rule:
// empty is rejected, and the caller is responsible for truncating anything
// longer than MaxNameLen before it reaches ValidateName (see TruncateName).
func ValidateName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}

// TruncateName truncates name to MaxNameLen bytes, matching spec.md's
// boundary behavior ("the excess is truncated; empty is rejected").
func TruncateName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}
