// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wire

import "bytes"

var (
	endBytes      = END[:]
	endEscBytes   = append(append([]byte{}, END[:]...), ESC)
	dsepBytes     = DSEP[:]
	dsepEscBytes  = append(append([]byte{}, DSEP[:]...), ESC)
	doubleEnd     = append(append([]byte{}, END[:]...), END[:]...)
)

// escapeEnd replaces every occurrence of END in payload with END ESC, so a
// literal double END END never occurs inside the escaped payload.
func escapeEnd(payload []byte) []byte {
	if !bytes.Contains(payload, endBytes) {
		return payload
	}
	return bytes.ReplaceAll(payload, endBytes, endEscBytes)
}

// unescapeEnd is escapeEnd's inverse.
func unescapeEnd(payload []byte) []byte {
	if !bytes.Contains(payload, endEscBytes) {
		return payload
	}
	return bytes.ReplaceAll(payload, endEscBytes, endBytes)
}

// escapeDsep replaces every occurrence of DSEP in an item with DSEP ESC.
func escapeDsep(item []byte) []byte {
	if !bytes.Contains(item, dsepBytes) {
		return item
	}
	return bytes.ReplaceAll(item, dsepBytes, dsepEscBytes)
}

// unescapeDsep is escapeDsep's inverse.
func unescapeDsep(item []byte) []byte {
	if !bytes.Contains(item, dsepEscBytes) {
		return item
	}
	return bytes.ReplaceAll(item, dsepEscBytes, dsepBytes)
}

// Frame escapes payload's embedded END markers and appends the doubled END
// END terminator, producing a self-delimiting wire unit.
func Frame(payload []byte) []byte {
	escaped := escapeEnd(payload)
	out := make([]byte, 0, len(escaped)+4)
	out = append(out, escaped...)
	out = append(out, doubleEnd...)
	return out
}

// SplitStream splits buf on the doubled END END delimiter. Every element
// except the trailing tail is unescaped (END ESC -> END) before being
// returned. The tail is the incomplete suffix after the last delimiter and
// becomes the next call's prefix; it is never unescaped since it may itself
// still be mid-escape-sequence.
//
// For any sequence of payloads p1..pk, SplitStream(Frame(p1)+...+Frame(pk)+prefix)
// yields exactly ([]byte{p1,...,pk}, prefix).
func SplitStream(buf []byte) (frames [][]byte, tail []byte) {
	if !bytes.Contains(buf, doubleEnd) {
		return nil, buf
	}
	parts := bytes.Split(buf, doubleEnd)
	// bytes.Split on a buffer ending in the delimiter yields a trailing
	// empty tail; that is preserved as-is (no frames lost).
	tail = parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		frames = append(frames, unescapeEnd(p))
	}
	return frames, tail
}
