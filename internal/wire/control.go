// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wire

import "fmt"

// Header is the decoded KEY/TAG/UNPACK prefix of a frame, everything before
// its PAYLOAD.
type Header struct {
	Key    string
	Tag    string
	Unpack bool
}

// BuildFrame assembles a complete wire frame: KEY(7) TAG ':' UNPACK ':' then
// the escaped payload and its doubled END terminator. Only the payload is
// escaped — KEY, TAG and the unpack flag are drawn from restricted
// character sets that can never collide with END/ESC bytes, so escaping
// them would be redundant.
func BuildFrame(key string, tag string, unpack bool, payload []byte) []byte {
	tag = CleanTag(tag)
	header := make([]byte, 0, KeySize+len(tag)+3)
	header = append(header, key...)
	header = append(header, tag...)
	header = append(header, MAP)
	if unpack {
		header = append(header, UnpackTrue)
	} else {
		header = append(header, UnpackFalse)
	}
	header = append(header, MAP)
	return append(header, Frame(payload)...)
}

// ParseFrame splits a single already-SplitStream-unescaped frame (header +
// payload, with the END END terminator already stripped) into its Header
// and PAYLOAD.
func ParseFrame(raw []byte) (Header, []byte, error) {
	if len(raw) < KeySize {
		return Header{}, nil, ErrTruncatedKey
	}
	key := string(raw[:KeySize])
	rest := raw[KeySize:]

	firstColon := indexByte(rest, MAP)
	if firstColon < 0 {
		return Header{}, nil, fmt.Errorf("wire: frame missing tag separator")
	}
	tag := string(rest[:firstColon])
	rest = rest[firstColon+1:]

	if len(rest) < 2 || rest[1] != MAP {
		return Header{}, nil, fmt.Errorf("wire: frame missing unpack separator")
	}
	unpack := rest[0] == UnpackTrue
	payload := rest[2:]

	switch key {
	case KeyDieStr, KeyPngStr, KeyRawStr, KeyJsnStr:
	default:
		return Header{}, nil, ErrUnknownKey
	}

	return Header{Key: key, Tag: tag, Unpack: unpack}, payload, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
