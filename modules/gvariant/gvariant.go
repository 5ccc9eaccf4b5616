// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package gvariant implements the small subset of the GVariant
// serialization format needed to read OSTree metadata objects:
// tuples, arrays of variable-sized elements, strings and byte arrays.
//
// Framing offsets are always little-endian, independent of the byte
// order of the data they frame. OSTree stores metadata big-endian,
// which only matters for fixed-size integers.
package gvariant

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed = errors.New("gvariant: malformed container")
)

// Slice is one serialized GVariant container.
type Slice []byte

// Member describes one tuple member for Tuple. FixedSize is zero for
// variable-sized members.
type Member struct {
	Align     int
	FixedSize int
}

// Align rounds off up to the next multiple of align.
func Align(off, align int) int {
	if align <= 1 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}

// offsetSize returns the framing offset width for a container of the
// given total size.
func offsetSize(size int) int {
	switch {
	case size == 0:
		return 0
	case size <= 0xFF:
		return 1
	case size <= 0xFFFF:
		return 2
	case size <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

// offsetFromEnd reads the i-th framing offset counting backwards from
// the end of the container; i = 0 names the offset stored last.
func (s Slice) offsetFromEnd(i, osz int) (int, error) {
	end := len(s) - i*osz
	start := end - osz
	if start < 0 {
		return 0, ErrMalformed
	}
	var v uint64
	for k := osz - 1; k >= 0; k-- {
		v = v<<8 | uint64(s[start+k])
	}
	if v > uint64(len(s)) {
		return 0, ErrMalformed
	}
	return int(v), nil
}

// Tuple splits a serialized tuple into its members.
func (s Slice) Tuple(members []Member) ([]Slice, error) {
	osz := offsetSize(len(s))
	// Count framing offsets: every variable-sized member but the last.
	frames := 0
	for i, m := range members {
		if m.FixedSize == 0 && i != len(members)-1 {
			frames++
		}
	}
	dataEnd := len(s) - frames*osz
	if dataEnd < 0 {
		return nil, ErrMalformed
	}
	out := make([]Slice, 0, len(members))
	pos := 0
	frame := 0
	for i, m := range members {
		start := Align(pos, m.Align)
		var end int
		switch {
		case m.FixedSize > 0:
			end = start + m.FixedSize
		case i == len(members)-1:
			end = dataEnd
		default:
			var err error
			if end, err = s.offsetFromEnd(frame, osz); err != nil {
				return nil, err
			}
			frame++
		}
		if start > end || end > dataEnd {
			return nil, fmt.Errorf("%w: member %d out of bounds", ErrMalformed, i)
		}
		out = append(out, s[start:end])
		pos = end
	}
	return out, nil
}

// VarArray splits an array of variable-sized elements. Element framing
// offsets are stored in order at the end of the array.
func (s Slice) VarArray(elemAlign int) ([]Slice, error) {
	if len(s) == 0 {
		return nil, nil
	}
	osz := offsetSize(len(s))
	lastEnd, err := s.offsetFromEnd(0, osz)
	if err != nil {
		return nil, err
	}
	if lastEnd > len(s)-osz || (len(s)-lastEnd)%osz != 0 {
		return nil, ErrMalformed
	}
	n := (len(s) - lastEnd) / osz
	out := make([]Slice, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		end64, err := s.offsetFromEnd(n-1-i, osz)
		if err != nil {
			return nil, err
		}
		start := Align(pos, elemAlign)
		if start > end64 || end64 > lastEnd {
			return nil, fmt.Errorf("%w: element %d out of bounds", ErrMalformed, i)
		}
		out = append(out, s[start:end64])
		pos = end64
	}
	return out, nil
}

// String interprets the slice as a nul-terminated GVariant string.
func (s Slice) String() (string, error) {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return "", ErrMalformed
	}
	return string(s[:len(s)-1]), nil
}

// Bytes interprets the slice as an 'ay' byte array.
func (s Slice) Bytes() []byte {
	return []byte(s)
}
