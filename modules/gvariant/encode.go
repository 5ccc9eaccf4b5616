// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package gvariant

// TupleBuilder serializes a tuple. Members must be appended in type
// order; the builder records framing offsets for the variable-sized
// members and emits them reversed at the end, per the format.
type TupleBuilder struct {
	body   []byte
	frames []int
	done   bool
}

func (b *TupleBuilder) pad(align int) {
	for len(b.body) != Align(len(b.body), align) {
		b.body = append(b.body, 0)
	}
}

// AppendFixed appends a fixed-size member.
func (b *TupleBuilder) AppendFixed(data []byte, align int) {
	b.pad(align)
	b.body = append(b.body, data...)
}

// AppendVar appends a variable-sized member. The final member of a
// tuple needs no framing offset; mark it with last.
func (b *TupleBuilder) AppendVar(data []byte, align int, last bool) {
	b.pad(align)
	b.body = append(b.body, data...)
	if !last {
		b.frames = append(b.frames, len(b.body))
	}
}

// Finish emits the serialized tuple.
func (b *TupleBuilder) Finish() []byte {
	return appendFraming(b.body, reverse(b.frames))
}

// EncodeVarArray serializes an array of variable-sized elements.
func EncodeVarArray(elems [][]byte, elemAlign int) []byte {
	if len(elems) == 0 {
		return nil
	}
	var body []byte
	ends := make([]int, 0, len(elems))
	for _, e := range elems {
		for len(body) != Align(len(body), elemAlign) {
			body = append(body, 0)
		}
		body = append(body, e...)
		ends = append(ends, len(body))
	}
	return appendFraming(body, ends)
}

// EncodeString serializes a GVariant string (nul-terminated).
func EncodeString(s string) []byte {
	return append([]byte(s), 0)
}

func reverse(v []int) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}

// appendFraming appends the framing offsets in the given storage order,
// sized by the fixed point of container size and offset width.
func appendFraming(body []byte, offsets []int) []byte {
	if len(offsets) == 0 {
		return body
	}
	osz := 1
	for _, w := range []int{1, 2, 4, 8} {
		if offsetSize(len(body)+len(offsets)*w) == w {
			osz = w
			break
		}
	}
	out := body
	for _, off := range offsets {
		v := uint64(off)
		for k := 0; k < osz; k++ {
			out = append(out, byte(v))
			v >>= 8
		}
	}
	return out
}
