// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package gvariant

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTupleRoundTrip(t *testing.T) {
	b := &TupleBuilder{}
	b.AppendVar(EncodeString("subject"), 1, false)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], 1577836800)
	b.AppendFixed(ts[:], 8)
	b.AppendVar([]byte{0xaa, 0xbb, 0xcc}, 1, true)
	data := Slice(b.Finish())

	members, err := data.Tuple([]Member{
		{Align: 1},
		{Align: 8, FixedSize: 8},
		{Align: 1},
	})
	require.NoError(t, err)
	require.Len(t, members, 3)

	s, err := members[0].String()
	require.NoError(t, err)
	assert.Equal(t, "subject", s)
	assert.Equal(t, uint64(1577836800), binary.BigEndian.Uint64(members[1]))
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, members[2].Bytes())
}

func TestTupleEmptyMembers(t *testing.T) {
	b := &TupleBuilder{}
	b.AppendVar(nil, 8, false)
	b.AppendVar(nil, 1, false)
	b.AppendVar(EncodeString("tail"), 1, true)
	data := Slice(b.Finish())

	members, err := data.Tuple([]Member{{Align: 8}, {Align: 1}, {Align: 1}})
	require.NoError(t, err)
	assert.Empty(t, members[0].Bytes())
	assert.Empty(t, members[1].Bytes())
	s, err := members[2].String()
	require.NoError(t, err)
	assert.Equal(t, "tail", s)
}

func TestVarArrayRoundTrip(t *testing.T) {
	elems := [][]byte{
		EncodeString("alpha"),
		EncodeString("beta"),
		EncodeString("gamma"),
	}
	data := Slice(EncodeVarArray(elems, 1))

	out, err := data.VarArray(1)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, want := range []string{"alpha", "beta", "gamma"} {
		s, err := out[i].String()
		require.NoError(t, err)
		assert.Equal(t, want, s)
	}
}

func TestVarArrayEmpty(t *testing.T) {
	assert.Nil(t, EncodeVarArray(nil, 1))
	out, err := Slice(nil).VarArray(1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// Containers over 255 bytes switch to two-byte framing offsets; the
// decoder must pick the same width the encoder did.
func TestWideFramingOffsets(t *testing.T) {
	long := strings.Repeat("x", 300)
	b := &TupleBuilder{}
	b.AppendVar(EncodeString(long), 1, false)
	b.AppendVar(EncodeString("short"), 1, true)
	data := Slice(b.Finish())
	require.Greater(t, len(data), 0xFF)

	members, err := data.Tuple([]Member{{Align: 1}, {Align: 1}})
	require.NoError(t, err)
	s, err := members[0].String()
	require.NoError(t, err)
	assert.Equal(t, long, s)
	s, err = members[1].String()
	require.NoError(t, err)
	assert.Equal(t, "short", s)

	elems := [][]byte{EncodeString(long), EncodeString("tail")}
	out, err := Slice(EncodeVarArray(elems, 1)).VarArray(1)
	require.NoError(t, err)
	require.Len(t, out, 2)
	s, err = out[1].String()
	require.NoError(t, err)
	assert.Equal(t, "tail", s)
}

func TestMalformed(t *testing.T) {
	_, err := Slice([]byte("no terminator")).String()
	assert.ErrorIs(t, err, ErrMalformed)

	// A framing offset pointing past the container.
	_, err = Slice([]byte{0x61, 0x00, 0xff}).VarArray(1)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestAlign(t *testing.T) {
	assert.Equal(t, 0, Align(0, 8))
	assert.Equal(t, 8, Align(1, 8))
	assert.Equal(t, 8, Align(8, 8))
	assert.Equal(t, 5, Align(5, 1))
}
