package splay

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// leafTree maps bit 0 to symbol a and bit 1 to symbol b.
func leafTree(a, b byte) (t [numNodes]int32) {
	t[0] = ^int32(a)
	t[1] = ^int32(b)
	return
}

func serializeTrees(t1, t2 [numNodes]int32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, t1[:])
	binary.Write(&buf, binary.LittleEndian, t2[:])
	return buf.Bytes()
}

func TestNewReadsBothTrees(t *testing.T) {
	data := serializeTrees(leafTree('h', 'H'), leafTree('m', 'M'))
	s, err := New(bytes.NewReader(data))
	require.NoError(t, err)

	// 0b01100000: tree1 sees 0, tree2 sees 1, tree1 sees 1, tree2 sees 0.
	br := NewBitReader(bytes.NewReader([]byte{0x60}))
	out1, err := s.Expand1(br, nil)
	require.NoError(t, err)
	out2, err := s.Expand2(br, nil)
	require.NoError(t, err)
	out1, err = s.Expand1(br, out1)
	require.NoError(t, err)
	out2, err = s.Expand2(br, out2)
	require.NoError(t, err)

	assert.Equal(t, []byte{'h', 'H'}, out1)
	assert.Equal(t, []byte{'M', 'm'}, out2)
}

func TestDecodeMultiLevel(t *testing.T) {
	// Pair 0: bit 0 -> pair 1, bit 1 -> leaf 'z'.
	// Pair 1: bit 0 -> leaf 'x', bit 1 -> leaf 'y'.
	var t1 [numNodes]int32
	t1[0] = 1
	t1[1] = ^int32('z')
	t1[2] = ^int32('x')
	t1[3] = ^int32('y')

	s, err := New(bytes.NewReader(serializeTrees(t1, leafTree(0, 1))))
	require.NoError(t, err)

	// Bits 00 01 1 -> x, y, z. MSB first: 0b00011000.
	br := NewBitReader(bytes.NewReader([]byte{0x18}))
	var out []byte
	for i := 0; i < 3; i++ {
		out, err = s.Expand1(br, out)
		require.NoError(t, err)
	}
	assert.Equal(t, []byte{'x', 'y', 'z'}, out)
}

func TestExpandStableAcrossCalls(t *testing.T) {
	// The trees must never be re-read: decoding twice from separate
	// payload readers yields identical output.
	s, err := New(bytes.NewReader(serializeTrees(leafTree(1, 2), leafTree(3, 4))))
	require.NoError(t, err)

	decodeRow := func() []byte {
		br := NewBitReader(bytes.NewReader([]byte{0b10110000}))
		var out []byte
		for i := 0; i < 4; i++ {
			out, err = s.Expand1(br, out)
			require.NoError(t, err)
		}
		return out
	}
	assert.Equal(t, decodeRow(), decodeRow())
}

func TestTruncatedTable(t *testing.T) {
	data := serializeTrees(leafTree(0, 1), leafTree(0, 1))
	_, err := New(bytes.NewReader(data[:100]))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestInvalidTable(t *testing.T) {
	bad := leafTree(0, 1)
	bad[5] = numPairs // pair index out of range
	_, err := New(bytes.NewReader(serializeTrees(bad, leafTree(0, 1))))
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestTruncatedPayload(t *testing.T) {
	s, err := New(bytes.NewReader(serializeTrees(leafTree(0, 1), leafTree(0, 1))))
	require.NoError(t, err)

	br := NewBitReader(bytes.NewReader(nil))
	_, err = s.Expand1(br, nil)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}
