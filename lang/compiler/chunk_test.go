package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkWriteAndRead(t *testing.T) {
	c := NewChunk()
	c.WriteOp(CONSTANT, 1)
	off := c.WriteU16(0, 1)
	require.Equal(t, 3, c.Len())
	require.Equal(t, 1, c.LineAt(0))
	require.Equal(t, 1, c.LineAt(off))

	c.PatchU16(off, 42)
	require.Equal(t, uint16(42), c.ReadU16(off))
}

func TestChunkAddConstant(t *testing.T) {
	c := NewChunk()
	i0, ok0 := c.AddConstant("hello")
	i1, ok1 := c.AddConstant("hello")
	require.True(t, ok0)
	require.True(t, ok1)
	require.Equal(t, uint32(0), i0)
	require.Equal(t, uint32(1), i1, "chunk does not deduplicate constants, that is the compiler's job")
	require.Len(t, c.Constants, 2)
}

func TestChunkWriteAndReadU32(t *testing.T) {
	c := NewChunk()
	c.WriteOp(CONSTANT, 1)
	off := c.WriteU32(0, 1)
	require.Equal(t, 5, c.Len())
	require.Equal(t, uint32(0), c.ReadU32(off))
}

func TestChunkLineAtOutOfRange(t *testing.T) {
	c := NewChunk()
	require.Equal(t, 0, c.LineAt(-1))
	require.Equal(t, 0, c.LineAt(100))
}
