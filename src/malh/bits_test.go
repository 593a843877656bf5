package malh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetClearTestBit(t *testing.T) {
	var x Bits
	x = SetBit(x, 3)
	require.True(t, TestBit(x, 3))
	require.False(t, TestBit(x, 4))

	x = ClearBit(x, 3)
	require.False(t, TestBit(x, 3))
}

func TestPutBit(t *testing.T) {
	var x Bits
	x = PutBit(x, 5, true)
	require.True(t, TestBit(x, 5))
	x = PutBit(x, 5, false)
	require.False(t, TestBit(x, 5))
}

func TestLowK(t *testing.T) {
	x := Bits(0b11111111)
	require.Equal(t, Bits(0), LowK(x, 0))
	require.Equal(t, Bits(0b1), LowK(x, 1))
	require.Equal(t, Bits(0b1111), LowK(x, 4))
	require.Equal(t, x, LowK(x, MaxBits))
	require.Equal(t, x, LowK(x, MaxBits+4))
}
