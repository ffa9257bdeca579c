package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidAddress(t *testing.T) {
	accepted := []string{
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		"3LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy",
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
	}
	for _, a := range accepted {
		assert.True(t, ValidAddress(a), a)
	}

	rejected := []string{
		"",
		"2LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy", // bad prefix
		"bc1invalid",                         // too short, 'i' not in charset
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfN0", // '0' is not base58
		"1short",
		" 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
	}
	for _, a := range rejected {
		assert.False(t, ValidAddress(a), a)
	}
}

func TestDescribeAddress(t *testing.T) {
	assert.Equal(t, "P2PKH", DescribeAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.Equal(t, "P2WPKH", DescribeAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"))
	assert.Equal(t, "", DescribeAddress(""))
	assert.Equal(t, "", DescribeAddress("not-an-address"))
}

func TestIsHit(t *testing.T) {
	assert.True(t, IsHit(2.5e16, 2.5e16))
	assert.True(t, IsHit(3.0e16, 2.5e16))
	assert.False(t, IsHit(2.4e16, 2.5e16))
	assert.False(t, IsHit(1, 0))
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("14:30")
	require.NoError(t, err)
	assert.Equal(t, 14, h)
	assert.Equal(t, 30, m)

	h, m, err = ParseClock("9:05")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "24:00", "12:60", "12:5", "123:00", "ab:cd", "12-30", "+9:00", "-0:00", "9:+5", " 9:00:00"} {
		_, _, err := ParseClock(bad)
		assert.True(t, errors.Is(err, ErrInvalidClock), bad)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "09:00", FormatClock(9, 0))
	assert.Equal(t, "23:59", FormatClock(23, 59))
}

func TestParseWorkerArgs(t *testing.T) {
	label, addr, err := ParseWorkerArgs("  main 3LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy ")
	require.NoError(t, err)
	assert.Equal(t, "main", label)
	assert.Equal(t, "3LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy", addr)

	_, _, err = ParseWorkerArgs("main")
	assert.ErrorIs(t, err, ErrWorkerArgs)

	_, _, err = ParseWorkerArgs("main 2LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
