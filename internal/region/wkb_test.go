package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWKB_RoundTrip(t *testing.T) {
	orig := square("60610", -87.65, 41.89, -87.62, 41.92)
	orig.Name = "Near North Side"

	data, err := orig.WKB()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	got, err := FromWKB(orig.Code, orig.Name, data)
	require.NoError(t, err)
	assert.Equal(t, "60610", got.Code)
	assert.Equal(t, "Near North Side", got.Name)

	idx := NewIndex([]Region{got})
	code, ok := idx.Locate(41.90, -87.63)
	assert.True(t, ok)
	assert.Equal(t, "60610", code)

	_, ok = idx.Locate(41.70, -87.63)
	assert.False(t, ok)
}

func TestWKB_RoundTripPreservesHoles(t *testing.T) {
	outer := [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	hole := [][2]float64{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}}
	orig := MakeRegion("donut", outer, hole)

	data, err := orig.WKB()
	require.NoError(t, err)

	got, err := FromWKB("donut", "", data)
	require.NoError(t, err)

	idx := NewIndex([]Region{got})
	_, ok := idx.Locate(5, 5)
	assert.False(t, ok, "inside the hole")

	code, ok := idx.Locate(2, 2)
	assert.True(t, ok)
	assert.Equal(t, "donut", code)
}

func TestFromWKB_RejectsNonPolygon(t *testing.T) {
	_, err := FromWKB("bad", "", []byte{0x00})
	assert.Error(t, err)
}
