// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitBinBoundsHasExactlyNumBins(t *testing.T) {
	bounds := initBinBounds()
	assert.Equal(t, uint64(40), bounds[0])
	assert.Equal(t, uint64(128), bounds[11])
	assert.Equal(t, uint64(256), bounds[19])
	assert.Equal(t, uint64(512), bounds[27])
	assert.Equal(t, uint64(1024), bounds[35])
	assert.Equal(t, uint64(524288), bounds[44])
	assert.Equal(t, ^uint64(0), bounds[45])
	// monotonically non-decreasing
	for i := 1; i < NumBins; i++ {
		assert.GreaterOrEqual(t, bounds[i], bounds[i-1])
	}
}

func TestFindBinNeverReturnsZero(t *testing.T) {
	bounds := initBinBounds()
	for _, need := range []uint64{40, 41, 128, 129, 1024, 1 << 20} {
		assert.GreaterOrEqual(t, findBin(bounds, need), 1)
	}
}

func TestBinIndexForSizeCanReturnZero(t *testing.T) {
	bounds := initBinBounds()
	assert.Equal(t, 0, binIndexForSize(bounds, 40))
}

func newTestBinTable(t *testing.T) *binTable {
	t.Helper()
	bt, err := newBinTable()
	require.NoError(t, err)
	return bt
}

func TestBinInsertSearchUnlink(t *testing.T) {
	bt := newTestBinTable(t)
	base := newTestRegion(t, MmapSize)

	mk := func(off int64, size uint64) Chunk {
		c := Chunk{addr: base.Add(off)}
		c.setCurrSize(size)
		return c
	}

	c1 := mk(0, 64)
	c2 := mk(64, 128)
	c3 := mk(192, 48)

	bt.insert(c1)
	bt.insert(c2)
	bt.insert(c3)

	i := binIndexForSize(bt.bounds, 48)
	got, ok := bt.search(i, 40)
	require.True(t, ok)
	assert.Equal(t, c3.addr, got.addr)

	// c3 has been unlinked; searching the same bin for it again fails.
	_, ok = bt.search(i, 48)
	assert.False(t, ok)
}

func TestBinInsertOrdersAscending(t *testing.T) {
	bt := newTestBinTable(t)
	base := newTestRegion(t, MmapSize)

	// All three fall in the same power-of-two bin (2049..4096 -> bin
	// for bound 4096), inserted out of order.
	sizes := []uint64{4096, 2560, 3072}
	var off int64
	chunks := make([]Chunk, len(sizes))
	for idx, size := range sizes {
		c := Chunk{addr: base.Add(off)}
		c.setCurrSize(size)
		chunks[idx] = c
		off += int64(size)
	}
	for _, c := range chunks {
		bt.insert(c)
	}

	i := binIndexForSize(bt.bounds, 4096)
	curr := Chunk{addr: bt.sentinels[i]}.Right()
	var prevSize uint64
	count := 0
	for curr != 0 {
		c := Chunk{addr: curr}
		assert.GreaterOrEqual(t, c.CurrSize(), prevSize)
		prevSize = c.CurrSize()
		curr = c.Right()
		count++
	}
	assert.Equal(t, 3, count)
}

func TestFindLargerScansUpward(t *testing.T) {
	bt := newTestBinTable(t)
	base := newTestRegion(t, MmapSize)

	big := Chunk{addr: base}
	big.setCurrSize(1 << 19) // largest power-of-two bin, index 44
	bt.insert(big)

	// Ask for a bin far below; nothing sits there, so findLarger must
	// walk upward and find the one chunk we inserted.
	got, ok := bt.findLarger(1)
	require.True(t, ok)
	assert.Equal(t, big.addr, got.addr)
}
