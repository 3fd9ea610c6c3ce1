// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObtainRegionDefaultSize(t *testing.T) {
	r, err := obtainRegion(64)
	require.NoError(t, err)
	assert.Equal(t, uint64(MmapSize), r.size)

	c := Chunk{addr: r.base}
	assert.Equal(t, uint64(MmapSize), c.CurrSize())
	assert.Equal(t, uint64(0), c.GetPrevSize())
	assert.Equal(t, uint64(0), c.GetNextSize())
}

func TestObtainRegionLargeRequestRoundsUpToPageAboveNeed(t *testing.T) {
	need := uint64(200024)
	r, err := obtainRegion(need)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.size%PageSize)
	assert.Greater(t, r.size, need)
	assert.Equal(t, uint64(200704), r.size)
}

func TestBootstrapRegionRoundsUpToPage(t *testing.T) {
	r, err := bootstrapRegion(NumBins * 32)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.size%PageSize)
	assert.GreaterOrEqual(t, r.size, uint64(NumBins*32))
}
