// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRegion obtains a real region for a test and returns its base
// address, so chunk-level tests can exercise the unsafe accessors
// against genuine mapped memory instead of a fake buffer.
func newTestRegion(t *testing.T, size uint64) Addr {
	t.Helper()
	r, err := obtainRegion(size)
	require.NoError(t, err)
	return r.base
}

func TestChunkSizeRoundTrip(t *testing.T) {
	base := newTestRegion(t, MmapSize)
	c := Chunk{addr: base}

	c.setCurrSize(128)
	assert.Equal(t, uint64(128), c.CurrSize())

	c.SetPrevSize(64)
	assert.Equal(t, uint64(64), c.GetPrevSize())

	c.SetNextSize(256)
	assert.Equal(t, uint64(256), c.GetNextSize())
}

func TestChunkFlags(t *testing.T) {
	base := newTestRegion(t, MmapSize)
	c := Chunk{addr: base}
	c.setCurrSize(128)
	c.SetPrevSize(64)
	c.SetNextSize(256)

	assert.True(t, c.IsPrevAvailable())
	assert.True(t, c.IsNextAvailable())

	c.SetPrevFlag(true)
	c.SetNextFlag(true)
	assert.False(t, c.IsPrevAvailable())
	assert.False(t, c.IsNextAvailable())
	// Setting a flag must not disturb the size half of the word.
	assert.Equal(t, uint64(64), c.GetPrevSize())
	assert.Equal(t, uint64(256), c.GetNextSize())

	c.SetPrevFlag(false)
	c.SetNextFlag(false)
	assert.True(t, c.IsPrevAvailable())
	assert.True(t, c.IsNextAvailable())
}

func TestChunkZeroSizeMeansNoNeighbor(t *testing.T) {
	base := newTestRegion(t, MmapSize)
	c := Chunk{addr: base}
	c.setCurrSize(128)
	c.SetPrevSize(0)
	c.SetNextSize(0)

	assert.False(t, c.IsPrevAvailable())
	assert.False(t, c.IsNextAvailable())
	assert.Equal(t, uint64(0), c.GetPrevSize())
	assert.Equal(t, uint64(0), c.GetNextSize())
}

func TestChunkNeighborAddressing(t *testing.T) {
	base := newTestRegion(t, MmapSize)
	a := Chunk{addr: base}
	a.setCurrSize(64)
	a.SetPrevSize(0)
	a.SetNextSize(40)

	b := Chunk{addr: base.Add(64)}
	b.setCurrSize(40)
	b.SetPrevSize(64)
	b.SetNextSize(0)

	assert.Equal(t, b.addr, a.NeighborNext().addr)
	assert.Equal(t, a.addr, b.NeighborPrev().addr)
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	base := newTestRegion(t, MmapSize)
	c := Chunk{addr: base}
	c.setCurrSize(64)

	p := c.Payload()
	assert.Equal(t, base.Add(payloadOffset), p)
	assert.Equal(t, c.addr, FromPayload(p).addr)

	buf := bytesAt(p, 8)
	copy(buf, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	got := bytesAt(p, 8)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestChunkPublishSizeViaJoin(t *testing.T) {
	base := newTestRegion(t, MmapSize)
	a := Chunk{addr: base}
	a.setCurrSize(64)
	a.SetPrevSize(0)
	a.SetNextSize(128)

	b := Chunk{addr: base.Add(64)}
	b.setCurrSize(128)
	b.SetPrevSize(64)
	b.SetNextSize(40)

	d := Chunk{addr: base.Add(64 + 128)}
	d.setCurrSize(40)
	d.SetPrevSize(128)
	d.SetPrevFlag(true)

	merged := join(a, b)

	assert.Equal(t, a.addr, merged.addr)
	assert.Equal(t, uint64(192), merged.CurrSize())
	assert.Equal(t, uint64(192), d.GetPrevSize())
	assert.True(t, d.IsPrevAvailable())
}
