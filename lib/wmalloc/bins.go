// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import "fmt"

// binTable holds the NumBins segregated free lists: an ascending-size
// boundary for each bin, and the address of a sentinel chunk that
// heads each bin's doubly-linked list via the Left/Right accessors
// shared with ordinary chunks.
//
// The sentinels live inside bootstrap, a dedicated one-time mapping
// obtained when the Allocator is constructed (see New in allocator.go).
// Go has no sbrk to grow a process break incrementally, so a fixed
// anonymous mapping holding NumBins sentinels, rounded up to a whole
// page, stands in for it; unlike ordinary regions it is never
// recorded in the interval tree and never revisited once initialized.
type binTable struct {
	bounds    [NumBins]uint64
	sentinels [NumBins]Addr
	bootstrap *region
}

// initBinBounds computes the ascending size boundary of every bin:
// twelve bins stepping by 8 from 40 to 128, eight stepping by 16 from
// 144 to 256, eight stepping by 32 from 288 to 512, eight stepping by
// 64 from 576 to 1024, nine power-of-two bins doubling from 2048 to
// 524288, and one catch-all bin with no upper bound.
func initBinBounds() [NumBins]uint64 {
	var bounds [NumBins]uint64
	i := 0
	for size := uint64(40); size <= 128; size += 8 {
		bounds[i] = size
		i++
	}
	for size := uint64(144); size <= 256; size += 16 {
		bounds[i] = size
		i++
	}
	for size := uint64(288); size <= 512; size += 32 {
		bounds[i] = size
		i++
	}
	for size := uint64(576); size <= 1024; size += 64 {
		bounds[i] = size
		i++
	}
	for size := uint64(2048); size < 1000000; size *= 2 {
		bounds[i] = size
		i++
	}
	for ; i < NumBins; i++ {
		bounds[i] = ^uint64(0)
	}
	return bounds
}

// newBinTable obtains the bootstrap mapping and writes NumBins empty
// sentinel chunks into it, one per bin.
func newBinTable() (*binTable, error) {
	r, err := bootstrapRegion(NumBins * 32)
	if err != nil {
		return nil, fmt.Errorf("wmalloc: allocate bin table: %w", err)
	}
	bt := &binTable{
		bounds:    initBinBounds(),
		bootstrap: r,
	}
	for i := 0; i < NumBins; i++ {
		addr := r.base.Add(int64(i) * 32)
		bt.sentinels[i] = addr
		// A sentinel has curr_size 0 so it is never mistaken for
		// a real chunk by GetPrevSize/GetNextSize on its neighbours
		// (which it has none of: it is never addressed by them).
		storeU64(addr.Add(offCurrSize), 0)
		storeU64(addr.Add(offRight), 0)
	}
	return bt, nil
}

// binIndexForSize returns the bin that insert should place a chunk of
// this size into: the first bin whose bound is >= size, starting the
// scan at bin 0.
func binIndexForSize(bounds [NumBins]uint64, size uint64) int {
	i := 0
	for i < NumBins-1 && size > bounds[i] {
		i++
	}
	return i
}

// findBin returns the first bin that might hold a chunk big enough to
// satisfy a request of this size, starting the scan at bin 1. Bin 0
// is therefore never chosen as a search's starting bin, and findLarger,
// which scans upward from the bin above that, never reaches it either:
// Allocate never takes a chunk out of bin 0. Chunks filed there by
// insert leave it only when a neighbour's release coalesces with them
// (Release unlinks them first). This mirrors the
// asymmetry between find_bin and insert's own bin selection in the
// original allocator and is preserved deliberately rather than
// normalized away.
func findBin(bounds [NumBins]uint64, need uint64) int {
	i := 1
	for i < NumBins-1 && need > bounds[i] {
		i++
	}
	return i
}

// insert splices a free chunk into its bin's list in ascending order
// of curr_size.
func (bt *binTable) insert(c Chunk) {
	i := binIndexForSize(bt.bounds, c.CurrSize())
	prev := Chunk{addr: bt.sentinels[i]}
	curr := prev.Right()
	for curr != 0 {
		cc := Chunk{addr: curr}
		if c.CurrSize() < cc.CurrSize() {
			break
		}
		prev = cc
		curr = cc.Right()
	}
	c.SetRight(curr)
	c.SetLeft(prev.addr)
	if curr != 0 {
		Chunk{addr: curr}.SetLeft(c.addr)
	}
	prev.SetRight(c.addr)
}

// unlink removes a chunk from whichever bin currently holds it.
func (bt *binTable) unlink(c Chunk) {
	left := c.Left()
	right := c.Right()
	Chunk{addr: left}.SetRight(right)
	if right != 0 {
		Chunk{addr: right}.SetLeft(left)
	}
	c.SetLeft(0)
	c.SetRight(0)
}

// search scans bin i in ascending order for the first chunk whose
// curr_size is at least need, unlinks it, and returns it.
func (bt *binTable) search(i int, need uint64) (Chunk, bool) {
	curr := Chunk{addr: bt.sentinels[i]}.Right()
	for curr != 0 {
		cc := Chunk{addr: curr}
		if cc.CurrSize() >= need {
			bt.unlink(cc)
			return cc, true
		}
		curr = cc.Right()
	}
	return Chunk{}, false
}

// findLarger scans bins above i, in increasing order, for the first
// non-empty bin and returns its smallest member, unlinked.
func (bt *binTable) findLarger(i int) (Chunk, bool) {
	for j := i + 1; j < NumBins; j++ {
		if r := (Chunk{addr: bt.sentinels[j]}).Right(); r != 0 {
			cc := Chunk{addr: r}
			bt.unlink(cc)
			return cc, true
		}
	}
	return Chunk{}, false
}
