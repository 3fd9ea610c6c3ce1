// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import "fmt"

// CheckInvariants walks every region and every bin of a and returns
// an error describing the first broken invariant it finds, or nil if
// none are broken. It is a debugging and testing aid, not part of the
// allocation protocol itself, and is safe to call between any two
// calls to Allocate/Release.
func CheckInvariants(a *Allocator) error {
	free := make(map[Addr]bool)
	for bin := 0; bin < NumBins; bin++ {
		curr := Chunk{addr: a.bins.sentinels[bin]}.Right()
		var prevSize uint64
		first := true
		for curr != 0 {
			c := Chunk{addr: curr}
			size := c.CurrSize()
			if size < MinChunk {
				return fmt.Errorf("wmalloc: chunk %v in bin %d has size %d below MinChunk", curr, bin, size)
			}
			if !first && size < prevSize {
				return fmt.Errorf("wmalloc: bin %d is not sorted ascending at chunk %v", bin, curr)
			}
			if size > a.bins.bounds[bin] {
				return fmt.Errorf("wmalloc: chunk %v of size %d exceeds bin %d's bound %d", curr, size, bin, a.bins.bounds[bin])
			}
			if lo := loBoundOf(a.bins.bounds, bin); size < lo {
				return fmt.Errorf("wmalloc: chunk %v of size %d is below bin %d's range", curr, size, bin)
			}
			if free[curr] {
				return fmt.Errorf("wmalloc: chunk %v appears in more than one bin", curr)
			}
			free[curr] = true
			prevSize = size
			first = false
			curr = c.Right()
		}
	}

	for e := a.regionList.Oldest; e != nil; e = e.Newer {
		if err := checkRegion(e.Value, free); err != nil {
			return err
		}
	}

	live := a.LiveAllocations()
	for e := a.regionList.Oldest; e != nil; e = e.Newer {
		if err := checkLiveTracking(e.Value, free, live); err != nil {
			return err
		}
	}
	for addr := range live {
		return fmt.Errorf("wmalloc: live allocation at %v does not correspond to any in-use chunk", addr)
	}
	return nil
}

// loBoundOf returns the smallest size eligible for bin, i.e. one more
// than the previous bin's bound, or MinChunk for bin 0.
func loBoundOf(bounds [NumBins]uint64, bin int) uint64 {
	if bin == 0 {
		return MinChunk
	}
	return bounds[bin-1] + 1
}

// checkLiveTracking walks a region chunk by chunk, and for every chunk
// not linked into any bin (i.e. currently handed out to a caller),
// confirms its payload address appears in live and removes it from
// the map. Leftover free chunks are not expected to appear in live at
// all; CheckInvariants treats whatever remains in live after every
// region has been walked as addresses Allocate claims are outstanding
// but that this pass never found a chunk for.
func checkLiveTracking(r *region, free map[Addr]bool, live map[Addr]uint64) error {
	addr := r.base
	end := r.end()
	for addr.Cmp(end) < 0 {
		c := Chunk{addr: addr}
		size := c.CurrSize()
		if size == 0 {
			break
		}
		if !free[addr] {
			if _, ok := live[c.Payload()]; !ok {
				return fmt.Errorf("wmalloc: in-use chunk %v has no corresponding entry in the live-allocation table", addr)
			}
			delete(live, c.Payload())
		}
		addr = addr.Add(int64(size))
	}
	return nil
}

// checkRegion walks a region chunk by chunk from base to end,
// verifying that chunks exactly tile the region with no gaps or
// overlaps, that every chunk is at least MinChunk bytes and starts on
// an 8-byte boundary, that every chunk's boundary tags agree with its
// neighbours' real size and with their bin membership (free means
// linked into some bin), and that no two free chunks are adjacent.
func checkRegion(r *region, free map[Addr]bool) error {
	addr := r.base
	end := r.end()
	var prev Chunk
	havePrev := false
	for addr.Cmp(end) < 0 {
		c := Chunk{addr: addr}
		size := c.CurrSize()
		if size == 0 {
			return fmt.Errorf("wmalloc: zero-size chunk at %v inside region [%v,%v)", addr, r.base, end)
		}
		if size < MinChunk {
			return fmt.Errorf("wmalloc: chunk %v has size %d below MinChunk", addr, size)
		}
		if addr.Sub(r.base)%8 != 0 {
			return fmt.Errorf("wmalloc: chunk %v is not on an 8-byte boundary", addr)
		}
		if addr.Add(int64(size)).Cmp(end) > 0 {
			return fmt.Errorf("wmalloc: chunk %v of size %d overruns region [%v,%v)", addr, size, r.base, end)
		}

		if havePrev {
			if c.GetPrevSize() != prev.CurrSize() {
				return fmt.Errorf("wmalloc: chunk %v's prev_size %d disagrees with predecessor's curr_size %d", addr, c.GetPrevSize(), prev.CurrSize())
			}
			if prev.GetNextSize() != c.CurrSize() {
				return fmt.Errorf("wmalloc: chunk %v's next_size %d disagrees with successor's curr_size %d", prev.addr, prev.GetNextSize(), c.CurrSize())
			}
			isFree := free[c.addr]
			if isFree != prev.IsNextAvailable() {
				return fmt.Errorf("wmalloc: chunk %v's availability disagrees between its own bin membership (%v) and predecessor's next-flag (%v)", addr, isFree, prev.IsNextAvailable())
			}
			prevFree := free[prev.addr]
			if prevFree != c.IsPrevAvailable() {
				return fmt.Errorf("wmalloc: chunk %v's availability disagrees between its own bin membership (%v) and successor's prev-flag (%v)", prev.addr, prevFree, c.IsPrevAvailable())
			}
			if prevFree && isFree {
				return fmt.Errorf("wmalloc: free chunks %v and %v are adjacent", prev.addr, addr)
			}
		} else if c.GetPrevSize() != 0 {
			return fmt.Errorf("wmalloc: first chunk %v in region claims a prev_size of %d", addr, c.GetPrevSize())
		}

		prev = c
		havePrev = true
		addr = addr.Add(int64(size))
	}
	if havePrev && prev.GetNextSize() != 0 {
		return fmt.Errorf("wmalloc: last chunk %v in region claims a next_size of %d", prev.addr, prev.GetNextSize())
	}
	return nil
}
