// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package wmalloc is a segregated-fit, boundary-tagged dynamic memory
// allocator built directly on anonymous OS mappings, bypassing the Go
// runtime's own heap. It exists to hand out raw, caller-managed spans
// of memory addressed by Addr rather than Go-GC-tracked values: every
// byte it returns from Allocate must eventually reach exactly one
// Release call, and nothing in between is scanned or moved by the
// garbage collector.
//
// The allocator is not safe for concurrent use: an *Allocator (or the
// package-level singleton reached through Allocate/Release) must be
// called from one goroutine at a time, or serialized by the caller.
package wmalloc

import (
	"fmt"
	"sync"

	"git.lukeshu.com/wmalloc-ng/lib/containers"
)

// Allocator is one independent instance of the allocator: its own bin
// table, its own set of OS regions. Tests construct their own
// Allocators to get isolation from each other and from the
// package-level singleton; cmd/wmalloc-bench does the same so that
// each benchmark scenario starts from a clean heap.
type Allocator struct {
	bins    *binTable
	regions containers.IntervalTree[Addr, *region]
	// regionList records every region in acquisition order, for
	// CheckInvariants and tests; the interval tree is the
	// authoritative address->region index used by Release. A
	// LinkedList suits this better than a slice: regions are only
	// ever appended, never removed, and the "oldest first" order it
	// preserves is exactly region-acquisition order.
	regionList containers.LinkedList[*region]
	// live tracks every outstanding payload address and the size it
	// was requested with, so Release can detect a double-release or
	// a garbage address even when the boundary tags alone can't
	// (e.g. a region holding exactly one chunk has no neighbour to
	// ask). Sorted by address so a debug dump reads in heap order.
	live containers.SortedMap[Addr, uint64]
}

// New constructs an Allocator, obtaining the bootstrap mapping for its
// bin table immediately.
func New() (*Allocator, error) {
	bt, err := newBinTable()
	if err != nil {
		return nil, err
	}
	a := &Allocator{bins: bt}
	a.regions.MinFn = regionMin
	a.regions.MaxFn = regionMax
	return a, nil
}

// Allocate reserves a chunk able to hold at least n bytes and returns
// the address of its payload. The returned Addr is valid for reading
// and writing exactly n bytes until it is passed to Release.
func (a *Allocator) Allocate(n uint64) (Addr, error) {
	need := n + ChunkOverhead
	if need < MinChunk {
		need = MinChunk
	}
	// Keep every chunk size a multiple of 8, so every chunk (and so
	// every payload) stays on an 8-byte boundary within its region.
	need = (need + 7) &^ 7

	i := findBin(a.bins.bounds, need)
	c, ok := a.bins.search(i, need)
	if !ok {
		c, ok = a.bins.findLarger(i)
	}
	if !ok {
		r, err := obtainRegion(need)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
		}
		a.regions.Insert(r)
		a.regionList.Store(&containers.LinkedListEntry[*region]{Value: r})
		c = Chunk{addr: r.base}
	}

	a.split(c, need)
	c.MarkUnavailable()
	payload := c.Payload()
	a.live.Store(payload, n)
	return payload, nil
}

// split carves a chunk able to hold exactly need bytes off the front
// of c, when what remains is large enough to stand on its own as a
// free chunk, and inserts the remainder into the bins. If the excess
// is smaller than MinChunk, it is left as internal fragmentation
// inside c instead.
func (a *Allocator) split(c Chunk, need uint64) {
	if c.CurrSize() < need+MinChunk {
		return
	}
	rest := c.CurrSize() - need
	savedNextTag := c.rawNextSizeAndFlag()

	c.setCurrSize(need)
	// c's predecessor, if any, records c's size in its tail word; c
	// has just shrunk, so that record must shrink with it.
	if c.GetPrevSize() != 0 {
		c.NeighborPrev().SetNextSize(need)
	}

	t := Chunk{addr: c.addr.Add(int64(need))}
	t.setCurrSize(rest)
	t.setRawPrevSizeAndFlag(need) // flag corrected by the caller's MarkUnavailable on c
	t.setRawNextSizeAndFlag(savedNextTag)

	// Republish t's boundaries into c's tail and, if a genuine
	// successor chunk already existed beyond the original span,
	// into that chunk's head too: its prev neighbour is now t, not
	// the larger chunk c used to be.
	t.PublishSize(true)

	a.bins.insert(t)
}

// join merges two adjacent free chunks, with b immediately following
// a, into one chunk covering both spans. The combined chunk is
// republished to whichever chunks now border it and returned; it is
// not inserted into a bin.
func join(a, b Chunk) Chunk {
	total := a.CurrSize() + b.CurrSize()
	a.setCurrSize(total)
	a.PublishSize(true)
	return a
}

// Release returns a previously allocated span to the allocator,
// coalescing it with any free neighbours before filing it back into
// the bins.
func (a *Allocator) Release(addr Addr) error {
	if _, ok := a.live.Load(addr); !ok {
		return fmt.Errorf("%w: address %v is not currently allocated", ErrInvalidRelease, addr)
	}

	c := FromPayload(addr)
	if err := a.validate(c); err != nil {
		return err
	}
	a.live.Delete(addr)

	c.MarkAvailable()

	if c.GetPrevSize() != 0 && c.IsPrevAvailable() {
		prev := c.NeighborPrev()
		a.bins.unlink(prev)
		c = join(prev, c)
	}
	if c.GetNextSize() != 0 && c.IsNextAvailable() {
		next := c.NeighborNext()
		a.bins.unlink(next)
		c = join(c, next)
	}
	a.bins.insert(c)
	return nil
}

// validate reports ErrInvalidRelease if c does not sit inside any
// region this Allocator obtained, or isn't aligned to an 8-byte
// boundary within that region. Release checks a.live before calling
// this, so these two checks together catch both a double-release (a
// payload address no longer considered live) and a release of an
// address this Allocator never handed out at all.
func (a *Allocator) validate(c Chunk) error {
	r, ok := a.regions.Lookup(c.addr)
	if !ok {
		return fmt.Errorf("%w: address %v is not inside any region held by this allocator", ErrInvalidRelease, c.addr)
	}
	if (c.addr.Sub(r.base))%8 != 0 {
		return fmt.Errorf("%w: address %v is not chunk-aligned", ErrInvalidRelease, c.addr)
	}
	return nil
}

// LiveAllocations returns a snapshot of every payload address
// currently outstanding, keyed by the size it was requested with. It
// is a debugging aid, not part of the allocation protocol.
func (a *Allocator) LiveAllocations() map[Addr]uint64 {
	ret := make(map[Addr]uint64)
	a.live.Range(func(addr Addr, size uint64) bool {
		ret[addr] = size
		return true
	})
	return ret
}

var (
	defaultOnce  sync.Once
	defaultAlloc *Allocator
	defaultErr   error
)

// defaultAllocator lazily constructs the package-level singleton used
// by the Allocate/Release functions.
func defaultAllocator() (*Allocator, error) {
	defaultOnce.Do(func() {
		defaultAlloc, defaultErr = New()
	})
	return defaultAlloc, defaultErr
}

// Allocate reserves n bytes from the package-level allocator. It is
// the classic global-malloc calling convention: one shared heap for
// the whole process, built lazily on first use. It adds no locking of
// its own, so callers sharing this singleton across goroutines must
// still serialize their own calls into it.
func Allocate(n uint64) (Addr, error) {
	a, err := defaultAllocator()
	if err != nil {
		return 0, err
	}
	return a.Allocate(n)
}

// Release returns addr, previously obtained from Allocate, to the
// package-level allocator.
func Release(addr Addr) error {
	a, err := defaultAllocator()
	if err != nil {
		return err
	}
	return a.Release(addr)
}
