// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

// Chunk is a view onto a boundary-tagged span of memory at some
// address. It carries no state of its own beyond that address: all
// reads and writes go straight through to the underlying bytes, so
// copying a Chunk is cheap and aliases the same memory.
//
// Layout, relative to addr:
//
//	0                : prev_size_and_flag (8 bytes)
//	8                : curr_size          (8 bytes, flag-free)
//	16               : left link / payload start
//	24               : right link
//	curr_size-8      : next_size_and_flag (8 bytes)
type Chunk struct {
	addr Addr
}

// ChunkAt returns a Chunk view of the bytes starting at addr, with no
// validation that addr actually holds a well-formed chunk.
func ChunkAt(addr Addr) Chunk { return Chunk{addr: addr} }

// Addr is the chunk's own address, the start of its prev_size_and_flag
// word.
func (c Chunk) Addr() Addr { return c.addr }

func (c Chunk) IsZero() bool { return c.addr == 0 }

func (c Chunk) tailAddr() Addr { return c.addr.Add(int64(c.CurrSize()) - 8) }

func (c Chunk) rawPrevSizeAndFlag() uint64 { return loadU64(c.addr) }
func (c Chunk) rawNextSizeAndFlag() uint64 { return loadU64(c.tailAddr()) }

func (c Chunk) setRawPrevSizeAndFlag(v uint64) { storeU64(c.addr, v) }
func (c Chunk) setRawNextSizeAndFlag(v uint64) { storeU64(c.tailAddr(), v) }

// CurrSize is this chunk's own total size, head to tail inclusive.
func (c Chunk) CurrSize() uint64 { return loadU64(c.addr.Add(offCurrSize)) }

func (c Chunk) setCurrSize(v uint64) { storeU64(c.addr.Add(offCurrSize), v) }

// Payload is the address handed to callers of Allocate: payloadOffset
// bytes past the start of the chunk.
func (c Chunk) Payload() Addr { return c.addr.Add(payloadOffset) }

// FromPayload recovers the Chunk that owns a payload address previously
// returned by Payload.
func FromPayload(p Addr) Chunk { return Chunk{addr: p.Add(-payloadOffset)} }

// GetPrevSize is the curr_size of the chunk immediately preceding this
// one in address order, or 0 if this chunk sits at the low edge of its
// region.
func (c Chunk) GetPrevSize() uint64 { return c.rawPrevSizeAndFlag() & sizeMask }

// GetNextSize is the curr_size of the chunk immediately following this
// one in address order, or 0 if this chunk sits at the high edge of
// its region.
func (c Chunk) GetNextSize() uint64 { return c.rawNextSizeAndFlag() & sizeMask }

// IsPrevAvailable reports whether a preceding neighbour exists and is
// free.
func (c Chunk) IsPrevAvailable() bool {
	v := c.rawPrevSizeAndFlag()
	return (v&sizeMask) != 0 && (v&availBit) == 0
}

// IsNextAvailable reports whether a following neighbour exists and is
// free.
func (c Chunk) IsNextAvailable() bool {
	v := c.rawNextSizeAndFlag()
	return (v&sizeMask) != 0 && (v&availBit) == 0
}

// SetPrevSize overwrites the size portion of prev_size_and_flag,
// leaving the flag bit untouched.
func (c Chunk) SetPrevSize(size uint64) {
	c.setRawPrevSizeAndFlag(size | (c.rawPrevSizeAndFlag() & availBit))
}

// SetNextSize overwrites the size portion of next_size_and_flag,
// leaving the flag bit untouched.
func (c Chunk) SetNextSize(size uint64) {
	c.setRawNextSizeAndFlag(size | (c.rawNextSizeAndFlag() & availBit))
}

// SetPrevFlag records whether the preceding neighbour is in use,
// leaving the size portion untouched.
func (c Chunk) SetPrevFlag(inUse bool) {
	v := c.rawPrevSizeAndFlag()
	if inUse {
		v |= availBit
	} else {
		v &^= availBit
	}
	c.setRawPrevSizeAndFlag(v)
}

// SetNextFlag records whether the following neighbour is in use,
// leaving the size portion untouched.
func (c Chunk) SetNextFlag(inUse bool) {
	v := c.rawNextSizeAndFlag()
	if inUse {
		v |= availBit
	} else {
		v &^= availBit
	}
	c.setRawNextSizeAndFlag(v)
}

// NeighborPrev returns a view of the chunk immediately preceding this
// one. Only valid when GetPrevSize() != 0.
func (c Chunk) NeighborPrev() Chunk {
	return Chunk{addr: c.addr.Add(-int64(c.GetPrevSize()))}
}

// NeighborNext returns a view of the chunk immediately following this
// one. Only valid when GetNextSize() != 0.
func (c Chunk) NeighborNext() Chunk {
	return Chunk{addr: c.addr.Add(int64(c.CurrSize()))}
}

// MarkUnavailable tells this chunk's existing neighbours that it is
// now in use, by overwriting the appropriate flag bit in each.
func (c Chunk) MarkUnavailable() {
	if c.GetPrevSize() != 0 {
		c.NeighborPrev().SetNextFlag(true)
	}
	if c.GetNextSize() != 0 {
		c.NeighborNext().SetPrevFlag(true)
	}
}

// MarkAvailable tells this chunk's existing neighbours that it is now
// free, by overwriting the appropriate flag bit in each.
func (c Chunk) MarkAvailable() {
	if c.GetPrevSize() != 0 {
		c.NeighborPrev().SetNextFlag(false)
	}
	if c.GetNextSize() != 0 {
		c.NeighborNext().SetPrevFlag(false)
	}
}

// PublishSize writes this chunk's own curr_size, tagged with
// available, into the trailing-size slot of its preceding neighbour
// (if any) and the leading-size slot of its following neighbour (if
// any). Used after split and join to keep the chunks on either side
// of a resized span in sync with its new boundaries.
func (c Chunk) PublishSize(available bool) {
	tag := c.CurrSize()
	if !available {
		tag |= availBit
	}
	if c.GetPrevSize() != 0 {
		storeU64(c.NeighborPrev().tailAddr(), tag)
	}
	if c.GetNextSize() != 0 {
		storeU64(c.NeighborNext().addr, tag)
	}
}

// Left is the free-list back-link, valid only while the chunk is
// linked into a bin.
func (c Chunk) Left() Addr { return Addr(loadU64(c.addr.Add(offLeft))) }

func (c Chunk) SetLeft(a Addr) { storeU64(c.addr.Add(offLeft), uint64(a)) }

// Right is the free-list forward-link, valid only while the chunk is
// linked into a bin.
func (c Chunk) Right() Addr { return Addr(loadU64(c.addr.Add(offRight))) }

func (c Chunk) SetRight(a Addr) { storeU64(c.addr.Add(offRight), uint64(a)) }
