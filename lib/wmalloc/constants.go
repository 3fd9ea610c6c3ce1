// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

// Constants fixed by the design (spec.md §6), not implementation
// details left to choose.
const (
	// ChunkOverhead is the number of bytes added to every request
	// before bin selection: the two 8-byte head words and the one
	// 8-byte tail word.
	ChunkOverhead = 24

	// MinChunk is the smallest permissible curr_size for any chunk.
	MinChunk = 40

	// NumBins is the number of segregated free lists.
	NumBins = 46

	// PageSize is the unit of OS region rounding.
	PageSize = 0x1000

	// MmapSize is the default region size: 32 pages.
	MmapSize = 0x20000
)

// availBit is the high bit of a boundary-tag size word: 1 means the
// chunk the word describes is in-use, 0 means it's available.
const availBit = uint64(1) << 63

// sizeMask masks off availBit, leaving just the size.
const sizeMask = availBit - 1

// Chunk layout offsets (spec.md §3). offLeft/offRight are only
// meaningful while a chunk is linked into a free list; once handed
// out, that same span is the start of the caller's payload.
const (
	offCurrSize   = 8
	offLeft       = 16
	offRight      = 24
	payloadOffset = 16
)
