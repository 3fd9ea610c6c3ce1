// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// region is one anonymous mapping obtained from the OS to back
// allocator chunks. Its backing slice is kept only so the mapping
// stays reachable for the lifetime of the process; all real access to
// its bytes goes through Addr/Chunk.
type region struct {
	base Addr
	size uint64
	mem  []byte
}

func (r *region) end() Addr { return r.base.Add(int64(r.size)) }

func regionMin(r *region) Addr { return r.base }
func regionMax(r *region) Addr { return r.base.Add(int64(r.size) - 1) }

func mmapAnon(size uint64) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return mem, nil
}

func addrOfSlice(b []byte) Addr {
	return Addr(uintptr(unsafe.Pointer(&b[0]))) //nolint:gosec
}

// obtainRegion maps enough pages to hold a chunk of at least need
// bytes, following the sizing rule from spec.md §4.3: MmapSize when
// that's enough, else the smallest whole number of pages strictly
// greater than need, with one page added even when need already
// lands on a page boundary.
func obtainRegion(need uint64) (*region, error) {
	var size uint64
	if need <= MmapSize {
		size = MmapSize
	} else {
		size = (need/PageSize + 1) * PageSize
	}
	mem, err := mmapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("wmalloc: obtain region: %w", err)
	}
	r := &region{base: addrOfSlice(mem), size: size, mem: mem}

	c := Chunk{addr: r.base}
	c.SetPrevSize(0)
	c.setCurrSize(size)
	c.SetNextSize(0)
	return r, nil
}

// bootstrapRegion maps enough memory to hold the bin table's sentinel
// chunks, rounded up to a whole number of pages. It is obtained the same way as an ordinary region
// (anonymous mmap), but it is never registered in an Allocator's
// interval tree and never split, coalesced, or returned to the OS: it
// stands in for the one-time program-break extension the original
// allocator uses to bootstrap its bin table, which Go has no
// equivalent of.
func bootstrapRegion(size uint64) (*region, error) {
	rounded := ((size + PageSize - 1) / PageSize) * PageSize
	mem, err := mmapAnon(rounded)
	if err != nil {
		return nil, err
	}
	return &region{base: addrOfSlice(mem), size: rounded, mem: mem}, nil
}
