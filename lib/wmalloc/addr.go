// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import (
	"fmt"
	"unsafe"

	"git.lukeshu.com/wmalloc-ng/lib/fmtutil"
)

// Addr is the address of a byte within a region obtained from the OS
// by this allocator. Allocate returns an Addr; Release consumes one.
//
// Addr is a distinct type (rather than a bare uintptr or
// unsafe.Pointer) so that it prints as a fixed-width hex address and
// so that arithmetic on it is spelled out (Add/Sub) instead of being
// ordinary integer math, following the typed-address convention the
// teacher repo uses for its on-disk address types.
type Addr uintptr

// Cmp orders two addresses, satisfying containers.Ordered[Addr].
func (a Addr) Cmp(b Addr) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (a Addr) Add(d int64) Addr { return Addr(int64(a) + d) }
func (a Addr) Sub(b Addr) int64 { return int64(a) - int64(b) }

func (a Addr) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		str := fmt.Sprintf("%#016x", uintptr(a))
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), str)
	default:
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), uintptr(a))
	}
}

// The load/store/slice helpers below, used for chunk headers and
// payloads, and addrOfSlice in region.go, which takes the base address
// of a fresh mapping, are the only places this package reaches for
// unsafe.Pointer; everywhere else operates on Addr and the typed
// accessors in chunk.go. This mirrors how the pack's balloc buddy
// allocator recovers a stable base pointer from a freshly mmap'd
// slice and does the rest of its bookkeeping in uintptr space.

func loadU64(a Addr) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(a))) //nolint:gosec
}

func storeU64(a Addr, v uint64) {
	*(*uint64)(unsafe.Pointer(uintptr(a))) = v //nolint:gosec
}

// bytesAt exposes n bytes starting at a as a slice, for bulk access
// without going through unsafe directly. Bytes wraps this for callers
// outside the package; tests also call it directly.
func bytesAt(a Addr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(a))), n) //nolint:gosec
}

// Bytes exposes n bytes of a payload previously returned by Allocate
// as an ordinary Go slice, for callers that would rather work with
// encoding/binary or copy() than with Addr arithmetic directly. The
// slice aliases the allocator's own memory; it must not be retained
// past the matching call to Release.
func Bytes(a Addr, n int) []byte {
	return bytesAt(a, n)
}
