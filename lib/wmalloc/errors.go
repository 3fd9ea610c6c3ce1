// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package wmalloc

import "errors"

// ErrOutOfMemory is returned by Allocate when the OS refuses to hand
// over any more pages.
var ErrOutOfMemory = errors.New("wmalloc: out of memory")

// ErrInvalidRelease is returned by Release when addr does not point
// at a payload this Allocator currently has handed out: it is not in
// the live-allocation table (never returned by Allocate, or already
// released), it falls outside every region this Allocator has
// obtained, or it isn't aligned to a chunk boundary. spec.md leaves the behavior of releasing a bad
// address undefined; detecting this case is a strengthening this
// implementation chooses to make rather than a requirement.
var ErrInvalidRelease = errors.New("wmalloc: invalid release")
