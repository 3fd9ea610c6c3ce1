// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers_test

import (
	"git.lukeshu.com/wmalloc-ng/lib/containers"
	"git.lukeshu.com/wmalloc-ng/lib/wmalloc"
)

var _ containers.Ordered[wmalloc.Addr] = wmalloc.Addr(0)
