// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command wmalloc-example is a minimal demonstration of lib/wmalloc:
// it allocates a single large block, treats it as an array of
// integers, fills it with random values, prints the first few, then
// releases it. It is a Go rendering of the allocator's own original
// example program.
package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"time"

	"git.lukeshu.com/wmalloc-ng/lib/wmalloc"
)

const numInts = 100000

func Main() error {
	addr, err := wmalloc.Allocate(numInts * 4)
	if err != nil {
		return fmt.Errorf("allocate %d ints: %w", numInts, err)
	}
	fmt.Printf("here is the address of the array: %v\n", addr)
	buf := wmalloc.Bytes(addr, numInts*4)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < numInts; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], rng.Uint32())
	}

	for i := 0; i < 10; i++ {
		fmt.Println(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	return wmalloc.Release(addr)
}

func main() {
	if err := Main(); err != nil {
		fmt.Fprintf(os.Stderr, "wmalloc-example: %v\n", err)
		os.Exit(1)
	}
}
