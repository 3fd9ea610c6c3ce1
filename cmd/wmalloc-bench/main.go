// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command wmalloc-bench runs the two stress scenarios the allocator's
// own original test program used to validate and time it: a run of
// random allocate/release coin-flips over a held pool of blocks, and
// a flat run of many minimum-size allocations. It is a Go rendering
// of that original test program, built as a single flat cobra command
// rather than a subcommand tree.
package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"git.lukeshu.com/wmalloc-ng/lib/containers"
	"git.lukeshu.com/wmalloc-ng/lib/profile"
	"git.lukeshu.com/wmalloc-ng/lib/textui"
	"git.lukeshu.com/wmalloc-ng/lib/wmalloc"
)

type logLevelFlag struct {
	logrus.Level
}

func (lvl *logLevelFlag) Type() string { return "loglevel" }
func (lvl *logLevelFlag) Set(str string) error {
	var err error
	lvl.Level, err = logrus.ParseLevel(str)
	return err
}

func main() {
	logLvl := logLevelFlag{Level: logrus.InfoLevel}

	var (
		seed     int64
		poolSize int
		flips    int
		smallN   int
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "wmalloc-bench",
		Short: "Stress-test and time lib/wmalloc",

		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().Var(&logLvl, "verbosity", "set the verbosity")
	cmd.Flags().Int64Var(&seed, "seed", 1, "seed for the coin-flip scenario's random number generator")
	cmd.Flags().IntVar(&poolSize, "pool-size", 500, "number of blocks held at the start of the coin-flip scenario")
	cmd.Flags().IntVar(&flips, "flips", 1000, "number of allocate/release coin flips to run")
	cmd.Flags().IntVar(&smallN, "small-count", 1_000_000, "number of minimum-size allocations in the second scenario")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log the coin-flip scenario's final held addresses with go-spew (at debug level)")
	stopProfiles := profile.AddProfileFlags(cmd.Flags(), "")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		logger.SetLevel(logLvl.Level)
		ctx := dlog.WithLogger(cmd.Context(), dlog.WrapLogrus(logger))

		grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
			EnableSignalHandling: true,
		})
		grp.Go("bench", func(ctx context.Context) error {
			defer func() {
				if err := stopProfiles(); err != nil {
					dlog.Errorf(ctx, "stopping profiles: %v", err)
				}
			}()
			return runBench(ctx, benchOpts{
				seed:     seed,
				poolSize: poolSize,
				flips:    flips,
				smallN:   smallN,
				verbose:  verbose,
			})
		})
		return grp.Wait()
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", cmd.CommandPath(), err)
		os.Exit(1)
	}
}

type benchOpts struct {
	seed     int64
	poolSize int
	flips    int
	smallN   int
	verbose  bool
}

func runBench(ctx context.Context, opts benchOpts) error {
	if err := coinFlipScenario(ctx, opts); err != nil {
		return err
	}
	return manySmallScenario(ctx, opts)
}

// coinFlipScenario allocates a pool of randomly-sized blocks, then
// repeatedly flips a coin to either allocate a fresh block or release
// one already held, timing the whole run and checking every
// invariant at the end.
func coinFlipScenario(ctx context.Context, opts benchOpts) error {
	ctx = dlog.WithField(ctx, "wmalloc.scenario", "coin-flip")
	a, err := wmalloc.New()
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(opts.seed))
	scratch := new(containers.SlicePool[byte])

	held := make([]wmalloc.Addr, 0, opts.poolSize)
	start := time.Now()

	fill := func(addr wmalloc.Addr, size int) {
		buf := scratch.Get(size)
		defer scratch.Put(buf)
		for i := range buf {
			buf[i] = byte(i)
		}
		copy(wmalloc.Bytes(addr, size), buf)
	}

	for i := 0; i < opts.poolSize; i++ {
		size := 8 + rng.Intn(256)
		addr, err := a.Allocate(uint64(size))
		if err != nil {
			return err
		}
		fill(addr, size)
		held = append(held, addr)
	}

	for i := 0; i < opts.flips; i++ {
		if rng.Intn(2) == 0 || len(held) == 0 {
			size := 8 + rng.Intn(256)
			addr, err := a.Allocate(uint64(size))
			if err != nil {
				return err
			}
			fill(addr, size)
			held = append(held, addr)
		} else {
			idx := rng.Intn(len(held))
			if err := a.Release(held[idx]); err != nil {
				return err
			}
			held[idx] = held[len(held)-1]
			held = held[:len(held)-1]
		}
	}
	elapsed := time.Since(start)

	if err := wmalloc.CheckInvariants(a); err != nil {
		return err
	}
	dlog.Infof(ctx, "coin-flip scenario: %d blocks held, %d flips in %v", len(held), opts.flips, elapsed)
	if opts.verbose {
		dlog.Debugf(ctx, "final held addresses:\n%s", spew.Sdump(held))
	}

	for _, addr := range held {
		if err := a.Release(addr); err != nil {
			return err
		}
	}
	return wmalloc.CheckInvariants(a)
}

// manySmallScenario allocates opts.smallN minimum-size blocks, all
// held simultaneously, then releases them, timing each half
// separately. This is the scenario most sensitive to an O(n) bin
// search degrading into something worse.
func manySmallScenario(ctx context.Context, opts benchOpts) error {
	ctx = dlog.WithField(ctx, "wmalloc.scenario", "many-small")
	a, err := wmalloc.New()
	if err != nil {
		return err
	}
	addrs := make([]wmalloc.Addr, opts.smallN)
	var memUse textui.LiveMemUse

	start := time.Now()
	for i := range addrs {
		addr, err := a.Allocate(4)
		if err != nil {
			return err
		}
		addrs[i] = addr
	}
	allocElapsed := time.Since(start)
	dlog.Infof(ctx, "after %v allocations, Go heap reports: %v", textui.Humanized(opts.smallN), &memUse)

	start = time.Now()
	for _, addr := range addrs {
		if err := a.Release(addr); err != nil {
			return err
		}
	}
	releaseElapsed := time.Since(start)

	dlog.Infof(ctx, "many-small scenario: %v allocations in %v, releases in %v",
		textui.Humanized(opts.smallN), allocElapsed, releaseElapsed)
	return nil
}
