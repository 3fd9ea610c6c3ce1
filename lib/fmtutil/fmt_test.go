// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fmtutil_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/wmalloc-ng/lib/fmtutil"
)

func TestFmtStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "%x", fmtutil.FmtStateString(fakeState{}, 'x'))
	assert.Equal(t, "%08.3f", fmtutil.FmtStateString(fakeState{width: 8, prec: 3, zero: true}, 'f'))
	assert.Equal(t, "%-#v", fmtutil.FmtStateString(fakeState{minus: true, sharp: true}, 'v'))
	assert.Equal(t, "%.d", fmtutil.FmtStateString(fakeState{prec: 0, hasPrec: true}, 'd'))
}

type fakeState struct {
	width, prec                     int
	hasPrec                         bool
	minus, plus, sharp, space, zero bool
}

func (st fakeState) Width() (int, bool) {
	if st.width == 0 {
		return 0, false
	}
	return st.width, true
}

func (st fakeState) Precision() (int, bool) {
	if !st.hasPrec && st.prec == 0 {
		return 0, false
	}
	return st.prec, true
}

func (st fakeState) Flag(b int) bool {
	switch b {
	case '-':
		return st.minus
	case '+':
		return st.plus
	case '#':
		return st.sharp
	case ' ':
		return st.space
	case '0':
		return st.zero
	}
	return false
}

func (st fakeState) Write([]byte) (int, error) { panic("not implemented") }

type byteStringer [4]byte

func (b byteStringer) String() string { return fmt.Sprintf("bytes(%x)", [4]byte(b)) }

func (b byteStringer) Format(f fmt.State, verb rune) {
	fmtutil.FormatByteArrayStringer(b, b[:], f, verb)
}

func TestFormatByteArrayStringer(t *testing.T) {
	t.Parallel()
	val := byteStringer{0xDE, 0xAD, 0xBE, 0xEF}
	assert.Equal(t, "bytes(deadbeef)", fmt.Sprintf("%s", val))
	assert.Equal(t, "bytes(deadbeef)", fmt.Sprintf("%v", val))
	assert.Equal(t, `"bytes(deadbeef)"`, fmt.Sprintf("%q", val))
	assert.Contains(t, fmt.Sprintf("%#v", val), "byteStringer")
}
