// Copyright 2026 The kmutex Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package usermem governs access to user memory. The syscall-facing mutex
// operations consume only this narrow surface; the "addresses" need not be
// real addresses (they may be offsets into a test buffer, for example).
package usermem

import (
	"bytes"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
)

// Addr represents an address in an application address space.
type Addr uint64

// IO provides access to an application address space.
type IO interface {
	// CopyIn copies len(dst) bytes from the application memory at addr to
	// dst. It returns the number of bytes copied, and kernelerr.EFAULT if
	// the range is not entirely accessible.
	CopyIn(addr Addr, dst []byte) (int, error)

	// CopyOut copies len(src) bytes from src to the application memory at
	// addr. It returns the number of bytes copied, and kernelerr.EFAULT if
	// the range is not entirely accessible.
	CopyOut(addr Addr, src []byte) (int, error)
}

// CopyStringIn copies a NUL-terminated string of at most maxLen bytes from
// the application memory at addr. The returned string omits the terminator.
// A string that fills maxLen without a terminator is truncated, not an error.
func CopyStringIn(uio IO, addr Addr, maxLen int) (string, error) {
	buf := make([]byte, maxLen)
	n, err := uio.CopyIn(addr, buf)
	if n == 0 && err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		return string(buf[:i]), nil
	}
	if err != nil {
		// The string was cut short by an inaccessible page before a
		// terminator was found.
		return "", err
	}
	return string(buf[:n]), nil
}

// BytesIO implements IO using a byte slice. Addresses are interpreted as
// offsets into the slice. BytesIO is intended for tests.
type BytesIO struct {
	Bytes []byte
}

// CopyIn implements IO.CopyIn.
func (b *BytesIO) CopyIn(addr Addr, dst []byte) (int, error) {
	rng, err := b.rangeCheck(addr, len(dst))
	if rng == 0 {
		return 0, err
	}
	n := copy(dst, b.Bytes[int(addr):int(addr)+rng])
	return n, err
}

// CopyOut implements IO.CopyOut.
func (b *BytesIO) CopyOut(addr Addr, src []byte) (int, error) {
	rng, err := b.rangeCheck(addr, len(src))
	if rng == 0 {
		return 0, err
	}
	n := copy(b.Bytes[int(addr):int(addr)+rng], src)
	return n, err
}

func (b *BytesIO) rangeCheck(addr Addr, length int) (int, error) {
	if length == 0 {
		return 0, nil
	}
	if int(addr) >= len(b.Bytes) {
		return 0, kernelerr.EFAULT
	}
	if end := int(addr) + length; end > len(b.Bytes) {
		return len(b.Bytes) - int(addr), kernelerr.EFAULT
	}
	return length, nil
}
