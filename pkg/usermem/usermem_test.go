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

package usermem

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kmutex.dev/kmutex/pkg/errors/kernelerr"
)

func TestBytesIORoundTrip(t *testing.T) {
	b := &BytesIO{Bytes: make([]byte, 16)}
	src := []byte("payload")
	if n, err := b.CopyOut(4, src); n != len(src) || err != nil {
		t.Fatalf("CopyOut: got (%d, %v), wanted (%d, nil)", n, err, len(src))
	}
	dst := make([]byte, len(src))
	if n, err := b.CopyIn(4, dst); n != len(dst) || err != nil {
		t.Fatalf("CopyIn: got (%d, %v), wanted (%d, nil)", n, err, len(dst))
	}
	if diff := cmp.Diff(src, dst); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBytesIOPartial(t *testing.T) {
	b := &BytesIO{Bytes: []byte("0123456789")}
	dst := make([]byte, 8)
	n, err := b.CopyIn(6, dst)
	if n != 4 || !kernelerr.Equals(kernelerr.EFAULT, err) {
		t.Fatalf("CopyIn: got (%d, %v), wanted (4, %v)", n, err, kernelerr.EFAULT)
	}
	if !bytes.Equal(dst[:n], []byte("6789")) {
		t.Errorf("partial read: got %q, wanted %q", dst[:n], "6789")
	}
	// A range entirely out of bounds copies nothing.
	if n, err := b.CopyIn(100, dst); n != 0 || !kernelerr.Equals(kernelerr.EFAULT, err) {
		t.Errorf("CopyIn out of range: got (%d, %v), wanted (0, %v)", n, err, kernelerr.EFAULT)
	}
	if n, err := b.CopyOut(100, dst); n != 0 || !kernelerr.Equals(kernelerr.EFAULT, err) {
		t.Errorf("CopyOut out of range: got (%d, %v), wanted (0, %v)", n, err, kernelerr.EFAULT)
	}
	// Zero-length copies always succeed.
	if n, err := b.CopyIn(100, nil); n != 0 || err != nil {
		t.Errorf("zero-length CopyIn: got (%d, %v), wanted (0, nil)", n, err)
	}
}

func TestCopyStringIn(t *testing.T) {
	for _, test := range []struct {
		name    string
		mem     string
		addr    Addr
		maxLen  int
		want    string
		wantErr error
	}{
		{
			name:   "terminated",
			mem:    "hello\x00world",
			maxLen: 32,
			want:   "hello",
		},
		{
			name:   "empty",
			mem:    "\x00",
			maxLen: 32,
			want:   "",
		},
		{
			name:   "truncated at limit",
			mem:    "abcdefgh\x00",
			maxLen: 4,
			want:   "abcd",
		},
		{
			name:   "offset",
			mem:    "xxhi\x00",
			addr:   2,
			maxLen: 32,
			want:   "hi",
		},
		{
			name:    "unterminated to end of memory",
			mem:     "abc",
			maxLen:  32,
			wantErr: kernelerr.EFAULT,
		},
		{
			name:    "inaccessible",
			mem:     "abc",
			addr:    10,
			maxLen:  32,
			wantErr: kernelerr.EFAULT,
		},
		{
			name:   "terminator before fault",
			mem:    "ok\x00",
			maxLen: 32,
			want:   "ok",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			uio := &BytesIO{Bytes: []byte(test.mem)}
			got, err := CopyStringIn(uio, test.addr, test.maxLen)
			if test.wantErr != nil {
				if err != test.wantErr {
					t.Fatalf("CopyStringIn: got error %v, wanted %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CopyStringIn: %v", err)
			}
			if got != test.want {
				t.Errorf("CopyStringIn: got %q, wanted %q", got, test.want)
			}
		})
	}
}
