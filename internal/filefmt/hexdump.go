// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package filefmt

import (
	"fmt"
	"strings"
)

// Hexdump renders data as a 16-bytes-per-line hex+ASCII dump, in the style of
// libloc's private.h hexdump() debug routine. It exists only to be attached
// to slog.Debug call sites diagnosing a corrupt section; nothing on the
// lookup path calls it.
func Hexdump(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		line := data[i:min(i+16, len(data))]
		fmt.Fprintf(&b, "%04x ", i)
		for j := 0; j < 16; j++ {
			if j < len(line) {
				fmt.Fprintf(&b, " %02x", line[j])
			} else {
				b.WriteString("   ")
			}
		}
		b.WriteString("  ")
		for _, c := range line {
			if c < 0x20 || c > 0x7e {
				b.WriteByte('.')
			} else {
				b.WriteByte(c)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
