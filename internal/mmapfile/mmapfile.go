// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmapfile memory-maps a database file read-only, private, and
// advises the kernel that access will be random (point lookups scattered
// across the tree, not sequential scans). It also attempts to mlock the
// mapping so the database is never paged out mid-lookup, on a best-effort
// basis -- failure to lock is logged and otherwise ignored. If mmap is
// unavailable for the backing file, it falls back to a heap-buffered read of
// the whole file, preserving identical read semantics for the caller.
package mmapfile

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// Mapping is an opened, read-only view over a file's bytes, backed either by
// an mmap region or, on fallback, a heap buffer.
type Mapping struct {
	data   []byte
	dup    *os.File
	mapped bool
	locked bool
}

// Open duplicates f's descriptor (so the caller may close their copy of f
// independently), memory-maps the whole file read-only/private, and advises
// the kernel the mapping will be accessed randomly. If mmap fails, it falls
// back to reading the whole file into a heap buffer.
func Open(f *os.File, logger *slog.Logger) (*Mapping, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("mmapfile: dup: %w", err)
	}
	dup := os.NewFile(uintptr(fd), f.Name())

	fi, err := dup.Stat()
	if err != nil {
		_ = dup.Close()
		return nil, fmt.Errorf("mmapfile: fstat: %w", err)
	}
	size := fi.Size()

	if size == 0 {
		return &Mapping{data: nil, dup: dup}, nil
	}

	data, err := unix.Mmap(int(dup.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		logger.Warn("mmap failed, falling back to heap-buffered read", "error", err)
		if _, serr := dup.Seek(0, io.SeekStart); serr != nil {
			_ = dup.Close()
			return nil, fmt.Errorf("mmapfile: seek for fallback read: %w", serr)
		}
		buf, rerr := io.ReadAll(dup)
		if rerr != nil {
			_ = dup.Close()
			return nil, fmt.Errorf("mmapfile: fallback read: %w", rerr)
		}
		return &Mapping{data: buf, dup: dup, mapped: false}, nil
	}

	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		logger.Warn("madvise(MADV_RANDOM) failed, continuing anyway", "error", err)
	}

	locked := true
	if err := unix.Mlock(data); err != nil {
		logger.Warn("mlock failed, continuing anyway", "error", err)
		locked = false
	}

	return &Mapping{data: data, dup: dup, mapped: true, locked: locked}, nil
}

// Data returns the mapped (or fallback-buffered) file contents.
func (m *Mapping) Data() []byte {
	return m.data
}

// Close unmaps the region (if mapped) and closes the duplicated descriptor.
func (m *Mapping) Close() error {
	var err error
	if m.locked {
		_ = unix.Munlock(m.data)
	}
	if m.mapped && len(m.data) > 0 {
		err = unix.Munmap(m.data)
	}
	if cerr := m.dup.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
