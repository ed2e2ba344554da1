// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package locdb

import "errors"

// The error kinds from the database format specification. Each is a
// sentinel usable with errors.Is; library functions wrap these with
// fmt.Errorf("...: %w", ...) for context, following the teacher's style.
var (
	// ErrNotADatabase is returned by Open when the magic bytes don't match
	// or the file is too short to contain them.
	ErrNotADatabase = errors.New("locdb: not a location database")

	// ErrUnsupportedVersion is returned by Open for a version this
	// implementation doesn't know how to read.
	ErrUnsupportedVersion = errors.New("locdb: unsupported database version")

	// ErrInvalidData is returned when a section offset/length is out of
	// bounds, a section's stored checksum doesn't match its contents, a
	// pool reference has no NUL terminator, or a sorted table isn't
	// sorted.
	ErrInvalidData = errors.New("locdb: invalid database contents")

	// ErrInvalidArgument is returned for a malformed IP address or country
	// code supplied by the caller.
	ErrInvalidArgument = errors.New("locdb: invalid argument")

	// ErrIO is returned on an underlying file/mmap/write failure.
	ErrIO = errors.New("locdb: I/O error")

	// ErrNoSignature is returned by Verify when the database carries no
	// signature at all.
	ErrNoSignature = errors.New("locdb: database has no signature")

	// ErrBadSignature is returned by Verify when a signature is present
	// but does not verify against the supplied key.
	ErrBadSignature = errors.New("locdb: signature verification failed")

	// ErrOutOfRange is the error kind for address arithmetic that would
	// under- or overflow the 128-bit address space. No exported operation of
	// this package returns it.
	ErrOutOfRange = errors.New("locdb: address arithmetic out of range")

	// ErrDatabaseClosed is returned by any accessor called after the last
	// reference to a Database has been released.
	ErrDatabaseClosed = errors.New("locdb: database is closed")

	// ErrWriterSealed is returned by any Writer method called after Write
	// has already produced output.
	ErrWriterSealed = errors.New("locdb: writer already sealed")
)
