// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package locdb

import (
	"io"
	"log/slog"
)

// DefaultDatabasePath is the compile-time default location for the database
// file, matched by the command-line tool when no --db flag is given.
const DefaultDatabasePath = "/var/lib/location/database.db"

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

type openOptions struct {
	logger *slog.Logger
}

// WithLogger sets an optional logger Open and the resulting Database use
// for progress and diagnostic output. If not provided, no logging output is
// produced.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WriterOption configures NewWriter.
type WriterOption func(*writerOptions)

type writerOptions struct {
	logger         *slog.Logger
	privateKeyPEM1 []byte
	privateKeyPEM2 []byte
}

// WithWriterLogger sets an optional logger for the Writer to use for
// progress updates. If not provided, no logging output is produced.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(o *writerOptions) {
		o.logger = logger
	}
}

// WithSigningKey adds a PEM-encoded RSA private key that Write will use to
// sign the database. Up to two keys may be supplied (call this option
// twice); a database signed by neither key is left unsigned.
func WithSigningKey(privateKeyPEM []byte) WriterOption {
	return func(o *writerOptions) {
		if o.privateKeyPEM1 == nil {
			o.privateKeyPEM1 = privateKeyPEM
		} else {
			o.privateKeyPEM2 = privateKeyPEM
		}
	}
}
