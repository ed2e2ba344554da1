// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command locdb is a thin CLI wrapper over the locdb library: every
// subcommand is built entirely on the package's exported operations.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/location-tools/locdb"
)

const (
	exitOK          = 0
	exitUsageOrAuth = 1
	exitLookupMiss  = 2
)

var (
	dbPath   string
	logLevel string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "locdb",
		Short:         "Query and build location database files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", locdb.DefaultDatabasePath, "path to the database file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level: debug, info, warn, error")
	root.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		logFlags(cmd)
	}

	root.AddCommand(newLookupCmd())
	root.AddCommand(newDumpCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newListNetworksCmd())
	root.AddCommand(newListBogonsCmd())
	root.AddCommand(newExportCmd())
	return root
}

// exitErr carries an explicit process exit code alongside the usual error
// message, letting subcommands distinguish a lookup miss (exit 2) from a
// genuine usage or verification failure (exit 1).
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	fmt.Fprintln(os.Stderr, err)
	if ee, ok := err.(*exitErr); ok {
		return ee.code
	}
	return exitUsageOrAuth
}

// logFlags emits the effective value of every flag once the logger's level
// is known, including flags left at their default.
func logFlags(cmd *cobra.Command) {
	logger := newLogger()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		logger.Debug("flag", "name", f.Name, "value", f.Value.String(), "changed", f.Changed)
	})
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	default:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openDB() (*locdb.Database, func(), error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, func() {}, &exitErr{code: exitUsageOrAuth, err: err}
	}
	db, err := locdb.Open(f, locdb.WithLogger(newLogger()))
	if err != nil {
		_ = f.Close()
		return nil, func() {}, &exitErr{code: exitUsageOrAuth, err: err}
	}
	return db, func() { _ = db.Close() }, nil
}
