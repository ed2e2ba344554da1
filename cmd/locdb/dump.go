// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the database header",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			vendor, err := db.Vendor()
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			description, err := db.Description()
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			license, err := db.License()
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			createdAt, err := db.CreatedAt()
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}

			fmt.Printf("vendor:      %s\n", vendor)
			fmt.Printf("description: %s\n", description)
			fmt.Printf("license:     %s\n", license)
			fmt.Printf("created_at:  %s\n", createdAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
}
