// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var pubkeyPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the database's detached signature against a public key",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if pubkeyPath == "" {
				return &exitErr{code: exitUsageOrAuth, err: fmt.Errorf("--pubkey is required")}
			}
			pubkeyPEM, err := os.ReadFile(pubkeyPath)
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if verr := db.Verify(pubkeyPEM); verr != nil {
				return &exitErr{code: exitUsageOrAuth, err: verr}
			}
			fmt.Println("signature OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&pubkeyPath, "pubkey", "", "path to a PEM-encoded RSA public key")
	return cmd
}
