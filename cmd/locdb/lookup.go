// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLookupCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "lookup <address>",
		Short: "Look up the network covering an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			net, ok, err := db.Lookup(args[0])
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			if !ok {
				return &exitErr{code: exitLookupMiss, err: fmt.Errorf("no network covers %s", args[0])}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"network": net.String(),
					"country": net.CountryCode,
					"asn":     net.ASN,
					"flags":   net.Flags,
				})
			}
			fmt.Fprintf(os.Stdout, "%s\tcountry=%s\tasn=%d\tflags=0x%x\n", net, net.CountryCode, net.ASN, net.Flags)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
