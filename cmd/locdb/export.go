// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/location-tools/locdb"
)

func newExportCmd() *cobra.Command {
	var (
		format  string
		country string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching networks in a firewall tool's native syntax",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			switch format {
			case "nftables", "ipset":
			default:
				return &exitErr{code: exitUsageOrAuth, err: fmt.Errorf("unknown format %q, want nftables or ipset", format)}
			}

			var filter locdb.Filter
			if country != "" {
				filter.CountrySet = true
				filter.Country = country
			}

			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			it, err := db.ListNetworks(filter)
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			defer it.Close()

			for {
				net, ok := it.Next()
				if !ok {
					return nil
				}
				switch format {
				case "nftables":
					fmt.Printf("%s,\n", net)
				case "ipset":
					fmt.Printf("add locdb-export %s\n", net)
				}
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "nftables", "export syntax: nftables or ipset")
	cmd.Flags().StringVar(&country, "country", "", "restrict to an exact country code")
	return cmd
}
