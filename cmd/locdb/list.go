// Copyright 2024 The locdb Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/location-tools/locdb"
)

func newListNetworksCmd() *cobra.Command {
	var (
		family  string
		asn     uint32
		country string
		flags   string
	)
	cmd := &cobra.Command{
		Use:   "list-networks",
		Short: "Stream every network matching the given filters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			filter, err := buildFilter(family, asn, country, flags)
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			return streamNetworks(filter)
		},
	}
	cmd.Flags().StringVar(&family, "family", "any", "address family: any, v4, v6")
	cmd.Flags().Uint32Var(&asn, "asn", 0, "restrict to an exact autonomous system number")
	cmd.Flags().StringVar(&country, "country", "", "restrict to an exact country code")
	cmd.Flags().StringVar(&flags, "flags", "", "restrict to flags matching MASK:MATCH (hex), e.g. 0x1:0x1")
	return cmd
}

func newListBogonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-bogons",
		Short: "Stream every network carrying a reserved special country code",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			db, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			it, err := db.ListBogons()
			if err != nil {
				return &exitErr{code: exitUsageOrAuth, err: err}
			}
			defer it.Close()
			return printAll(it)
		},
	}
}

func buildFilter(family string, asn uint32, country, flags string) (locdb.Filter, error) {
	var f locdb.Filter
	switch family {
	case "any", "":
		f.Family = locdb.FamilyAny
	case "v4":
		f.Family = locdb.FamilyV4
	case "v6":
		f.Family = locdb.FamilyV6
	default:
		return f, fmt.Errorf("unknown family %q", family)
	}
	if asn != 0 {
		f.ASNSet = true
		f.ASN = asn
	}
	if country != "" {
		f.CountrySet = true
		f.Country = country
	}
	if flags != "" {
		mask, match, err := parseFlags(flags)
		if err != nil {
			return f, err
		}
		f.FlagsSet = true
		f.FlagsMask = mask
		f.FlagsMatch = match
	}
	return f, nil
}

func parseFlags(s string) (mask, match uint16, err error) {
	parts := strings.SplitN(s, ":", 2)
	maskVal, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid flags mask %q: %w", parts[0], err)
	}
	if len(parts) == 1 {
		return uint16(maskVal), uint16(maskVal), nil
	}
	matchVal, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid flags match %q: %w", parts[1], err)
	}
	return uint16(maskVal), uint16(matchVal), nil
}

func streamNetworks(filter locdb.Filter) error {
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
	return printAll(it)
}

func printAll(it *locdb.NetworkIterator) error {
	for {
		net, ok := it.Next()
		if !ok {
			return nil
		}
		fmt.Printf("%s\tcountry=%s\tasn=%d\tflags=0x%x\n", net, net.CountryCode, net.ASN, net.Flags)
	}
}
