// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
)

// ErrKeyRejected is returned by commands whose key check failed.
var ErrKeyRejected = errors.New("license key rejected")

func RunGenerateKeyCommand() *cobra.Command {
	var (
		customerID  string
		licenseType string
		features    string
		days        int
	)

	command := &cobra.Command{
		Use:   "generate",
		Short: "Generate a license key",
		Long: `Generate a license key for a customer.

Features are given as a comma separated list of names, or "all" / "none":
  ` + strings.Join(license.FeatureNames(), ", ") + `

Without --days the key never expires.`,
		Example: `  ggas generate --customer acme --type enterprise --features all --days 365`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := license.ParseLicenseType(licenseType)
			if err != nil {
				return err
			}

			f, err := license.ParseFeatureList(features)
			if err != nil {
				return err
			}

			params := license.GenerateParams{
				CustomerID:  customerID,
				LicenseType: lt,
				Features:    f,
			}
			if cmd.Flags().Changed("days") {
				params.ExpirationDays = &days
			}

			key, err := license.NewCodec().Generate(params)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	command.Flags().StringVar(&customerID, "customer", "", "customer identifier")
	command.Flags().StringVar(&licenseType, "type", string(license.LicenseTypeStandard), "license type: trial, standard or enterprise")
	command.Flags().StringVar(&features, "features", "", "comma separated feature names, \"all\" or \"none\"")
	command.Flags().IntVar(&days, "days", 0, "days until the key expires")
	command.MarkFlagRequired("customer")

	return command
}

func RunInspectCommand() *cobra.Command {
	var asJSON bool

	command := &cobra.Command{
		Use:   "inspect <key>",
		Short: "Decode a license key without contacting the verification service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := license.NewCodec().Decode(strings.ToUpper(args[0]))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}

			expires := "never"
			if payload.ExpiresAt != nil {
				expires = payload.ExpiresAt.Format(time.DateOnly)
			}
			enabled := "none"
			if names := payload.Features.List(); len(names) > 0 {
				enabled = strings.Join(names, ", ")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Product:\t%s%s\n", payload.ProductCode, payload.VersionCode)
			fmt.Fprintf(w, "Type:\t%s\n", payload.LicenseType)
			fmt.Fprintf(w, "Customer hash:\t%s\n", payload.CustomerHash)
			fmt.Fprintf(w, "Features:\t%s\n", enabled)
			fmt.Fprintf(w, "Expires:\t%s\n", expires)
			return w.Flush()
		},
	}

	command.Flags().BoolVar(&asJSON, "json", false, "print the decoded key as JSON")

	return command
}

func RunCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <key>",
		Short: "Check a key's format and expiration offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := license.NewCodec()
			key := strings.ToUpper(args[0])

			if !codec.ValidateFormat(key) {
				cmd.Println("Key format: invalid")
				return fmt.Errorf("%w: %v", ErrKeyRejected, license.ErrMalformedKey)
			}
			cmd.Println("Key format: ok")

			if _, err := codec.Decode(key); err != nil {
				return fmt.Errorf("%w: %v", ErrKeyRejected, err)
			}

			if codec.IsExpired(key) {
				cmd.Println("Expiration: expired")
				return fmt.Errorf("%w: key has expired", ErrKeyRejected)
			}
			cmd.Println("Expiration: ok")
			return nil
		},
	}
}
