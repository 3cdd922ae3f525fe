// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/models"
	"github.com/J-Ellette/GGAS-sub001/internal/services"
)

// readKey prompts for a license key, without echo on a terminal.
func readKey(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "License key: ")
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read license key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read license key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func RunValidateCommand() *cobra.Command {
	var flags runtimeFlags

	command := &cobra.Command{
		Use:   "validate [key]",
		Short: "Validate a license key and make it the active license",
		Long: `Validate a license key against the verification service. When the service
cannot be reached, the last successful validation of the same key is used
for the configured grace period.

The key is read from stdin when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				var err error
				if key, err = readKey(cmd); err != nil {
					return err
				}
			}
			if key == "" {
				return errors.New("license key is required")
			}

			rt, err := openRuntime(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			valid := rt.manager.Validate(cmd.Context(), key)
			printStatus(cmd, rt.manager.Status())
			if !valid {
				return ErrKeyRejected
			}
			return nil
		},
	}
	flags.register(command)

	return command
}

func RunStatusCommand() *cobra.Command {
	var (
		flags   runtimeFlags
		refresh bool
		asJSON  bool
	)

	command := &cobra.Command{
		Use:   "status",
		Short: "Show the active license",
		Long: `Show the license recorded by the last successful validation. With --refresh
the recorded key is validated again first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if refresh {
				rt.manager.Resume(cmd.Context())
				status := rt.manager.Status()
				if asJSON {
					return writeJSON(cmd, status)
				}
				printStatus(cmd, status)
				return nil
			}

			snapshot, err := rt.store.Load(cmd.Context())
			if errors.Is(err, models.ErrSnapshotNotFound) {
				cmd.Println("No license has been validated")
				return nil
			}
			if err != nil {
				return err
			}

			if asJSON {
				snapshot.LicenseKey = license.MaskKey(snapshot.LicenseKey)
				return writeJSON(cmd, snapshot)
			}

			_, grace, _ := rt.cfg.LicenseDurations()
			printSnapshot(cmd, snapshot, grace, rt.snapshot)
			return nil
		},
	}
	flags.register(command)
	command.Flags().BoolVar(&refresh, "refresh", false, "validate the recorded key again")
	command.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	return command
}

func RunClearCommand() *cobra.Command {
	var flags runtimeFlags

	command := &cobra.Command{
		Use:   "clear",
		Short: "Forget the active license and erase its snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.manager.Clear(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("License cleared")
			return nil
		},
	}
	flags.register(command)

	return command
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(cmd *cobra.Command, s services.Status) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "State:\t%s\n", s.State)
	if s.LicenseKey != "" {
		fmt.Fprintf(w, "Key:\t%s\n", s.LicenseKey)
	}
	if s.LicenseType != "" {
		fmt.Fprintf(w, "Type:\t%s\n", s.LicenseType)
	}
	fmt.Fprintf(w, "Features:\t%s\n", featureSummary(s.Features))
	if s.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", s.ExpiresAt.Format(time.DateOnly))
	}
	if s.LastValidatedAt != nil {
		fmt.Fprintf(w, "Validated:\t%s\n", s.LastValidatedAt.Format(time.RFC3339))
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "Error:\t%s\n", s.LastError)
	}
	w.Flush()
}

func printSnapshot(cmd *cobra.Command, s *models.ValidationSnapshot, grace time.Duration, location string) {
	now := time.Now()
	offline := "expired"
	if s.WithinGrace(now, grace) {
		offline = "until " + s.LastValidatedAt.Add(grace).Format(time.RFC3339)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Key:\t%s\n", license.MaskKey(s.LicenseKey))
	fmt.Fprintf(w, "Type:\t%s\n", s.LicenseType)
	fmt.Fprintf(w, "Features:\t%s\n", featureSummary(s.Features))
	if s.ExpiresAt != nil {
		fmt.Fprintf(w, "Expires:\t%s\n", s.ExpiresAt.Format(time.DateOnly))
	} else {
		fmt.Fprintf(w, "Expires:\tnever\n")
	}
	fmt.Fprintf(w, "Validated:\t%s\n", s.LastValidatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Offline use:\t%s\n", offline)
	fmt.Fprintf(w, "Stored in:\t%s\n", location)
	w.Flush()
}

func featureSummary(f license.Features) string {
	names := f.List()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
