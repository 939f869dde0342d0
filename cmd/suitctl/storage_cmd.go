/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/suit"
	"github.com/kentakayama/suit-storage/internal/util"
)

// parseClassID accepts a UUID, or VENDOR-DOMAIN/CLASS from which the
// RFC 9124 class id is derived.
func parseClassID(s string) (uuid.UUID, error) {
	if id, err := uuid.Parse(s); err == nil {
		return id, nil
	}
	vendor, class, ok := strings.Cut(s, "/")
	if !ok || vendor == "" || class == "" {
		return uuid.Nil, fmt.Errorf("class %q is neither a UUID nor VENDOR-DOMAIN/CLASS", s)
	}
	return suit.ClassID(suit.VendorID(vendor), class), nil
}

// parseRegion accepts ADDRESS:SIZE, both in any base strconv understands.
func parseRegion(s string) (model.Region, error) {
	addr, size, ok := strings.Cut(s, ":")
	if !ok {
		return model.Region{}, fmt.Errorf("region %q is not ADDRESS:SIZE", s)
	}
	a, err := strconv.ParseUint(addr, 0, 64)
	if err != nil {
		return model.Region{}, fmt.Errorf("region address: %w", err)
	}
	n, err := strconv.ParseUint(size, 0, 64)
	if err != nil {
		return model.Region{}, fmt.Errorf("region size: %w", err)
	}
	return model.Region{Address: a, Size: n}, nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("index %q: %w", s, err)
	}
	return i, nil
}

func cmdInstall() *cobra.Command {
	return &cobra.Command{
		Use:     "install CLASS ENVELOPE-FILE",
		Short:   "Install a SUIT envelope for a class",
		GroupID: "storage",
		Args:    cobra.ExactArgs(2),
		RunE: withBoard(func(cmd *cobra.Command, b *board, args []string) error {
			classID, err := parseClassID(args[0])
			if err != nil {
				return err
			}
			envelope, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := b.store.InstallEnvelope(classID, envelope); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", classID)
			return nil
		}),
	}
}

func cmdEnvelope() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "envelope",
		Short:   "Inspect installed envelopes",
		GroupID: "storage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the classes with an installed envelope",
		Args:  cobra.NoArgs,
		RunE: withBoard(func(cmd *cobra.Command, b *board, _ []string) error {
			ids, err := b.store.InstalledClassIDs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				ie, err := b.store.InstalledEnvelope(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tseq=%d\t%s\n", id, ie.SequenceNumber, ie.Region)
			}
			return nil
		}),
	})

	get := &cobra.Command{
		Use:   "get CLASS",
		Short: "Print the installed envelope of a class",
		Args:  cobra.ExactArgs(1),
		RunE: withBoard(func(cmd *cobra.Command, b *board, args []string) error {
			classID, err := parseClassID(args[0])
			if err != nil {
				return err
			}
			ie, err := b.store.InstalledEnvelope(classID)
			if err != nil {
				return err
			}
			if out, _ := cmd.Flags().GetString("output"); out != "" {
				return os.WriteFile(out, ie.Envelope, 0o644)
			}
			if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
				text, err := util.RenderCBORPretty(ie.Envelope)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", ie.Envelope)
			return nil
		}),
	}
	get.Flags().Bool("pretty", false, "decode the envelope")
	get.Flags().StringP("output", "o", "", "write the raw envelope to a file")
	cmd.AddCommand(get)
	return cmd
}

func cmdCandidate() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "candidate",
		Short:   "Manage the update candidate",
		GroupID: "storage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the regions of the update candidate",
		Args:  cobra.NoArgs,
		RunE: withBoard(func(cmd *cobra.Command, b *board, _ []string) error {
			regions, err := b.store.UpdateCandidate()
			if err != nil {
				return err
			}
			for _, r := range regions {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set ADDRESS:SIZE...",
		Short: "Record the regions of the update candidate",
		Args:  cobra.MinimumNArgs(1),
		RunE: withBoard(func(_ *cobra.Command, b *board, args []string) error {
			regions := make([]model.Region, 0, len(args))
			for _, a := range args {
				r, err := parseRegion(a)
				if err != nil {
					return err
				}
				regions = append(regions, r)
			}
			return b.store.SetUpdateCandidate(regions)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the update candidate",
		Args:  cobra.NoArgs,
		RunE: withBoard(func(_ *cobra.Command, b *board, _ []string) error {
			return b.store.ClearUpdateCandidate()
		}),
	})
	return cmd
}

func cmdVar() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "var",
		Short:   "Read and write non-volatile variables",
		GroupID: "storage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get INDEX",
		Short: "Print a variable",
		Args:  cobra.ExactArgs(1),
		RunE: withBoard(func(cmd *cobra.Command, b *board, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			v, err := b.store.Var(i)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set INDEX VALUE",
		Short: "Write a variable",
		Args:  cobra.ExactArgs(2),
		RunE: withBoard(func(_ *cobra.Command, b *board, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			v, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("value %q: %w", args[1], err)
			}
			return b.store.SetVar(i, uint32(v))
		}),
	})
	return cmd
}

func cmdReport() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Manage saved reports",
		GroupID: "storage",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "read INDEX",
		Short: "Print a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: withBoard(func(cmd *cobra.Command, b *board, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			report, err := b.store.Report(i)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", report)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "save INDEX FILE",
		Short: "Save a report from a file",
		Args:  cobra.ExactArgs(2),
		RunE: withBoard(func(_ *cobra.Command, b *board, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			report, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return b.store.SaveReport(i, report)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear INDEX",
		Short: "Erase a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: withBoard(func(_ *cobra.Command, b *board, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return b.store.ClearReport(i)
		}),
	})
	return cmd
}

func cmdRecover() *cobra.Command {
	return &cobra.Command{
		Use:     "recover",
		Short:   "Erase records left behind by interrupted writes",
		GroupID: "storage",
		Args:    cobra.NoArgs,
		RunE: withBoard(func(cmd *cobra.Command, b *board, _ []string) error {
			n, err := b.store.RecoverInterrupted()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erased %d banks\n", n)
			return nil
		}),
	}
}
