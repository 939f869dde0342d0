/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Command suitctl manages the SUIT storage of a device image and serves it
// over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "suitctl",
		Short:         "SUIT storage and fetch tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "configuration file (YAML)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log storage activity to stderr")

	root.AddGroup(&cobra.Group{ID: "run", Title: "Daemons"})
	root.AddCommand(cmdServe())

	root.AddGroup(&cobra.Group{ID: "storage", Title: "Storage Commands"})
	root.AddCommand(cmdInstall())
	root.AddCommand(cmdEnvelope())
	root.AddCommand(cmdCandidate())
	root.AddCommand(cmdVar())
	root.AddCommand(cmdReport())
	root.AddCommand(cmdRecover())

	root.AddGroup(&cobra.Group{ID: "fetch", Title: "Fetch Commands"})
	root.AddCommand(cmdFetch())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "suitctl:", err)
		os.Exit(1)
	}
}
