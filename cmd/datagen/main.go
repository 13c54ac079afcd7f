// Package main provides the datagen command line tool. It generates the
// synthetic loyalty dataset and manages the stores its runs are loaded into.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "datagen",
		Short:         "Synthetic loyalty and referral dataset generator",
		Long:          "datagen generates a reproducible synthetic dataset of schools, users, products, referrals, purchases and events, and loads it into the configured snapshot stores.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newLatestCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
