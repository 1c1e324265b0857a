package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for treecrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treecrawl",
		Short: "Concurrent directory tree crawler and manifest builder",
		Long: `treecrawl lists a directory tree with a pool of concurrent workers and
builds a manifest of every file and directory below a root.

Roots can be local directories, FTP servers (ftp://) or HTTP directory
indexes (http:// and https://). Each crawl is stored in a local database
so that later crawls of the same root can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getPersistentBool reads a global boolean flag from the command or, when
// the command runs on its own, from its root.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}
