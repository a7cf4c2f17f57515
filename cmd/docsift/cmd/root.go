// Package cmd provides the CLI commands for docsift.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/pkg/version"
)

// NewRootCmd creates the root command for the docsift CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsift",
		Short: "Local hybrid search over your documents",
		Long: `docsift indexes local directories and browser bookmarks and serves
hybrid search (BM25 + semantic) over the extracted content.

Register sources over the HTTP API, trigger scans, and query the
combined index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docsift version {{.Version}}\n")

	cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
