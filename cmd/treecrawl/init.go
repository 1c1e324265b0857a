package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/treecrawl/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/treecrawl.yaml
var configTemplate embed.FS

// templatePath is the location of the template inside configTemplate.
const templatePath = "templates/treecrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new treecrawl configuration file",
		Long: `Initialize creates a new .treecrawl configuration file in the current directory.

The generated file includes:
- Default worker, retry and metadata settings
- Commented examples for per-root configuration
- Documentation for all available options

Examples:
  # Create .treecrawl in current directory
  treecrawl init

  # Create config file at a specific path
  treecrawl init -o myconfig.yaml

  # Force overwrite existing file
  treecrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Root entries may carry credentials, so the file is owner-only.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure per-root settings such as:")
	fmt.Fprintln(out, "  - Worker count and retry limits")
	fmt.Fprintln(out, "  - Include and exclude patterns")
	fmt.Fprintln(out, "  - HTTP headers and entry metadata")

	return nil
}
