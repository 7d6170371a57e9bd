package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/cobra"

	"github.com/rkovacs/medit/internal/app"
	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "medit:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "medit [file]",
		Short: "Terminal Markdown editor with live WYSIWYG rendering and LSP support",
		Long: `medit edits Markdown in the terminal: the cursor line shows raw
source while every other line renders formatted. Language servers
provide completion, diagnostics, and navigation.

Piped input is edited and written back to stdout:

  cat notes.md | medit | tee filtered.md`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(debug); err != nil {
				return err
			}
			defer logger.Close()

			opts := app.Options{}
			if len(args) > 0 {
				opts.Path = args[0]
			}
			return app.New(opts).Run()
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.AddCommand(initConfigCmd(), listThemesCmd())
	return cmd
}

// initConfigCmd writes the default configuration for the user to edit.
func initConfigCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// listThemesCmd prints the syntax highlighting styles accepted by the
// editor.theme config key.
func listThemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-themes",
		Short: "List available syntax highlighting themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range styles.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
