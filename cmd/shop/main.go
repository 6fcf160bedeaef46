// Package main is the sockcs storefront shell: browse the catalog, manage
// the cart, check out and run the staff console from a terminal.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/shell"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags are the overrides shared by every subcommand.
type flags struct {
	config   string
	apiBase  string
	logLevel string
}

func rootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "shop",
		Short:         "sockcs storefront shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, f, "")
		},
	}
	cmd.PersistentFlags().StringVarP(&f.config, "config", "c", "", "config file path (JSON)")
	cmd.PersistentFlags().StringVar(&f.apiBase, "api", "", "backend origin, overrides API_BASE")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Start the interactive shell",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runShell(cmd, f, "")
			},
		},
		&cobra.Command{
			Use:   "login",
			Short: "Sign in and store the session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runShell(cmd, f, "login")
			},
		},
		&cobra.Command{
			Use:   "logout",
			Short: "Sign out and forget the stored session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runShell(cmd, f, "logout")
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sockcs shop\nVersion: %s\nBuild Date: %s\n",
					cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
			},
		},
	)
	return cmd
}

// runShell starts the REPL, or runs the single command line when one is given.
func runShell(cmd *cobra.Command, f flags, line string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(f)
	if err != nil {
		return err
	}
	defer a.close()

	sh := shell.New(a.services, cmd.InOrStdin(), cmd.OutOrStdout(), shell.WithLogger(a.log))
	if line == "" {
		a.log.Debug("starting shell", zap.String("api", a.opts.APIBase))
		if err := sh.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	if _, err := a.services.Session.Restore(ctx); err != nil {
		a.log.Debug("restore session", zap.Error(err))
	}
	sh.Exec(ctx, line)
	return nil
}
