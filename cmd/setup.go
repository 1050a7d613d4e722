// File: cmd/setup.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/network"
	"github.com/xkilldash9x/scalpeldep/internal/observability"
	"github.com/xkilldash9x/scalpeldep/internal/setup"
)

var setupChromePath string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Ensure a usable Chrome/Chromium binary exists, downloading one if necessary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupChromePath, "chrome-path", "", "override browser binary")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command) error {
	logger := observability.GetLogger()
	if logger == nil {
		logger = zap.NewNop()
	}

	if path, ok := setup.Resolve(setupChromePath, logger); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "found usable browser binary: %s\n", path)
		return nil
	}
	if path, ok := setup.CachedBinary(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "found previously downloaded browser binary: %s\n", path)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "no browser binary found, downloading a stable Chrome build...")

	client := network.NewClient(network.NewDefaultClientConfig())
	downloader := setup.NewDownloader(client, logger)
	path, err := downloader.Download(cmd.Context(), 3)
	if err != nil {
		return fmt.Errorf("download browser binary: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "installed browser binary: %s\n", path)
	return nil
}
