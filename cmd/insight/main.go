// Package main implements the insight CLI for driving an insightd server:
// uploading files, submitting sources, polling jobs and asking questions.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string

	root := &cobra.Command{
		Use:   "insight",
		Short: "CLI for insightd HTTP server operations",
		Long: `insight is a command-line interface for the insightd HTTP server.
It uploads files, submits sources for processing, follows jobs and asks
questions about indexed content.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "insightd server URL")

	client := func() *apiClient { return newAPIClient(serverURL) }

	root.AddCommand(
		newHealthCmd(client),
		newUploadCmd(client),
		newSubmitCmd(client),
		newStatusCmd(client),
		newWaitCmd(client),
		newAskCmd(client),
	)
	return root
}
