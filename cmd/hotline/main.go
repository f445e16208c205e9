// Package main provides the CLI entry point for the hotline IVR service.
//
// The hotline answers phone calls, asks the caller for a US ZIP code, and
// speaks back tomorrow's weather forecast for that location. It is driven
// entirely by call automation webhooks: incoming-call notifications arrive
// on one stream, call lifecycle events on another, and a per-call session
// machine sequences one recognize/respond/hangup cycle per call.
//
// # Basic Usage
//
// Start the server:
//
//	hotline serve --config hotline.yaml
//
// Place the configured outbound call:
//
//	hotline call
//
// # Environment Variables
//
// Configuration values may reference environment variables with ${VAR}
// syntax, commonly:
//
//   - ACS_CONNECTION_STRING: call automation connection string
//   - ACCUWEATHER_API_KEY: weather data service API key
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "hotline",
		Short:         "Telephony IVR weather hotline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildCallCmd(),
		buildVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hotline version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
