package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chatnest version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chatnest %s (%s)\n", Version, platform())
	},
}

// platform names the build target the way release binaries are labelled.
func platform() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos-" + runtime.GOARCH
	case "linux", "windows":
		return runtime.GOOS + "-" + runtime.GOARCH
	}
	return "unknown"
}
