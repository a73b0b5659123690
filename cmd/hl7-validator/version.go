package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	hl7validator "github.com/gofhir/hl7validator"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hl7-validator %s\n", hl7validator.Version)
		fmt.Fprintf(out, "Minimum ELR version: HL7 v%s\n", hl7validator.MinELRVersion)
		fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
