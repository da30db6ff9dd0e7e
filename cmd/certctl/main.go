package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"certreg/cmd/certctl/commands"
)

var rootCmd = &cobra.Command{
	Use:           "certctl",
	Short:         "Client tooling for the certificate registry",
	Long:          "certctl generates signer keys, derives record addresses and mints signer tokens for the certificate registry API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(commands.NewKeygenCommand())
	rootCmd.AddCommand(commands.NewAddressCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
