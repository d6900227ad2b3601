package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "vms-service",
		Short:         "Visitor monitoring service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("VMS_CONFIG"), "Path to a YAML configuration file")

	root.AddCommand(
		serveCommand(&configPath),
		migrateCommand(&configPath),
	)
	return root
}
