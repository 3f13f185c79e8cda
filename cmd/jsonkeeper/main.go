package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "jsonkeeper",
		Short:   "JSONkeeper - a JSON and JSON-LD document store",
		Long:    "Stores JSON documents with optional access control and publishes a Change Discovery activity stream for configured JSON-LD types.",
		Version: version,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "/etc/jsonkeeper/config.yaml", "path to the configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGCCommand(opts))

	return cmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
