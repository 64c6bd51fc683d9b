package main

import (
	"fmt"

	"github.com/aligator/serialdisk/link"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the available serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPorts(cmd, afero.NewOsFs())
		},
	}
}

func listPorts(cmd *cobra.Command, fs afero.Fs) error {
	ports, err := link.ListPorts(fs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Available ports:")
	for _, p := range ports {
		fmt.Fprintf(out, "- %s\n", p)
	}
	return nil
}
