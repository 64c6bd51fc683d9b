// Command serialdisk serves a host folder as disk drive over a serial link.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newCmd() *cobra.Command {
	var (
		flagQuiet       bool
		flagVerbose     int
		flagVerboseName = "verbose"
	)
	cmd := &cobra.Command{
		Use:               "serialdisk",
		Short:             "Serve a host folder as FAT disk over a serial link",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(flagQuiet, flagVerbose, cmd.Flag(flagVerboseName).Changed)
		},
	}

	cmd.AddCommand(mountCmd())
	cmd.AddCommand(dumpCmd())
	cmd.AddCommand(portsCmd())
	cmd.AddCommand(versionCmd())

	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Quiet execution")
	cmd.PersistentFlags().IntVarP(&flagVerbose, flagVerboseName, "v", 1, "Verbosity of logging: 0 = quiet, 1 = info, 2 = debug, 3 = trace. Setting it explicitly will create structured logging lines.")

	return cmd
}

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Debugf("Exit: %+v", err)
		os.Exit(1)
	}
}
