package main

import (
	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	"github.com/aligator/serialdisk/hosttree"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump SNAPSHOT [OUT]",
		Short: "Write the files of a volume snapshot into a folder",
		Long: `Write the files of a volume snapshot into a folder.

OUT defaults to the current folder. Existing files with the same name are overwritten.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := "."
			if len(args) == 2 {
				out = args[1]
			}
			return dump(afero.NewOsFs(), args[0], out)
		},
	}
}

func dump(fs afero.Fs, snapshot, out string) error {
	f, err := fs.Open(snapshot)
	if err != nil {
		return checkpoint.From(err)
	}
	defer f.Close()

	v, err := serialdisk.LoadSnapshot(f)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(out, 0o755); err != nil {
		return checkpoint.From(err)
	}
	if err := hosttree.ExportAll(v, afero.NewBasePathFs(fs, out)); err != nil {
		return err
	}

	log.Infof("Dumped %s to %s", snapshot, out)
	return nil
}
