package hosttree

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	"github.com/spf13/afero"
)

// ExportAll writes the whole volume into dst, using the volume names.
// Content which cannot be read completely fails the export.
func ExportAll(v *serialdisk.Volume, dst afero.Fs) error {
	view := serialdisk.NewFs(v)

	var ops []Op
	err := afero.Walk(view, "/", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(name), "/")
		if rel == "" {
			return nil
		}

		if info.IsDir() {
			ops = append(ops, Op{Kind: OpMkdir, Path: rel})
			return nil
		}

		data, err := afero.ReadFile(view, name)
		if err != nil {
			return err
		}
		ops = append(ops, Op{Kind: OpWrite, Path: rel, Data: data, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return checkpoint.From(err)
	}

	return NewApplier(dst).Submit(ops)
}
