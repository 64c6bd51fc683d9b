package hosttree

import (
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Import builds a new volume from the host folder root.
//
// The folder is walked depth first in name order. Hidden files (starting with a dot) and
// everything which is neither a regular file nor a directory are skipped. Names are turned
// into unique 8.3 names per directory.
//
// If the tree does not fit, ErrVolumeTooLarge is returned. No volume is returned on any
// error, a partial import is never used.
func Import(src afero.Fs, root string, g serialdisk.Geometry, opts ...serialdisk.Option) (*serialdisk.Volume, *Mapping, error) {
	v, err := serialdisk.NewVolume(g, opts...)
	if err != nil {
		return nil, nil, err
	}

	im := importer{
		src:     src,
		root:    root,
		volume:  v,
		mapping: NewMapping(),
	}
	if err := im.importDir("", ""); err != nil {
		return nil, nil, err
	}

	used := v.Layout().Clusters - v.FreeClusters()
	log.WithField("files", im.files).Infof("Imported %s in %d of %d clusters",
		humanize.IBytes(im.bytes), used, v.Layout().Clusters)

	return v, im.mapping, nil
}

type importer struct {
	src     afero.Fs
	root    string
	volume  *serialdisk.Volume
	mapping *Mapping

	files int
	bytes uint64
}

func (im *importer) hostPath(rel string) string {
	return filepath.Join(im.root, filepath.FromSlash(rel))
}

// importDir copies the content of the host directory hostDir into the volume directory
// volumeDir. Both are relative paths, "" is the root.
func (im *importer) importDir(volumeDir, hostDir string) error {
	infos, err := afero.ReadDir(im.src, im.hostPath(hostDir))
	if err != nil {
		return checkpoint.From(err)
	}

	names := newNameAllocator()
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			log.WithField("path", path.Join(hostDir, info.Name())).Debug("Skipping special file")
			continue
		}

		short, err := names.allocate(info.Name())
		if err != nil {
			return err
		}

		hostPath := path.Join(hostDir, info.Name())
		volumePath := path.Join(volumeDir, short.String())
		if short.String() != info.Name() {
			log.WithField("path", hostPath).Debugf("Stored as %v", short)
		}

		if info.IsDir() {
			if _, err := im.volume.CreateEntry(volumeDir, short.String(), serialdisk.AttrDirectory); err != nil {
				return tooLarge(err, hostPath)
			}
			if err := im.volume.SetModTime(volumePath, info.ModTime()); err != nil {
				return err
			}
			if err := im.addNode(volumePath, hostPath, nil); err != nil {
				return err
			}
			if err := im.importDir(volumePath, hostPath); err != nil {
				return err
			}
			continue
		}

		data, err := afero.ReadFile(im.src, im.hostPath(hostPath))
		if err != nil {
			return checkpoint.From(err)
		}
		if err := im.volume.WriteFile(volumePath, data); err != nil {
			return tooLarge(err, hostPath)
		}
		if err := im.volume.SetModTime(volumePath, info.ModTime()); err != nil {
			return err
		}
		if err := im.addNode(volumePath, hostPath, data); err != nil {
			return err
		}

		im.files++
		im.bytes += uint64(len(data))
	}
	return nil
}

// addNode records the imported entry. The host already holds data, so it counts as exported.
func (im *importer) addNode(volumePath, hostPath string, data []byte) error {
	entry, err := im.volume.FindEntry(volumePath)
	if err != nil {
		return err
	}

	n := &Node{
		VolumePath:   volumePath,
		HostPath:     hostPath,
		Dir:          entry.IsDir(),
		FirstCluster: entry.FirstCluster,
		Size:         entry.Size,
		Modified:     entry.Modified,
	}
	if !n.Dir {
		n.Digest = digest(data)
		n.Exported = true
	}
	im.mapping.Add(n)
	return nil
}

// tooLarge turns the space errors of the volume into ErrVolumeTooLarge.
func tooLarge(err error, hostPath string) error {
	if errors.Is(err, serialdisk.ErrOutOfSpace) || errors.Is(err, serialdisk.ErrDirectoryFull) {
		return checkpoint.Wrapf(serialdisk.ErrVolumeTooLarge, "%q does not fit: %v", hostPath, err)
	}
	return err
}
