package serialdisk

import (
	"errors"
	"path"

	"github.com/aligator/serialdisk/checkpoint"
)

// WriteFile replaces the content of the file, creating it with AttrArchive if it does not
// exist yet. The chain is resized to exactly the clusters the data needs; the unused rest of
// the last cluster is zero filled.
// Nothing changes if there is not enough space.
func (v *Volume) WriteFile(name string, data []byte) error {
	if err := v.writeFile(name, data); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure, Path: cleanPath(name)})
}

func (v *Volume) writeFile(name string, data []byte) error {
	name = cleanPath(name)
	if name == "" {
		return checkpoint.Wrapf(ErrIsDirectory, "root directory")
	}
	if int64(len(data)) > v.layout.MaxFileSize() {
		return checkpoint.Wrapf(ErrOutOfSpace, "%q has %d bytes, at most %d fit", name, len(data), v.layout.MaxFileSize())
	}

	needed := v.layout.ClustersFor(int64(len(data)))

	entry, err := v.FindEntry(name)
	switch {
	case errors.Is(err, ErrNotFound):
		entry, err = v.createEntry(path.Dir(name), path.Base(name), AttrArchive, needed)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	case entry.IsDir():
		return checkpoint.Wrapf(ErrIsDirectory, "%q", name)
	}

	var chain []Cluster
	if entry.FirstCluster != 0 {
		if chain, err = v.Chain(entry.FirstCluster); err != nil {
			return err
		}
	}

	if grow := needed - len(chain); grow > 0 {
		if free := v.FreeClusters(); free < grow {
			return checkpoint.Wrapf(ErrOutOfSpace, "%q needs %d more clusters, %d free", name, grow, free)
		}
	}

	switch {
	case needed == 0 && len(chain) > 0:
		v.release(chain)
		chain = nil
	case len(chain) == 0 && needed > 0:
		first, err := v.allocateChain(needed)
		if err != nil {
			return err
		}
		if chain, err = v.Chain(first); err != nil {
			return err
		}
	case needed > len(chain):
		added, err := v.extendChain(chain[0], needed-len(chain))
		if err != nil {
			return err
		}
		chain = append(chain, added...)
	case needed < len(chain):
		if err := v.truncateChain(chain[0], needed); err != nil {
			return err
		}
		chain = chain[:needed]
	}

	clusterBytes := v.layout.ClusterBytes()
	for i, c := range chain {
		end := (i + 1) * clusterBytes
		if end > len(data) {
			end = len(data)
		}
		v.writeCluster(c, data[i*clusterBytes:end])
	}

	entry.Size = uint32(len(data))
	entry.FirstCluster = 0
	if len(chain) > 0 {
		entry.FirstCluster = chain[0]
	}
	entry.Modified = v.now()

	d, err := v.openDirectory(entry.dir)
	if err != nil {
		return err
	}
	return v.storeSlot(d, entry.slot, entry.header())
}

// ReadFile returns the content of a file.
//
// Content the remote did not write completely yet returns ErrIncomplete, a chain shorter
// than the size needs returns ErrBrokenChain.
func (v *Volume) ReadFile(name string) ([]byte, error) {
	entry, err := v.FindEntry(name)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, checkpoint.Wrapf(ErrIsDirectory, "%q", name)
	}
	return v.readFileAt(entry, 0, int64(entry.Size))
}

// readFileAt reads up to size bytes starting at offset. Only the clusters in that range have
// to be initialized.
func (v *Volume) readFileAt(entry DirectoryEntry, offset, size int64) ([]byte, error) {
	fileSize := int64(entry.Size)
	if offset < 0 || size < 0 {
		return nil, checkpoint.Wrapf(ErrInvalidArgument, "offset %d, size %d", offset, size)
	}
	if offset >= fileSize || size == 0 {
		return []byte{}, nil
	}
	if offset+size > fileSize {
		size = fileSize - offset
	}

	if entry.FirstCluster == 0 {
		return nil, checkpoint.Wrapf(ErrBrokenChain, "%v has %d bytes but no cluster", entry.Name, fileSize)
	}
	chain, err := v.Chain(entry.FirstCluster)
	if err != nil {
		return nil, err
	}
	if needed := v.layout.ClustersFor(fileSize); len(chain) < needed {
		return nil, checkpoint.Wrapf(ErrBrokenChain, "%v has %d clusters, %d needed", entry.Name, len(chain), needed)
	}

	clusterBytes := int64(v.layout.ClusterBytes())
	firstIndex := offset / clusterBytes
	lastIndex := (offset + size - 1) / clusterBytes

	out := make([]byte, 0, (lastIndex-firstIndex+1)*clusterBytes)
	for i := firstIndex; i <= lastIndex; i++ {
		data, err := v.readCluster(chain[i])
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}

	start := offset - firstIndex*clusterBytes
	return out[start : start+size], nil
}

// MediaParameters describes the volume for the remote disk driver.
type MediaParameters struct {
	BytesPerSector    uint16
	SectorsPerCluster uint16
	BytesPerCluster   uint16
	RootDirSectors    uint16
	SectorsPerFAT     uint16
	SecondFATSector   uint16
	FirstDataSector   uint16
	Clusters          uint16
	FATWidth          uint8
	FATCount          uint8
	Media             uint8
	TotalSectors      uint32
}

// MediaParameters returns the parameter block of the volume.
// SecondFATSector equals the first FAT sector if there is only one FAT.
func (v *Volume) MediaParameters() MediaParameters {
	l := v.layout
	second := l.FirstFATSector
	if l.FATCount > 1 {
		second = l.FATSector(1)
	}

	return MediaParameters{
		BytesPerSector:    uint16(l.BytesPerSector),
		SectorsPerCluster: uint16(l.SectorsPerCluster),
		BytesPerCluster:   uint16(l.ClusterBytes()),
		RootDirSectors:    uint16(l.RootDirSectors),
		SectorsPerFAT:     uint16(l.SectorsPerFAT),
		SecondFATSector:   uint16(second),
		FirstDataSector:   uint16(l.FirstDataSector),
		Clusters:          uint16(l.Clusters),
		FATWidth:          uint8(l.FATWidth),
		FATCount:          uint8(l.FATCount),
		Media:             l.Media,
		TotalSectors:      uint32(l.TotalSectors),
	}
}

// Check audits the whole volume: every chain has to terminate, no cluster may belong to two
// entries and every file needs enough clusters for its size.
// Cycles and cross linked clusters are a ContractViolation.
func (v *Volume) Check() error {
	owner := make(map[Cluster]string)

	return v.Walk("", func(name string, e DirectoryEntry) error {
		if e.FirstCluster == 0 {
			if e.IsDir() {
				return checkpoint.Wrapf(ErrBrokenChain, "directory %q has no cluster", name)
			}
			if e.Size > 0 {
				return checkpoint.Wrapf(ErrBrokenChain, "%q has %d bytes but no cluster", name, e.Size)
			}
			return nil
		}

		chain, err := v.Chain(e.FirstCluster)
		if err != nil {
			return checkpoint.Wrapf(err, "chain of %q", name)
		}
		for _, c := range chain {
			if other, ok := owner[c]; ok {
				return violationf("cluster %d belongs to %q and %q", c, other, name)
			}
			owner[c] = name
		}

		if !e.IsDir() {
			if needed := v.layout.ClustersFor(int64(e.Size)); needed != len(chain) {
				return checkpoint.Wrapf(ErrBrokenChain, "%q has %d bytes in %d clusters", name, e.Size, len(chain))
			}
		}
		return nil
	})
}
