package serialdisk

import (
	"fmt"
	"strings"

	"github.com/aligator/serialdisk/checkpoint"
)

// Geometry is the user selectable shape of a volume. Everything else is derived by NewLayout.
type Geometry struct {
	BytesPerSector    int  `cbor:"1,keyasint"`
	SectorsPerCluster int  `cbor:"2,keyasint"`
	ReservedSectors   int  `cbor:"3,keyasint"`
	FATCount          int  `cbor:"4,keyasint"`
	RootEntryCount    int  `cbor:"5,keyasint"`
	Clusters          int  `cbor:"6,keyasint"`
	Media             byte `cbor:"7,keyasint"`
}

// PartitionType selects the sector size the remote driver works with.
type PartitionType string

const (
	// PartitionGEM uses standard 512 byte sectors.
	PartitionGEM PartitionType = "GEM"
	// PartitionBGM uses big 8192 byte logical sectors which allow bigger volumes.
	PartitionBGM PartitionType = "BGM"
)

// BytesPerSector returns the sector size of the partition type.
func (p PartitionType) BytesPerSector() (int, error) {
	switch PartitionType(strings.ToUpper(string(p))) {
	case PartitionGEM:
		return 512, nil
	case PartitionBGM:
		return 8192, nil
	default:
		return 0, checkpoint.Wrapf(ErrInvalidGeometry, "unknown partition type %q", string(p))
	}
}

// OSVersion selects how many clusters the remote operating system can address.
type OSVersion string

const (
	// OSVersion100 supports 14 bit cluster numbers.
	OSVersion100 OSVersion = "V100"
	// OSVersion104 supports 15 bit cluster numbers.
	OSVersion104 OSVersion = "V104"
)

// ClusterLimit returns the highest cluster count the version can handle.
func (v OSVersion) ClusterLimit() (int, error) {
	switch OSVersion(strings.ToUpper(string(v))) {
	case OSVersion100:
		return 0x3FFF, nil
	case OSVersion104:
		return 0x7FFF, nil
	default:
		return 0, checkpoint.Wrapf(ErrInvalidGeometry, "unknown OS version %q", string(v))
	}
}

// DefaultGeometry returns the geometry for the given partition type and OS version using two
// sectors per cluster and a root directory of rootSectors sectors.
func DefaultGeometry(partition PartitionType, version OSVersion, rootSectors int) (Geometry, error) {
	bps, err := partition.BytesPerSector()
	if err != nil {
		return Geometry{}, err
	}
	clusters, err := version.ClusterLimit()
	if err != nil {
		return Geometry{}, err
	}

	return Geometry{
		BytesPerSector:    bps,
		SectorsPerCluster: 2,
		ReservedSectors:   1,
		FATCount:          2,
		RootEntryCount:    rootSectors * bps / dirEntrySize,
		Clusters:          clusters,
		Media:             0xF8,
	}, nil
}

func (g Geometry) validate() error {
	// The sector sizes FAT supports plus the big logical sectors of BGM partitions.
	switch g.BytesPerSector {
	case 512, 1024, 2048, 4096, 8192:
	default:
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid sector size %d", g.BytesPerSector)
	}

	// Sectors per cluster has to be a power of two and greater than 0.
	if g.SectorsPerCluster <= 0 || g.SectorsPerCluster > 128 || g.SectorsPerCluster&(g.SectorsPerCluster-1) != 0 {
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid sectors per cluster %d", g.SectorsPerCluster)
	}
	// The remote driver stores the cluster size in 16 bits.
	if g.BytesPerSector*g.SectorsPerCluster > 32*1024 {
		return checkpoint.Wrapf(ErrInvalidGeometry, "cluster size %d exceeds 32K", g.BytesPerSector*g.SectorsPerCluster)
	}

	// The reserved sector count must at least hold the boot sector.
	if g.ReservedSectors < 1 {
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid reserved sector count %d", g.ReservedSectors)
	}

	if g.FATCount != 1 && g.FATCount != 2 {
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid FAT count %d", g.FATCount)
	}

	// The root directory has to fill whole sectors.
	if g.RootEntryCount <= 0 || (g.RootEntryCount*dirEntrySize)%g.BytesPerSector != 0 {
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid root entry count %d", g.RootEntryCount)
	}

	if g.Clusters < 1 || g.Clusters > fat16MaxClusters {
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid cluster count %d", g.Clusters)
	}

	if g.Media != 0xF0 && g.Media < 0xF8 {
		return checkpoint.Wrapf(ErrInvalidGeometry, "invalid media value %#02x", g.Media)
	}

	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%d bytes/sector, %d sectors/cluster, %d clusters, %d root entries, %d FATs",
		g.BytesPerSector, g.SectorsPerCluster, g.Clusters, g.RootEntryCount, g.FATCount)
}
