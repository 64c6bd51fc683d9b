package serialdisk

import (
	"fmt"

	"github.com/aligator/serialdisk/checkpoint"
)

// Sector is an absolute sector index on the volume, counted from the boot sector.
type Sector uint32

// Cluster is a data cluster index. Valid data clusters start at FirstCluster.
// The value 0 is used by directory entries to mean "no cluster" (empty files, the root directory).
type Cluster uint16

// FatSlot is an index into a FAT. Slots 0 and 1 are reserved, every other slot belongs to
// the data cluster with the same number.
type FatSlot uint32

// FirstCluster is the lowest cluster index which addresses the data region.
const FirstCluster Cluster = 2

// Slot returns the FAT slot describing the cluster.
func (c Cluster) Slot() FatSlot {
	return FatSlot(c)
}

// Region names the four areas a volume is made of.
type Region uint8

const (
	RegionReserved Region = iota
	RegionFAT
	RegionRoot
	RegionData
)

func (r Region) String() string {
	switch r {
	case RegionReserved:
		return "reserved"
	case RegionFAT:
		return "fat"
	case RegionRoot:
		return "root"
	case RegionData:
		return "data"
	default:
		return fmt.Sprintf("region(%d)", uint8(r))
	}
}

// Layout is the fully computed geometry of a volume.
// It is the only place which turns sectors and clusters into positions, everything
// above it addresses the volume through Sector and Cluster values.
type Layout struct {
	Geometry

	// FATWidth is 12 or 16 and never changes after the volume was created.
	FATWidth        int
	SectorsPerFAT   int
	RootDirSectors  int
	FirstFATSector  Sector
	RootSector      Sector
	FirstDataSector Sector
	TotalSectors    Sector
}

// fat12MaxClusters is the cluster count from which on a volume has to use FAT16.
const fat12MaxClusters = 4085

// fat16MaxClusters is the highest cluster count FAT16 can address (0xFFF4).
const fat16MaxClusters = 65524

// NewLayout validates the geometry and derives all region positions from it.
func NewLayout(g Geometry) (Layout, error) {
	if err := g.validate(); err != nil {
		return Layout{}, err
	}

	l := Layout{Geometry: g}

	// The FAT width is decided by the cluster count only.
	l.FATWidth = 16
	if g.Clusters < fat12MaxClusters {
		l.FATWidth = 12
	}

	slots := g.Clusters + int(FirstCluster)
	fatBytes := slots * 2
	if l.FATWidth == 12 {
		fatBytes = (slots*3 + 1) / 2
	}
	l.SectorsPerFAT = ceilDiv(fatBytes, g.BytesPerSector)
	l.RootDirSectors = ceilDiv(g.RootEntryCount*dirEntrySize, g.BytesPerSector)

	l.FirstFATSector = Sector(g.ReservedSectors)
	l.RootSector = l.FirstFATSector + Sector(g.FATCount*l.SectorsPerFAT)
	l.FirstDataSector = l.RootSector + Sector(l.RootDirSectors)
	l.TotalSectors = l.FirstDataSector + Sector(g.Clusters*g.SectorsPerCluster)

	return l, nil
}

// ClusterBytes is the size of one cluster in bytes.
func (l Layout) ClusterBytes() int {
	return l.BytesPerSector * l.SectorsPerCluster
}

// LastCluster is the highest valid data cluster index.
func (l Layout) LastCluster() Cluster {
	return Cluster(l.Clusters + int(FirstCluster) - 1)
}

// ValidCluster reports whether c addresses the data region.
func (l Layout) ValidCluster(c Cluster) bool {
	return c >= FirstCluster && c <= l.LastCluster()
}

// MaxFileSize is the biggest file the volume could hold if it were empty.
func (l Layout) MaxFileSize() int64 {
	max := int64(l.Clusters) * int64(l.ClusterBytes())
	// Directory entries store the size as uint32.
	if max > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return max
}

// Contains reports whether s is a sector of the volume.
func (l Layout) Contains(s Sector) bool {
	return s < l.TotalSectors
}

// CheckRange returns ErrAddressOutOfRange if start or any sector of [start, start+count) is
// outside of the volume. An empty range is only valid at a sector of the volume.
func (l Layout) CheckRange(start Sector, count int) error {
	if count < 0 || start >= l.TotalSectors || uint64(start)+uint64(count) > uint64(l.TotalSectors) {
		return checkpoint.Wrapf(ErrAddressOutOfRange, "sectors %d+%d, volume has %d", start, count, l.TotalSectors)
	}
	return nil
}

// Region returns the region the sector belongs to.
// It panics if the sector is outside of the volume, callers must check the range first.
func (l Layout) Region(s Sector) Region {
	switch {
	case !l.Contains(s):
		panic(violationf("sector %d outside of volume with %d sectors", s, l.TotalSectors))
	case s < l.FirstFATSector:
		return RegionReserved
	case s < l.RootSector:
		return RegionFAT
	case s < l.FirstDataSector:
		return RegionRoot
	default:
		return RegionData
	}
}

// FATCopy returns which FAT copy a FAT region sector belongs to and the sector offset inside of it.
func (l Layout) FATCopy(s Sector) (copyIndex int, offset int) {
	if l.Region(s) != RegionFAT {
		panic(violationf("sector %d is not part of a FAT", s))
	}
	rel := int(s - l.FirstFATSector)
	return rel / l.SectorsPerFAT, rel % l.SectorsPerFAT
}

// FATSector returns the first sector of the FAT copy with the given index.
func (l Layout) FATSector(copyIndex int) Sector {
	return l.FirstFATSector + Sector(copyIndex*l.SectorsPerFAT)
}

// ClusterSector returns the first sector of the cluster.
func (l Layout) ClusterSector(c Cluster) Sector {
	if !l.ValidCluster(c) {
		panic(violationf("cluster %d outside of data region [%d, %d]", c, FirstCluster, l.LastCluster()))
	}
	return l.FirstDataSector + Sector(int(c-FirstCluster)*l.SectorsPerCluster)
}

// SectorCluster returns the cluster a data sector belongs to and its index inside of the cluster.
func (l Layout) SectorCluster(s Sector) (Cluster, int) {
	if l.Region(s) != RegionData {
		panic(violationf("sector %d is not part of the data region", s))
	}
	rel := int(s - l.FirstDataSector)
	return FirstCluster + Cluster(rel/l.SectorsPerCluster), rel % l.SectorsPerCluster
}

// ClustersFor returns how many clusters are needed to store size bytes.
func (l Layout) ClustersFor(size int64) int {
	return int((size + int64(l.ClusterBytes()) - 1) / int64(l.ClusterBytes()))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
