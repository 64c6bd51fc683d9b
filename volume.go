package serialdisk

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/aligator/serialdisk/checkpoint"
)

// clusterData holds the sector buffers of one cluster. A nil sector has never been written.
type clusterData struct {
	sectors [][]byte
}

func (d *clusterData) initialized() bool {
	for _, s := range d.sectors {
		if s == nil {
			return false
		}
	}
	return true
}

// Volume is a complete FAT12/16 volume held in memory.
//
// The volume is not safe for concurrent use. It is driven by a single command loop and
// never touched by more than one goroutine at a time.
type Volume struct {
	layout Layout

	// boot contains the whole reserved region, the BPB lives in its first sector.
	boot []byte
	fats []*FatTable
	root []byte

	// arena maps data clusters to their backing sectors.
	// A cluster without arena entry, or with nil sectors, has no data.
	arena map[Cluster]*clusterData

	observer     Observer
	mediaChanged bool
	now          func() time.Time
}

// Option configures a new Volume.
type Option func(v *Volume)

// WithClock sets the time source used for directory entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Volume) {
		v.now = now
	}
}

// WithObserver sets the observer which is notified about every change.
func WithObserver(o Observer) Option {
	return func(v *Volume) {
		v.observer = o
	}
}

// NewVolume creates an empty, formatted volume.
func NewVolume(g Geometry, opts ...Option) (*Volume, error) {
	layout, err := NewLayout(g)
	if err != nil {
		return nil, err
	}

	v := &Volume{
		layout:       layout,
		boot:         make([]byte, g.ReservedSectors*g.BytesPerSector),
		root:         make([]byte, layout.RootDirSectors*g.BytesPerSector),
		arena:        make(map[Cluster]*clusterData),
		mediaChanged: true,
		now:          time.Now,
	}

	for i := 0; i < g.FATCount; i++ {
		v.fats = append(v.fats, newFatTable(layout))
	}

	if err := v.writeBootSector(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Layout returns the geometry of the volume.
func (v *Volume) Layout() Layout {
	return v.layout
}

// SetObserver replaces the observer. nil disables notifications.
func (v *Volume) SetObserver(o Observer) {
	v.observer = o
}

// FAT returns the primary FAT.
func (v *Volume) FAT() *FatTable {
	return v.fats[0]
}

// FreeClusters counts the free data clusters.
func (v *Volume) FreeClusters() int {
	return v.fats[0].freeCount(v.layout)
}

// AcknowledgeMediaChange returns whether the media changed since the last acknowledgement
// and resets the flag. A fresh volume counts as changed media.
func (v *Volume) AcknowledgeMediaChange() bool {
	changed := v.mediaChanged
	v.mediaChanged = false
	return changed
}

func (v *Volume) notify(ev Event) error {
	if v.observer == nil {
		return nil
	}
	return v.observer.VolumeChanged(v, ev)
}

// writeBootSector encodes the BPB into the first sector.
func (v *Volume) writeBootSector() error {
	l := v.layout
	bpb := BPB{
		BSJumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:      uint16(l.BytesPerSector),
		SectorsPerCluster:   byte(l.SectorsPerCluster),
		ReservedSectorCount: uint16(l.ReservedSectors),
		NumFATs:             byte(l.FATCount),
		RootEntryCount:      uint16(l.RootEntryCount),
		Media:               l.Media,
		FATSize16:           uint16(l.SectorsPerFAT),
		SectorsPerTrack:     9,
		NumberOfHeads:       2,
		FATSpecificData: FAT16SpecificData{
			BSDriveNumber:   0x80,
			BSBootSignature: 0x29,
		},
	}
	copy(bpb.BSOEMName[:], "SERDISK ")
	copy(bpb.FATSpecificData.BSVolumeLabel[:], "NO NAME    ")
	if l.FATWidth == 12 {
		copy(bpb.FATSpecificData.BSFileSystemType[:], "FAT12   ")
	} else {
		copy(bpb.FATSpecificData.BSFileSystemType[:], "FAT16   ")
	}

	if l.TotalSectors <= 0xFFFF {
		bpb.TotalSectors16 = uint16(l.TotalSectors)
	} else {
		bpb.TotalSectors32 = uint32(l.TotalSectors)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, bpb); err != nil {
		return checkpoint.From(err)
	}
	copy(v.boot, buf.Bytes())
	v.boot[510] = 0x55
	v.boot[511] = 0xAA
	return nil
}

// ReadSector returns a copy of the sector.
//
// Data sectors must belong to an allocated cluster which got data before. Everything else is
// a ContractViolation, there is no silent zero fill.
func (v *Volume) ReadSector(s Sector) ([]byte, error) {
	if err := v.layout.CheckRange(s, 1); err != nil {
		return nil, err
	}

	if v.layout.Region(s) == RegionData {
		c, _ := v.layout.SectorCluster(s)
		if !v.fats[0].Entry(c).IsAllocated() {
			return nil, violationf("read of sector %d in unallocated cluster %d", s, c)
		}
	}

	return v.readDevice(s)
}

// WriteSector replaces the content of the sector.
//
// Data sectors must belong to an allocated cluster, writing it initializes the sector.
// The reserved region cannot be written.
func (v *Volume) WriteSector(s Sector, data []byte) error {
	if err := v.layout.CheckRange(s, 1); err != nil {
		return err
	}
	if len(data) != v.layout.BytesPerSector {
		return checkpoint.Wrapf(ErrInvalidSectorData, "got %d bytes", len(data))
	}

	region := v.layout.Region(s)
	if region == RegionData {
		c, _ := v.layout.SectorCluster(s)
		if !v.fats[0].Entry(c).IsAllocated() {
			return violationf("write of sector %d in unallocated cluster %d", s, c)
		}
	}
	if region == RegionReserved {
		return checkpoint.Wrapf(ErrReadOnlyRegion, "sector %d", s)
	}

	return v.applyWrites(s, data)
}

// ReadSectors reads count sectors starting at start as the remote side sees them.
//
// Unlike ReadSector it does not ask the FAT: the remote may read clusters it already wrote
// but not yet linked. Sectors without data are still a ContractViolation.
func (v *Volume) ReadSectors(start Sector, count int) ([]byte, error) {
	if err := v.layout.CheckRange(start, count); err != nil {
		return nil, err
	}

	out := make([]byte, 0, count*v.layout.BytesPerSector)
	for i := 0; i < count; i++ {
		data, err := v.readDevice(start + Sector(i))
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// WriteSectors writes data, which has to be a multiple of the sector size, starting at start.
//
// Sectors are applied one by one in ascending order. The whole range is validated first,
// so an invalid request changes nothing, but the write itself is not atomic.
// Data written into clusters the FAT does not know yet is kept: remote drivers flush their
// FAT after the data.
func (v *Volume) WriteSectors(start Sector, data []byte) error {
	bps := v.layout.BytesPerSector
	if len(data)%bps != 0 {
		return checkpoint.Wrapf(ErrInvalidSectorData, "got %d bytes, sector size is %d", len(data), bps)
	}
	count := len(data) / bps
	if err := v.layout.CheckRange(start, count); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if v.layout.Region(start+Sector(i)) == RegionReserved {
			return checkpoint.Wrapf(ErrReadOnlyRegion, "sector %d", start+Sector(i))
		}
	}

	return v.applyWrites(start, data)
}

// applyWrites stores already validated sectors and notifies the observer once.
func (v *Volume) applyWrites(start Sector, data []byte) error {
	bps := v.layout.BytesPerSector
	ev := Event{Kind: EventContent}
	seen := make(map[Cluster]bool)

	for i := 0; i*bps < len(data); i++ {
		s := start + Sector(i)
		chunk := data[i*bps : (i+1)*bps]

		switch v.layout.Region(s) {
		case RegionFAT:
			copyIndex, offset := v.layout.FATCopy(s)
			v.fats[copyIndex].writeSector(offset, chunk)
			ev.Kind = EventStructure
		case RegionRoot:
			offset := int(s-v.layout.RootSector) * bps
			copy(v.root[offset:], chunk)
			ev.Kind = EventStructure
		case RegionData:
			c, index := v.layout.SectorCluster(s)
			v.storeSector(c, index, chunk)
			if !seen[c] {
				seen[c] = true
				ev.Clusters = append(ev.Clusters, c)
			}
		}
	}

	return v.notify(ev)
}

// readDevice returns a copy of a sector without asking the FAT.
func (v *Volume) readDevice(s Sector) ([]byte, error) {
	bps := v.layout.BytesPerSector

	switch v.layout.Region(s) {
	case RegionReserved:
		offset := int(s) * bps
		return append([]byte(nil), v.boot[offset:offset+bps]...), nil
	case RegionFAT:
		copyIndex, offset := v.layout.FATCopy(s)
		return v.fats[copyIndex].sector(offset, bps), nil
	case RegionRoot:
		offset := int(s-v.layout.RootSector) * bps
		return append([]byte(nil), v.root[offset:offset+bps]...), nil
	default:
		c, index := v.layout.SectorCluster(s)
		data := v.loadSector(c, index)
		if data == nil {
			return nil, violationf("read of uninitialized sector %d (cluster %d)", s, c)
		}
		return append([]byte(nil), data...), nil
	}
}

// storeSector copies data into the arena.
func (v *Volume) storeSector(c Cluster, index int, data []byte) {
	d, ok := v.arena[c]
	if !ok {
		d = &clusterData{sectors: make([][]byte, v.layout.SectorsPerCluster)}
		v.arena[c] = d
	}
	if d.sectors[index] == nil {
		d.sectors[index] = make([]byte, v.layout.BytesPerSector)
	}
	copy(d.sectors[index], data)
}

// loadSector returns the backing buffer of a sector or nil.
func (v *Volume) loadSector(c Cluster, index int) []byte {
	d, ok := v.arena[c]
	if !ok {
		return nil
	}
	return d.sectors[index]
}

// clusterInitialized reports whether every sector of the cluster has data.
func (v *Volume) clusterInitialized(c Cluster) bool {
	d, ok := v.arena[c]
	return ok && d.initialized()
}

// readCluster returns the concatenated sectors of an initialized cluster.
func (v *Volume) readCluster(c Cluster) ([]byte, error) {
	if !v.layout.ValidCluster(c) {
		return nil, checkpoint.Wrapf(ErrBrokenChain, "cluster %d outside of data region", c)
	}
	if !v.clusterInitialized(c) {
		return nil, checkpoint.Wrapf(ErrIncomplete, "cluster %d has no data", c)
	}

	out := make([]byte, 0, v.layout.ClusterBytes())
	for _, s := range v.arena[c].sectors {
		out = append(out, s...)
	}
	return out, nil
}

// writeCluster initializes the whole cluster with data, padding it with zeros.
func (v *Volume) writeCluster(c Cluster, data []byte) {
	bps := v.layout.BytesPerSector
	for i := 0; i < v.layout.SectorsPerCluster; i++ {
		chunk := make([]byte, bps)
		if i*bps < len(data) {
			copy(chunk, data[i*bps:])
		}
		v.storeSector(c, i, chunk)
	}
}

// dropCluster removes the backing data, the cluster becomes unallocated again.
func (v *Volume) dropCluster(c Cluster) {
	delete(v.arena, c)
}

// BackedClusters returns all clusters with at least one written sector in ascending order.
func (v *Volume) BackedClusters() []Cluster {
	clusters := make([]Cluster, 0, len(v.arena))
	for c := range v.arena {
		clusters = append(clusters, c)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i] < clusters[j] })
	return clusters
}

// setEntry changes a FAT slot in every FAT copy.
func (v *Volume) setEntry(c Cluster, e FatEntry) {
	for _, fat := range v.fats {
		fat.SetEntry(c, e)
	}
}
