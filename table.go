package serialdisk

import (
	"encoding/binary"
	"fmt"
)

// EntryKind tells what a FAT slot contains.
type EntryKind uint8

const (
	EntryFree EntryKind = iota
	EntryReserved
	EntryBad
	EntryEndOfChain
	EntryNext
)

// FatEntry is the decoded content of one FAT slot.
type FatEntry struct {
	Kind EntryKind
	// Next is only set for EntryNext.
	Next Cluster
}

// Some FAT entries which do not need a value.
var (
	FreeEntry       = FatEntry{Kind: EntryFree}
	ReservedEntry   = FatEntry{Kind: EntryReserved}
	BadEntry        = FatEntry{Kind: EntryBad}
	EndOfChainEntry = FatEntry{Kind: EntryEndOfChain}
)

// NextEntry links to the given cluster.
func NextEntry(c Cluster) FatEntry {
	return FatEntry{Kind: EntryNext, Next: c}
}

func (e FatEntry) IsFree() bool      { return e.Kind == EntryFree }
func (e FatEntry) IsReserved() bool  { return e.Kind == EntryReserved }
func (e FatEntry) IsBad() bool       { return e.Kind == EntryBad }
func (e FatEntry) IsEOF() bool       { return e.Kind == EntryEndOfChain }
func (e FatEntry) IsNext() bool      { return e.Kind == EntryNext }
func (e FatEntry) IsAllocated() bool { return e.Kind == EntryNext || e.Kind == EntryEndOfChain }

func (e FatEntry) String() string {
	switch e.Kind {
	case EntryFree:
		return "free"
	case EntryReserved:
		return "reserved"
	case EntryBad:
		return "bad"
	case EntryEndOfChain:
		return "eoc"
	case EntryNext:
		return fmt.Sprintf("next(%d)", e.Next)
	default:
		return fmt.Sprintf("kind(%d)", e.Kind)
	}
}

// FatTable is one copy of the file allocation table.
// It keeps the raw bytes exactly as the remote side sees them and decodes entries on access,
// so that sector writes into the FAT region and structural changes never disagree.
type FatTable struct {
	width int
	slots int
	raw   []byte
}

// newFatTable creates an empty table: everything free, slot 0 holds the media byte and
// slot 1 the end of chain marker.
func newFatTable(l Layout) *FatTable {
	t := &FatTable{
		width: l.FATWidth,
		slots: l.Clusters + int(FirstCluster),
		raw:   make([]byte, l.SectorsPerFAT*l.BytesPerSector),
	}

	t.set(0, t.mask()&^0xFF|uint16(l.Media))
	t.set(1, t.mask())
	return t
}

func (t *FatTable) mask() uint16 {
	if t.width == 12 {
		return 0x0FFF
	}
	return 0xFFFF
}

// get reads the raw value of a slot.
func (t *FatTable) get(slot FatSlot) uint16 {
	t.checkSlot(slot)

	if t.width == 16 {
		return binary.LittleEndian.Uint16(t.raw[slot*2:])
	}

	// FAT12 packs two entries into three bytes.
	offset := slot + slot/2
	value := binary.LittleEndian.Uint16(t.raw[offset:])
	if slot%2 == 1 {
		return value >> 4
	}
	return value & 0x0FFF
}

// set writes the raw value of a slot.
func (t *FatTable) set(slot FatSlot, value uint16) {
	t.checkSlot(slot)

	if t.width == 16 {
		binary.LittleEndian.PutUint16(t.raw[slot*2:], value)
		return
	}

	offset := slot + slot/2
	current := binary.LittleEndian.Uint16(t.raw[offset:])
	if slot%2 == 1 {
		current = current&0x000F | (value&0x0FFF)<<4
	} else {
		current = current&0xF000 | value&0x0FFF
	}
	binary.LittleEndian.PutUint16(t.raw[offset:], current)
}

func (t *FatTable) checkSlot(slot FatSlot) {
	if int(slot) >= t.slots {
		panic(violationf("FAT slot %d outside of table with %d slots", slot, t.slots))
	}
}

// Entry decodes the slot of the cluster.
func (t *FatTable) Entry(c Cluster) FatEntry {
	value := t.get(c.Slot())

	// Translate the FAT12 specific values to the FAT16 range.
	if t.width == 12 && value >= 0x0FF0 {
		value |= 0xF000
	}

	switch {
	case value == 0x0000:
		return FreeEntry
	case value == 0x0001:
		return ReservedEntry
	case value >= 0xFFF8:
		return EndOfChainEntry
	case value == 0xFFF7:
		return BadEntry
	case value >= 0xFFF0:
		return ReservedEntry
	default:
		// Pointers outside of the data region are kept as they are and rejected by the chain walker.
		return NextEntry(Cluster(value))
	}
}

// SetEntry encodes e into the slot of the cluster.
func (t *FatTable) SetEntry(c Cluster, e FatEntry) {
	var value uint16
	switch e.Kind {
	case EntryFree:
		value = 0x0000
	case EntryReserved:
		value = 0xFFF0
	case EntryBad:
		value = 0xFFF7
	case EntryEndOfChain:
		value = 0xFFFF
	case EntryNext:
		value = uint16(e.Next)
	}
	t.set(c.Slot(), value&t.mask())
}

// Bytes returns the raw table. The slice must not be modified.
func (t *FatTable) Bytes() []byte {
	return t.raw
}

// sector returns a copy of the given sector of the table.
func (t *FatTable) sector(index, bytesPerSector int) []byte {
	out := make([]byte, bytesPerSector)
	copy(out, t.raw[index*bytesPerSector:])
	return out
}

// writeSector replaces the given sector of the table.
func (t *FatTable) writeSector(index int, data []byte) {
	copy(t.raw[index*len(data):], data)
}

// freeCount counts free data clusters.
func (t *FatTable) freeCount(l Layout) int {
	count := 0
	for c := FirstCluster; c <= l.LastCluster(); c++ {
		if t.Entry(c).IsFree() {
			count++
		}
	}
	return count
}
