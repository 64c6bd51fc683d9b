// File model contains the structs which match the direct structures of the FAT filesystem.
// All of them are stored little endian.

package serialdisk

// BPB is the BIOS parameter block at the start of the boot sector.
type BPB struct {
	BSJumpBoot          [3]byte
	BSOEMName           [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   byte
	ReservedSectorCount uint16
	NumFATs             byte
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSpecificData     FAT16SpecificData
}

// FAT16SpecificData follows the BPB on FAT12 and FAT16 volumes.
type FAT16SpecificData struct {
	BSDriveNumber    byte
	BSReserved1      byte
	BSBootSignature  byte
	BSVolumeId       uint32
	BSVolumeLabel    [11]byte
	BSFileSystemType [8]byte
}

// EntryHeader is a single 32 byte directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// dirEntrySize is the encoded size of EntryHeader.
const dirEntrySize = 32

// Attr holds the attribute bits of a directory entry.
type Attr byte

const (
	AttrReadOnly    Attr = 0x01
	AttrHidden      Attr = 0x02
	AttrSystem      Attr = 0x04
	AttrVolumeLabel Attr = 0x08
	AttrDirectory   Attr = 0x10
	AttrArchive     Attr = 0x20

	// AttrLongName marks a VFAT long file name entry. They are skipped.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// Markers found in the first name byte.
const (
	entryEndMarker     = 0x00
	entryDeletedMarker = 0xE5
	// entryKanjiE5 stands for a real 0xE5 as first name character.
	entryKanjiE5 = 0x05
)
