package serialdisk

import (
	"bytes"
	"encoding/binary"
	"path"
	"strings"
	"time"

	"github.com/aligator/serialdisk/checkpoint"
)

// DirectoryEntry is the decoded form of a 32 byte directory slot.
type DirectoryEntry struct {
	Name         ShortName
	Attr         Attr
	Created      time.Time
	Modified     time.Time
	FirstCluster Cluster
	Size         uint32

	// dir is the first cluster of the directory containing the entry, 0 for the root directory.
	dir Cluster
	// slot is the index of the entry inside of its directory, -1 for the root directory itself.
	slot int
}

// rootEntry stands for the root directory which has no entry of its own.
func rootEntry() DirectoryEntry {
	var name ShortName
	for i := range name {
		name[i] = ' '
	}
	return DirectoryEntry{Name: name, Attr: AttrDirectory, slot: -1}
}

// IsDir reports whether the entry is a directory.
func (e DirectoryEntry) IsDir() bool {
	return e.Attr&AttrDirectory != 0
}

// IsRoot reports whether the entry is the root directory.
func (e DirectoryEntry) IsRoot() bool {
	return e.slot < 0
}

func (e DirectoryEntry) header() EntryHeader {
	h := EntryHeader{
		Name:           e.Name,
		Attribute:      byte(e.Attr),
		FirstClusterLO: uint16(e.FirstCluster),
		FileSize:       e.Size,
	}
	if h.Name[0] == entryDeletedMarker {
		h.Name[0] = entryKanjiE5
	}
	h.CreateDate, h.CreateTime = FormatTimestamp(e.Created)
	h.WriteDate, h.WriteTime = FormatTimestamp(e.Modified)
	h.LastAccessDate = h.WriteDate
	return h
}

func entryFromHeader(h EntryHeader, dir Cluster, slot int) DirectoryEntry {
	return DirectoryEntry{
		Name:         h.Name,
		Attr:         Attr(h.Attribute),
		Created:      ParseTimestamp(h.CreateDate, h.CreateTime),
		Modified:     ParseTimestamp(h.WriteDate, h.WriteTime),
		FirstCluster: Cluster(h.FirstClusterLO),
		Size:         h.FileSize,
		dir:          dir,
		slot:         slot,
	}
}

func encodeHeader(h EntryHeader) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, checkpoint.From(err)
	}
	return buf.Bytes(), nil
}

// directory is a snapshot of the slots of one directory together with the clusters they live in.
type directory struct {
	// first is 0 for the root directory.
	first Cluster
	chain []Cluster
	raw   []byte
}

func (d *directory) slots() int {
	return len(d.raw) / dirEntrySize
}

func (d *directory) header(slot int) (EntryHeader, error) {
	var h EntryHeader
	raw := d.raw[slot*dirEntrySize : (slot+1)*dirEntrySize]
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h); err != nil {
		return EntryHeader{}, checkpoint.From(err)
	}
	return h, nil
}

// entries decodes every used slot. Deleted slots, long name parts and the volume label are
// skipped, the dot entries only if withDots is false.
func (d *directory) entries(withDots bool) ([]DirectoryEntry, error) {
	var result []DirectoryEntry
	for slot := 0; slot < d.slots(); slot++ {
		first := d.raw[slot*dirEntrySize]
		if first == entryEndMarker {
			break
		}
		if first == entryDeletedMarker {
			continue
		}

		h, err := d.header(slot)
		if err != nil {
			return nil, err
		}

		attr := Attr(h.Attribute)
		if attr&AttrLongName == AttrLongName || attr&AttrVolumeLabel != 0 {
			continue
		}

		entry := entryFromHeader(h, d.first, slot)
		if entry.Name.isDot() && !withDots {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// freeSlot returns the first unused slot or -1.
func (d *directory) freeSlot() int {
	for slot := 0; slot < d.slots(); slot++ {
		first := d.raw[slot*dirEntrySize]
		if first == entryEndMarker || first == entryDeletedMarker {
			return slot
		}
	}
	return -1
}

// find returns the entry with the given name, compared case insensitively.
func (d *directory) find(name ShortName) (DirectoryEntry, bool, error) {
	entries, err := d.entries(true)
	if err != nil {
		return DirectoryEntry{}, false, err
	}
	for _, e := range entries {
		if e.Name.Equal(name) {
			return e, true, nil
		}
	}
	return DirectoryEntry{}, false, nil
}

// openDirectory loads the directory starting at first, 0 opens the root directory.
// A subdirectory whose clusters did not get data yet returns ErrIncomplete.
func (v *Volume) openDirectory(first Cluster) (*directory, error) {
	if first == 0 {
		return &directory{raw: append([]byte(nil), v.root...)}, nil
	}

	chain, err := v.Chain(first)
	if err != nil {
		return nil, err
	}

	d := &directory{first: first, chain: chain}
	for _, c := range chain {
		data, err := v.readCluster(c)
		if err != nil {
			return nil, err
		}
		d.raw = append(d.raw, data...)
	}
	return d, nil
}

// openEntryDirectory opens the directory the entry describes.
func (v *Volume) openEntryDirectory(e DirectoryEntry) (*directory, error) {
	if !e.IsDir() {
		return nil, checkpoint.Wrapf(ErrNotDirectory, "%v", e.Name)
	}
	if e.IsRoot() {
		return v.openDirectory(0)
	}
	if e.FirstCluster == 0 {
		return nil, checkpoint.Wrapf(ErrBrokenChain, "directory %v has no cluster", e.Name)
	}
	return v.openDirectory(e.FirstCluster)
}

// storeSlot writes the header into the slot, both into the snapshot and the volume.
func (v *Volume) storeSlot(d *directory, slot int, h EntryHeader) error {
	raw, err := encodeHeader(h)
	if err != nil {
		return err
	}

	offset := slot * dirEntrySize
	copy(d.raw[offset:], raw)

	if d.first == 0 {
		copy(v.root[offset:], raw)
		return nil
	}

	clusterBytes := v.layout.ClusterBytes()
	bps := v.layout.BytesPerSector
	c := d.chain[offset/clusterBytes]
	inCluster := offset % clusterBytes

	sector := v.loadSector(c, inCluster/bps)
	if sector == nil {
		return violationf("directory slot %d in uninitialized cluster %d", slot, c)
	}
	copy(sector[inCluster%bps:], raw)
	return nil
}

// markDeleted sets the deleted marker on a slot.
func (v *Volume) markDeleted(d *directory, slot int) error {
	h, err := d.header(slot)
	if err != nil {
		return err
	}
	h.Name[0] = entryDeletedMarker
	return v.storeSlot(d, slot, h)
}

// cleanPath turns any volume path into the form "DIR/SUB/FILE.EXT", the root is "".
// Both "/" and "\" are accepted as separator.
func cleanPath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.Trim(path.Clean("/"+name), "/")
}

// FindEntry looks up the entry for the given path. The root directory ("" or "/") returns a
// synthetic directory entry without cluster.
func (v *Volume) FindEntry(name string) (DirectoryEntry, error) {
	name = cleanPath(name)
	current := rootEntry()
	if name == "" {
		return current, nil
	}

	for _, part := range strings.Split(name, "/") {
		d, err := v.openEntryDirectory(current)
		if err != nil {
			return DirectoryEntry{}, checkpoint.Wrapf(err, "lookup of %q", name)
		}

		short, err := ParseShortName(part)
		if err != nil {
			return DirectoryEntry{}, checkpoint.Wrapf(ErrNotFound, "%q: %v", name, err)
		}

		entry, ok, err := d.find(short)
		if err != nil {
			return DirectoryEntry{}, err
		}
		if !ok {
			return DirectoryEntry{}, checkpoint.Wrapf(ErrNotFound, "%q", name)
		}
		current = entry
	}

	return current, nil
}

// ReadDir lists a directory in slot order. The dot entries are not part of the result.
func (v *Volume) ReadDir(name string) ([]DirectoryEntry, error) {
	entry, err := v.FindEntry(name)
	if err != nil {
		return nil, err
	}
	return v.readDir(entry)
}

func (v *Volume) readDir(entry DirectoryEntry) ([]DirectoryEntry, error) {
	d, err := v.openEntryDirectory(entry)
	if err != nil {
		return nil, err
	}
	return d.entries(false)
}

// WalkFunc is called by Walk for every entry. name is the full volume path of the entry.
type WalkFunc func(name string, entry DirectoryEntry) error

// Walk calls fn for every entry below root, depth first and in slot order.
// A directory is passed to fn before its content.
func (v *Volume) Walk(root string, fn WalkFunc) error {
	entry, err := v.FindEntry(root)
	if err != nil {
		return err
	}
	visited := map[Cluster]bool{}
	return v.walk(cleanPath(root), entry, visited, fn)
}

func (v *Volume) walk(name string, dir DirectoryEntry, visited map[Cluster]bool, fn WalkFunc) error {
	if !dir.IsRoot() {
		if visited[dir.FirstCluster] {
			return violationf("directory %q loops back to cluster %d", name, dir.FirstCluster)
		}
		visited[dir.FirstCluster] = true
	}

	entries, err := v.readDir(dir)
	if err != nil {
		return checkpoint.Wrapf(err, "read directory %q", name)
	}

	for _, e := range entries {
		child := path.Join(name, e.Name.String())
		if err := fn(child, e); err != nil {
			return err
		}
		if e.IsDir() {
			if err := v.walk(child, e, visited, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateEntry adds an empty file or, if attr contains AttrDirectory, an empty directory to
// the parent directory.
//
// The name has to be a valid 8.3 name which does not exist in the parent yet (case
// insensitive). A full subdirectory grows by one cluster, a full root directory returns
// ErrDirectoryFull. Nothing changes if an error is returned.
func (v *Volume) CreateEntry(parent, name string, attr Attr) (DirectoryEntry, error) {
	entry, err := v.createEntry(parent, name, attr, 0)
	if err != nil {
		return DirectoryEntry{}, err
	}
	return entry, v.notify(Event{Kind: EventStructure, Path: path.Join(cleanPath(parent), entry.Name.String())})
}

// createEntry reserves space for extraClusters more clusters, which the caller allocates
// afterwards, before it changes anything.
func (v *Volume) createEntry(parent, name string, attr Attr, extraClusters int) (DirectoryEntry, error) {
	parentEntry, err := v.FindEntry(parent)
	if err != nil {
		return DirectoryEntry{}, err
	}

	d, err := v.openEntryDirectory(parentEntry)
	if err != nil {
		return DirectoryEntry{}, err
	}

	short, err := ParseShortName(name)
	if err != nil {
		return DirectoryEntry{}, err
	}
	if short.isDot() {
		return DirectoryEntry{}, checkpoint.Wrapf(ErrInvalidName, "%q is reserved", name)
	}
	if attr&(AttrVolumeLabel) != 0 {
		return DirectoryEntry{}, checkpoint.Wrapf(ErrInvalidArgument, "attributes %#x", attr)
	}

	if _, exists, err := d.find(short); err != nil {
		return DirectoryEntry{}, err
	} else if exists {
		return DirectoryEntry{}, checkpoint.Wrapf(ErrExists, "%v in %q", short, parent)
	}

	slot := d.freeSlot()
	needed := extraClusters
	if attr&AttrDirectory != 0 {
		needed++
	}
	if slot < 0 {
		if d.first == 0 {
			return DirectoryEntry{}, checkpoint.Wrapf(ErrDirectoryFull, "root directory has %d slots", d.slots())
		}
		needed++
	}
	if free := v.FreeClusters(); free < needed {
		return DirectoryEntry{}, checkpoint.Wrapf(ErrOutOfSpace, "need %d clusters, %d free", needed, free)
	}

	if slot < 0 {
		added, err := v.extendChain(d.first, 1)
		if err != nil {
			return DirectoryEntry{}, err
		}
		v.writeCluster(added[0], nil)
		slot = d.slots()
		d.chain = append(d.chain, added[0])
		d.raw = append(d.raw, make([]byte, v.layout.ClusterBytes())...)
	}

	now := v.now()
	entry := DirectoryEntry{
		Name:     short,
		Attr:     attr,
		Created:  now,
		Modified: now,
		dir:      d.first,
		slot:     slot,
	}

	if entry.IsDir() {
		first, err := v.allocateChain(1)
		if err != nil {
			return DirectoryEntry{}, err
		}
		entry.FirstCluster = first

		dots, err := dotEntries(entry, d.first)
		if err != nil {
			return DirectoryEntry{}, err
		}
		v.writeCluster(first, dots)
	}

	if err := v.storeSlot(d, slot, entry.header()); err != nil {
		return DirectoryEntry{}, err
	}
	return entry, nil
}

// dotEntries encodes the "." and ".." entries of a new directory.
func dotEntries(dir DirectoryEntry, parent Cluster) ([]byte, error) {
	dot := dir
	dot.Name, _ = ParseShortName(".")
	dotDot := dir
	dotDot.Name, _ = ParseShortName("..")
	dotDot.FirstCluster = parent

	var out []byte
	for _, e := range []DirectoryEntry{dot, dotDot} {
		raw, err := encodeHeader(e.header())
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}

// DeleteEntry removes a file or an empty directory and frees its clusters.
func (v *Volume) DeleteEntry(name string) error {
	if err := v.deleteEntry(name); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure, Path: cleanPath(name)})
}

func (v *Volume) deleteEntry(name string) error {
	entry, err := v.FindEntry(name)
	if err != nil {
		return err
	}
	if entry.IsRoot() {
		return checkpoint.Wrapf(ErrInvalidArgument, "the root directory cannot be deleted")
	}

	if entry.IsDir() {
		children, err := v.readDir(entry)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return checkpoint.Wrapf(ErrDirectoryNotEmpty, "%q has %d entries", name, len(children))
		}
	}

	var chain []Cluster
	if entry.FirstCluster != 0 {
		if chain, err = v.Chain(entry.FirstCluster); err != nil {
			return err
		}
	}

	d, err := v.openDirectory(entry.dir)
	if err != nil {
		return err
	}
	if err := v.markDeleted(d, entry.slot); err != nil {
		return err
	}
	v.release(chain)
	return nil
}

// RenameEntry gives the entry a new name inside of the same directory.
func (v *Volume) RenameEntry(name, newName string) error {
	if err := v.renameEntry(name, newName); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure, Path: path.Join(path.Dir(cleanPath(name)), newName)})
}

func (v *Volume) renameEntry(name, newName string) error {
	entry, err := v.FindEntry(name)
	if err != nil {
		return err
	}
	if entry.IsRoot() {
		return checkpoint.Wrapf(ErrInvalidArgument, "the root directory cannot be renamed")
	}

	short, err := ParseShortName(newName)
	if err != nil {
		return err
	}
	if short.isDot() {
		return checkpoint.Wrapf(ErrInvalidName, "%q is reserved", newName)
	}

	d, err := v.openDirectory(entry.dir)
	if err != nil {
		return err
	}
	if other, exists, err := d.find(short); err != nil {
		return err
	} else if exists && other.slot != entry.slot {
		return checkpoint.Wrapf(ErrExists, "%v", short)
	}

	entry.Name = short
	return v.storeSlot(d, entry.slot, entry.header())
}

// SetModTime changes the write timestamp of an entry.
func (v *Volume) SetModTime(name string, modified time.Time) error {
	entry, err := v.FindEntry(name)
	if err != nil {
		return err
	}
	if entry.IsRoot() {
		return nil
	}

	d, err := v.openDirectory(entry.dir)
	if err != nil {
		return err
	}
	entry.Modified = modified
	if err := v.storeSlot(d, entry.slot, entry.header()); err != nil {
		return err
	}
	return v.notify(Event{Kind: EventStructure, Path: cleanPath(name)})
}
