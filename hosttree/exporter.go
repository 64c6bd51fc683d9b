package hosttree

import (
	"errors"
	"path"
	"sort"
	"strings"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	log "github.com/sirupsen/logrus"
)

// Exporter mirrors every change of a volume into the host tree.
//
// It is the serialdisk.Observer of a mounted volume. On each change it compares the volume
// with the Mapping and passes the resulting operations to its Sink. Content is compared by
// digest, so unchanged files are never written again.
type Exporter struct {
	mapping *Mapping
	sink    Sink

	// dirty holds files whose content has to be read again, mostly because the remote did
	// not finish writing it yet.
	dirty map[string]bool
	// owners maps every cluster of a known file chain to the file. It is nil until the
	// first Plan.
	owners map[serialdisk.Cluster]string
	// directories maps every cluster of a known subdirectory chain to the directory. Writes
	// into them change entries, so they are handled like structure changes.
	directories map[serialdisk.Cluster]string
}

// NewExporter creates an Exporter for a volume imported into mapping. Attach it with
// Volume.SetObserver after the import is done.
func NewExporter(mapping *Mapping, sink Sink) *Exporter {
	return &Exporter{
		mapping: mapping,
		sink:    sink,
		dirty:   make(map[string]bool),
	}
}

// Mapping returns the current mapping.
func (e *Exporter) Mapping() *Mapping {
	return e.mapping
}

// VolumeChanged implements serialdisk.Observer. Only contract violations are returned,
// host failures are logged and retried by the sink.
func (e *Exporter) VolumeChanged(v *serialdisk.Volume, ev serialdisk.Event) error {
	if ev.Kind == serialdisk.EventContent {
		if e.owners == nil {
			if err := e.indexOwners(v); err != nil {
				return err
			}
		}

		touched := false
		for _, c := range ev.Clusters {
			if owner, ok := e.owners[c]; ok {
				e.dirty[owner] = true
				touched = true
			}
			if _, ok := e.directories[c]; ok {
				touched = true
			}
		}
		// Data in clusters no file owns yet is picked up once the directory entry arrives.
		if !touched {
			return nil
		}
	}

	// Path based writes may keep size and time, so the content has to be compared.
	if ev.Path != "" {
		e.dirty[ev.Path] = true
	}

	ops, err := e.Plan(v)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	if err := e.sink.Submit(ops); err != nil {
		log.WithField("path", ev.Path).Warnf("Export incomplete: %v", err)
	}
	return nil
}

// indexOwners builds the cluster indexes from the Mapping alone.
func (e *Exporter) indexOwners(v *serialdisk.Volume) error {
	e.owners = make(map[serialdisk.Cluster]string)
	e.directories = make(map[serialdisk.Cluster]string)
	for _, n := range e.mapping.Nodes() {
		if n.FirstCluster == 0 {
			continue
		}
		index := e.owners
		if n.Dir {
			index = e.directories
		}
		if err := indexChain(v, index, n.FirstCluster, n.VolumePath); err != nil {
			return err
		}
	}
	return nil
}

// indexChain maps the clusters of the chain starting at first to p. Broken chains are
// skipped, only a ContractViolation is returned.
func indexChain(v *serialdisk.Volume, index map[serialdisk.Cluster]string, first serialdisk.Cluster, p string) error {
	chain, err := v.Chain(first)
	if serialdisk.IsContractViolation(err) {
		return err
	}
	for _, c := range chain {
		index[c] = p
	}
	return nil
}

// scan lists the whole tree. Directories which cannot be read yet are returned in
// unreadable, everything the Mapping knows below them is left alone.
func scan(v *serialdisk.Volume) (entries map[string]serialdisk.DirectoryEntry, unreadable []string, err error) {
	entries = make(map[string]serialdisk.DirectoryEntry)

	var walk func(dir string) error
	walk = func(dir string) error {
		children, err := v.ReadDir(dir)
		if err != nil {
			if serialdisk.IsContractViolation(err) {
				return err
			}
			log.WithField("path", dir).Debugf("Directory not readable yet: %v", err)
			unreadable = append(unreadable, dir)
			return nil
		}

		for _, child := range children {
			p := path.Join(dir, child.Name.String())
			entries[p] = child
			if child.IsDir() {
				if err := walk(p); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, nil, err
	}
	return entries, unreadable, nil
}

func withinAny(p string, roots []string) bool {
	for _, root := range roots {
		if root == "" || isWithin(p, root) {
			return true
		}
	}
	return false
}

// Plan compares the volume with the Mapping, updates the Mapping and returns the operations
// which bring the host tree to the state of the volume.
//
// Operations are ordered renames, directories, writes and removals. Only an entry which
// changed between file and directory is removed first.
// Only a ContractViolation is returned as error.
func (e *Exporter) Plan(v *serialdisk.Volume) ([]Op, error) {
	current, unreadable, err := scan(v)
	if err != nil {
		return nil, err
	}

	// replaced holds removals which have to happen before anything is created at the path.
	var replaced, renames, mkdirs, writes, removes []Op

	// Entries which vanished from their path but whose first cluster shows up under a new
	// path have been renamed or moved.
	added := make(map[serialdisk.Cluster]string)
	for p, entry := range current {
		if _, known := e.mapping.Lookup(p); !known && entry.FirstCluster != 0 {
			added[entry.FirstCluster] = p
		}
	}

	for _, n := range e.mapping.Nodes() {
		if _, ok := current[n.VolumePath]; ok || withinAny(n.VolumePath, unreadable) {
			continue
		}
		if _, still := e.mapping.Lookup(n.VolumePath); !still {
			// Removed or moved together with its parent already.
			continue
		}

		if target, ok := added[n.FirstCluster]; ok && n.FirstCluster != 0 && current[target].IsDir() == n.Dir {
			oldHost := n.HostPath
			newHost := path.Join(e.mapping.HostPath(parentPath(target)), path.Base(target))
			e.mapping.Move(n.VolumePath, target, newHost)
			delete(added, n.FirstCluster)
			renames = append(renames, Op{Kind: OpRename, Path: oldHost, NewPath: newHost})
			e.moveDirty(n.VolumePath, target)
			continue
		}

		removes = append(removes, Op{Kind: OpRemove, Path: n.HostPath})
		e.mapping.Remove(n.VolumePath)
		e.dropDirty(n.VolumePath)
	}

	paths := make([]string, 0, len(current))
	for p := range current {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	owners := make(map[serialdisk.Cluster]string)
	directories := make(map[serialdisk.Cluster]string)
	for _, p := range paths {
		entry := current[p]

		n, known := e.mapping.Lookup(p)
		if !known {
			n = &Node{
				VolumePath: p,
				HostPath:   path.Join(e.mapping.HostPath(parentPath(p)), entry.Name.String()),
				Dir:        entry.IsDir(),
			}
			e.mapping.Add(n)
			if n.Dir {
				mkdirs = append(mkdirs, Op{Kind: OpMkdir, Path: n.HostPath})
			} else {
				e.dirty[p] = true
			}
		} else if n.Dir != entry.IsDir() {
			// A file was replaced by a directory of the same name or the other way round.
			replaced = append(replaced, Op{Kind: OpRemove, Path: n.HostPath})
			e.mapping.Remove(p)
			e.dirty[p] = true
			n = &Node{VolumePath: p, HostPath: n.HostPath, Dir: entry.IsDir()}
			e.mapping.Add(n)
			if n.Dir {
				mkdirs = append(mkdirs, Op{Kind: OpMkdir, Path: n.HostPath})
			}
		}

		if n.Dir {
			n.FirstCluster, n.Modified = entry.FirstCluster, entry.Modified
			delete(e.dirty, p)
			if entry.FirstCluster != 0 {
				if err := indexChain(v, directories, entry.FirstCluster, p); err != nil {
					return nil, err
				}
			}
			continue
		}

		if entry.FirstCluster != 0 {
			if err := indexChain(v, owners, entry.FirstCluster, p); err != nil {
				return nil, err
			}
		}

		if !n.matches(entry) || !n.Exported {
			e.dirty[p] = true
		}
		if !e.dirty[p] {
			continue
		}

		op, done, err := e.export(v, p, n, entry)
		if err != nil {
			return nil, err
		}
		if done {
			delete(e.dirty, p)
		}
		if op != nil {
			writes = append(writes, *op)
		}
	}
	e.owners, e.directories = owners, directories

	for p := range e.dirty {
		if _, ok := current[p]; !ok && !withinAny(p, unreadable) {
			delete(e.dirty, p)
		}
	}

	// Removing a directory also removes its content: drop the removals of its children.
	removes = collapseRemoves(removes)

	ops := append(replaced, renames...)
	ops = append(ops, mkdirs...)
	ops = append(ops, writes...)
	return append(ops, removes...), nil
}

// export reads the content of a file node. done is false if the content is not complete
// yet and has to be read again later.
func (e *Exporter) export(v *serialdisk.Volume, p string, n *Node, entry serialdisk.DirectoryEntry) (op *Op, done bool, err error) {
	data, err := v.ReadFile(p)
	switch {
	case serialdisk.IsContractViolation(err):
		return nil, false, err
	case errors.Is(err, serialdisk.ErrIncomplete), errors.Is(err, serialdisk.ErrBrokenChain):
		log.WithField("path", p).Debugf("Content not complete yet: %v", err)
		return nil, false, nil
	case err != nil:
		log.WithField("path", p).Warnf("Content not readable: %v", checkpoint.From(err))
		return nil, false, nil
	}

	n.FirstCluster, n.Size, n.Modified = entry.FirstCluster, entry.Size, entry.Modified

	sum := digest(data)
	if n.Exported && sum == n.Digest {
		return nil, true, nil
	}
	n.Digest, n.Exported = sum, true
	return &Op{Kind: OpWrite, Path: n.HostPath, Data: data, ModTime: entry.Modified}, true, nil
}

func (e *Exporter) moveDirty(from, to string) {
	for p := range e.dirty {
		if isWithin(p, from) {
			delete(e.dirty, p)
			e.dirty[to+strings.TrimPrefix(p, from)] = true
		}
	}
}

func (e *Exporter) dropDirty(root string) {
	for p := range e.dirty {
		if isWithin(p, root) {
			delete(e.dirty, p)
		}
	}
}

func collapseRemoves(removes []Op) []Op {
	sort.Slice(removes, func(i, j int) bool { return removes[i].Path < removes[j].Path })

	var result []Op
	for _, op := range removes {
		if len(result) > 0 && isWithin(op.Path, result[len(result)-1].Path) {
			continue
		}
		result = append(result, op)
	}
	return result
}
