package hosttree

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aligator/serialdisk"
	"github.com/zeebo/blake3"
)

// Digest identifies exported file content.
type Digest [32]byte

// digest hashes file content.
func digest(data []byte) Digest {
	return blake3.Sum256(data)
}

// Node is one file or directory known to both the volume and the host.
type Node struct {
	// VolumePath is the path on the volume, for example "DOCS/README.TXT".
	VolumePath string
	// HostPath is the path on the host, relative to the mounted folder.
	HostPath string
	Dir      bool

	FirstCluster serialdisk.Cluster
	Size         uint32
	Modified     time.Time

	// Digest of the content last written to the host. Only valid if Exported is set.
	Digest   Digest
	Exported bool
}

// matches reports whether the node still describes the entry without reading its content.
func (n *Node) matches(e serialdisk.DirectoryEntry) bool {
	return n.FirstCluster == e.FirstCluster && n.Size == e.Size && n.Modified.Equal(e.Modified)
}

// Mapping is the join table between volume entries and host files.
// It is built by Import and afterwards owned by the Exporter.
type Mapping struct {
	nodes map[string]*Node
}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{nodes: make(map[string]*Node)}
}

// Add adds or replaces the node of n.VolumePath.
func (m *Mapping) Add(n *Node) {
	m.nodes[n.VolumePath] = n
}

// Lookup returns the node of a volume path.
func (m *Mapping) Lookup(volumePath string) (*Node, bool) {
	n, ok := m.nodes[volumePath]
	return n, ok
}

// Len returns the count of nodes.
func (m *Mapping) Len() int {
	return len(m.nodes)
}

// Nodes returns all nodes sorted by volume path, so parents come before their children.
func (m *Mapping) Nodes() []*Node {
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].VolumePath < nodes[j].VolumePath })
	return nodes
}

// HostPath returns where a volume path lives on the host. Paths without a node are placed
// below the host path of their nearest known parent, using their volume names.
func (m *Mapping) HostPath(volumePath string) string {
	if volumePath == "" {
		return ""
	}
	if n, ok := m.nodes[volumePath]; ok {
		return n.HostPath
	}
	return path.Join(m.HostPath(parentPath(volumePath)), path.Base(volumePath))
}

// Remove drops the node and everything below it.
func (m *Mapping) Remove(volumePath string) {
	for p := range m.nodes {
		if isWithin(p, volumePath) {
			delete(m.nodes, p)
		}
	}
}

// Move changes the volume and host path of a node and of everything below it.
func (m *Mapping) Move(oldVolume, newVolume, newHost string) {
	old, ok := m.nodes[oldVolume]
	if !ok {
		return
	}
	oldHost := old.HostPath

	var moved []*Node
	for p, n := range m.nodes {
		if isWithin(p, oldVolume) {
			delete(m.nodes, p)
			moved = append(moved, n)
		}
	}
	for _, n := range moved {
		n.VolumePath = newVolume + strings.TrimPrefix(n.VolumePath, oldVolume)
		n.HostPath = newHost + strings.TrimPrefix(n.HostPath, oldHost)
		m.nodes[n.VolumePath] = n
	}
}

// isWithin reports whether p is root or below it.
func isWithin(p, root string) bool {
	return p == root || strings.HasPrefix(p, root+"/")
}

func parentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
