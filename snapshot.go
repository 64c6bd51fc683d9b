package serialdisk

import (
	"io"

	"github.com/aligator/serialdisk/checkpoint"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// snapshotVersion is increased whenever the encoded layout changes incompatibly.
const snapshotVersion = 1

// snapshot is the persisted form of a volume. Sectors which never got data are stored as
// null and stay uninitialized after loading.
type snapshot struct {
	Version  int               `cbor:"1,keyasint"`
	Geometry Geometry          `cbor:"2,keyasint"`
	Boot     []byte            `cbor:"3,keyasint"`
	FATs     [][]byte          `cbor:"4,keyasint"`
	Root     []byte            `cbor:"5,keyasint"`
	Clusters []snapshotCluster `cbor:"6,keyasint"`
}

type snapshotCluster struct {
	Cluster Cluster  `cbor:"1,keyasint"`
	Sectors [][]byte `cbor:"2,keyasint"`
}

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error

	// Deterministic encoding: saving the same volume twice gives the same file.
	snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("serialdisk: CBOR encoder initialization failed: " + err.Error())
	}

	snapshotDecMode, err = cbor.DecOptions{
		MaxByteStringLen: 64 * 1024 * 1024,
	}.DecMode()
	if err != nil {
		panic("serialdisk: CBOR decoder initialization failed: " + err.Error())
	}
}

// SaveSnapshot writes the complete volume, including staged and uninitialized sectors, as a
// zstd compressed CBOR document.
func (v *Volume) SaveSnapshot(w io.Writer) error {
	snap := snapshot{
		Version:  snapshotVersion,
		Geometry: v.layout.Geometry,
		Boot:     v.boot,
		Root:     v.root,
	}
	for _, fat := range v.fats {
		snap.FATs = append(snap.FATs, fat.Bytes())
	}
	for _, c := range v.BackedClusters() {
		snap.Clusters = append(snap.Clusters, snapshotCluster{
			Cluster: c,
			Sectors: v.arena[c].sectors,
		})
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return checkpoint.From(err)
	}
	if err := snapshotEncMode.NewEncoder(zw).Encode(snap); err != nil {
		_ = zw.Close()
		return checkpoint.From(err)
	}
	return checkpoint.From(zw.Close())
}

// LoadSnapshot restores a volume written by SaveSnapshot.
// A snapshot which does not match its own geometry is a ContractViolation.
func LoadSnapshot(r io.Reader, opts ...Option) (*Volume, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	defer zr.Close()

	var snap snapshot
	if err := snapshotDecMode.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, checkpoint.From(err)
	}
	if snap.Version != snapshotVersion {
		return nil, violationf("unsupported snapshot version %d", snap.Version)
	}

	v, err := NewVolume(snap.Geometry, opts...)
	if err != nil {
		return nil, err
	}

	l := v.layout
	if len(snap.Boot) != len(v.boot) || len(snap.Root) != len(v.root) || len(snap.FATs) != len(v.fats) {
		return nil, violationf("snapshot regions do not match geometry %v", l.Geometry)
	}
	copy(v.boot, snap.Boot)
	copy(v.root, snap.Root)

	for i, raw := range snap.FATs {
		if len(raw) != len(v.fats[i].Bytes()) {
			return nil, violationf("FAT %d has %d bytes, want %d", i, len(raw), len(v.fats[i].Bytes()))
		}
		copy(v.fats[i].raw, raw)
	}

	for _, sc := range snap.Clusters {
		if !l.ValidCluster(sc.Cluster) || len(sc.Sectors) != l.SectorsPerCluster {
			return nil, violationf("invalid snapshot cluster %d", sc.Cluster)
		}
		for i, data := range sc.Sectors {
			if data == nil {
				continue
			}
			if len(data) != l.BytesPerSector {
				return nil, violationf("sector %d of cluster %d has %d bytes", i, sc.Cluster, len(data))
			}
			v.storeSector(sc.Cluster, i, data)
		}
	}

	return v, nil
}
