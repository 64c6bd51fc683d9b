package hosttree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/aligator/serialdisk"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	batches [][]Op
}

func (r *recordingSink) Submit(ops []Op) error {
	r.batches = append(r.batches, ops)
	return nil
}

func (r *recordingSink) ops() []string {
	var result []string
	for _, batch := range r.batches {
		for _, op := range batch {
			result = append(result, op.String())
		}
	}
	return result
}

var exportFiles = map[string][]byte{
	"readme.txt":    []byte("Hello World"),
	"docs/big.dat":  bytes.Repeat([]byte{1}, 5000),
	"docs/zero.txt": {},
}

func testingExporter(t *testing.T) (afero.Fs, *serialdisk.Volume, *Exporter, *recordingSink) {
	t.Helper()
	host, v, m := testingImport(t, exportFiles)
	sink := &recordingSink{}
	exporter := NewExporter(m, sink)
	v.SetObserver(exporter)
	return host, v, exporter, sink
}

func TestExporter_Idempotent(t *testing.T) {
	_, v, exporter, _ := testingExporter(t)

	ops, err := exporter.Plan(v)
	require.NoError(t, err)
	assert.Empty(t, ops)

	require.NoError(t, v.WriteFile("NEW.TXT", []byte("new")))

	ops, err = exporter.Plan(v)
	require.NoError(t, err)
	assert.Empty(t, ops, "second plan of an unchanged volume")
}

func TestExporter_Changes(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, v *serialdisk.Volume)
		want   []string
	}{
		{
			name: "new file",
			change: func(t *testing.T, v *serialdisk.Volume) {
				require.NoError(t, v.WriteFile("DOCS/NEW.TXT", []byte("new")))
			},
			want: []string{"write docs/NEW.TXT"},
		},
		{
			name: "changed file keeps its host name",
			change: func(t *testing.T, v *serialdisk.Volume) {
				require.NoError(t, v.WriteFile("README.TXT", []byte("changed")))
			},
			want: []string{"write readme.txt"},
		},
		{
			name: "same content is not written",
			change: func(t *testing.T, v *serialdisk.Volume) {
				require.NoError(t, v.WriteFile("README.TXT", []byte("Hello World")))
			},
		},
		{
			name: "new directory",
			change: func(t *testing.T, v *serialdisk.Volume) {
				_, err := v.CreateEntry("DOCS", "SUB", serialdisk.AttrDirectory)
				require.NoError(t, err)
			},
			want: []string{"mkdir docs/SUB"},
		},
		{
			name: "removed file",
			change: func(t *testing.T, v *serialdisk.Volume) {
				require.NoError(t, v.DeleteEntry("DOCS/BIG.DAT"))
			},
			want: []string{"remove docs/big.dat"},
		},
		{
			name: "renamed file",
			change: func(t *testing.T, v *serialdisk.Volume) {
				require.NoError(t, v.RenameEntry("README.TXT", "HELLO.TXT"))
			},
			want: []string{"rename readme.txt -> HELLO.TXT"},
		},
		{
			name: "renamed directory",
			change: func(t *testing.T, v *serialdisk.Volume) {
				require.NoError(t, v.RenameEntry("DOCS", "TEXTS"))
			},
			want: []string{"rename docs -> TEXTS"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, v, _, sink := testingExporter(t)
			tt.change(t, v)
			assert.Equal(t, tt.want, sink.ops())
		})
	}
}

func TestExporter_RenamedDirectory(t *testing.T) {
	_, v, exporter, _ := testingExporter(t)
	require.NoError(t, v.RenameEntry("DOCS", "TEXTS"))

	n, ok := exporter.Mapping().Lookup("TEXTS/BIG.DAT")
	require.True(t, ok)
	assert.Equal(t, "TEXTS/big.dat", n.HostPath)

	_, ok = exporter.Mapping().Lookup("DOCS/BIG.DAT")
	assert.False(t, ok)

	// Content written afterwards goes to the new place.
	require.NoError(t, v.WriteFile("TEXTS/BIG.DAT", []byte("small")))
	ops, err := exporter.Plan(v)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestExporter_SectorWrites(t *testing.T) {
	_, v, _, sink := testingExporter(t)
	l := v.Layout()

	entry, err := v.FindEntry("README.TXT")
	require.NoError(t, err)

	// Data of an existing file.
	sector := make([]byte, l.BytesPerSector)
	copy(sector, "Hello Serial")
	require.NoError(t, v.WriteSectors(l.ClusterSector(entry.FirstCluster), sector))
	require.Len(t, sink.batches, 1)
	assert.Equal(t, []byte("Hello Seria"), sink.batches[0][0].Data)

	// Data in a free cluster does not belong to any file yet.
	require.NoError(t, v.WriteSectors(l.ClusterSector(l.LastCluster()), sector))
	assert.Len(t, sink.batches, 1)
}

// rewriteDocsEntry changes a raw directory entry in the first sector of DOCS, the way a
// remote driver updates entries of a subdirectory.
func rewriteDocsEntry(t *testing.T, v *serialdisk.Volume, name string, change func(raw []byte)) {
	t.Helper()
	l := v.Layout()

	docs, err := v.FindEntry("DOCS")
	require.NoError(t, err)
	sector, err := v.ReadSectors(l.ClusterSector(docs.FirstCluster), 1)
	require.NoError(t, err)

	for slot := 0; slot < len(sector); slot += 32 {
		if string(sector[slot:slot+11]) == name {
			change(sector[slot : slot+32])
			require.NoError(t, v.WriteSectors(l.ClusterSector(docs.FirstCluster), sector))
			return
		}
	}
	t.Fatalf("no entry %q in DOCS", name)
}

func TestExporter_SubdirectoryEntryWrites(t *testing.T) {
	t.Run("size", func(t *testing.T) {
		_, v, _, sink := testingExporter(t)
		rewriteDocsEntry(t, v, "BIG     DAT", func(raw []byte) {
			binary.LittleEndian.PutUint32(raw[28:], 4000)
		})

		require.Equal(t, []string{"write docs/big.dat"}, sink.ops())
		assert.Equal(t, bytes.Repeat([]byte{1}, 4000), sink.batches[0][0].Data)
	})

	t.Run("rename", func(t *testing.T) {
		_, v, exporter, sink := testingExporter(t)
		rewriteDocsEntry(t, v, "BIG     DAT", func(raw []byte) {
			copy(raw, "LARGE   DAT")
		})

		assert.Equal(t, []string{"rename docs/big.dat -> docs/LARGE.DAT"}, sink.ops())
		_, ok := exporter.Mapping().Lookup("DOCS/LARGE.DAT")
		assert.True(t, ok)
	})
}

// TestExporter_IncompleteFile replays what a remote driver does to create a file: allocate
// clusters, write the directory entry and only then the data.
func TestExporter_IncompleteFile(t *testing.T) {
	_, v, _, sink := testingExporter(t)
	l := v.Layout()

	first, err := v.AllocateChain(1)
	require.NoError(t, err)

	root, err := v.ReadSectors(l.RootSector, 1)
	require.NoError(t, err)
	slot := 0
	for root[slot] != 0 {
		slot += 32
	}

	h := serialdisk.EntryHeader{
		Attribute:      byte(serialdisk.AttrArchive),
		FirstClusterLO: uint16(first),
		FileSize:       5,
	}
	copy(h.Name[:], "LATE    TXT")
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.LittleEndian, h))
	copy(root[slot:], buf.Bytes())

	require.NoError(t, v.WriteSectors(l.RootSector, root))
	assert.Empty(t, sink.ops(), "no content yet")

	data := make([]byte, l.ClusterBytes())
	copy(data, "hello")
	require.NoError(t, v.WriteSectors(l.ClusterSector(first), data))

	require.Equal(t, []string{"write LATE.TXT"}, sink.ops())
	assert.Equal(t, []byte("hello"), sink.batches[0][0].Data)
}

// failingFs fails every file write while fail is set.
type failingFs struct {
	afero.Fs
	fail bool
}

func (f *failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.fail && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("disk full")}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestExporter_Retry(t *testing.T) {
	host, v, m := testingImport(t, exportFiles)
	hostFs := &failingFs{Fs: afero.NewBasePathFs(host, "/host"), fail: true}
	applier := NewApplier(hostFs)
	v.SetObserver(NewExporter(m, applier))

	// A failing export never fails the volume.
	require.NoError(t, v.WriteFile("README.TXT", []byte("changed")))
	assert.Equal(t, 1, applier.Pending())

	got, err := afero.ReadFile(host, "/host/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello World"), got)

	hostFs.fail = false
	require.NoError(t, applier.Retry())
	assert.Equal(t, 0, applier.Pending())

	got, err = afero.ReadFile(host, "/host/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("changed"), got)
}

func TestExporter_RoundTrip(t *testing.T) {
	host, v, m := testingImport(t, exportFiles)
	v.SetObserver(NewExporter(m, NewApplier(afero.NewBasePathFs(host, "/host"))))

	require.NoError(t, v.WriteFile("DOCS/NEW.TXT", []byte("new")))
	require.NoError(t, v.WriteFile("README.TXT", []byte("changed")))
	require.NoError(t, v.DeleteEntry("DOCS/ZERO.TXT"))

	want := map[string][]byte{
		"/host/readme.txt":   []byte("changed"),
		"/host/docs/big.dat": exportFiles["docs/big.dat"],
		"/host/docs/NEW.TXT": []byte("new"),
	}
	for name, data := range want {
		got, err := afero.ReadFile(host, name)
		require.NoError(t, err, name)
		assert.Equal(t, data, got, name)
	}

	_, err := host.Stat("/host/docs/zero.txt")
	assert.True(t, os.IsNotExist(err))

	// Importing the exported tree gives the same content again.
	again, _, err := Import(host, "/host", testGeometry())
	require.NoError(t, err)
	for _, name := range []string{"README.TXT", "DOCS/BIG.DAT", "DOCS/NEW.TXT"} {
		want, err := v.ReadFile(name)
		require.NoError(t, err)
		got, err := again.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}
